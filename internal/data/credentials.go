package data

import (
	"sync"

	"Wayfarer/internal/conf"
	pkgerrors "Wayfarer/pkg/errors"
)

// KeyUpdate changes provider API keys. A nil field leaves the key as is;
// an empty string removes it.
type KeyUpdate struct {
	Weather *string
	Places  *string
	Hotels  *string
}

// Credentials holds the provider API keys and may be updated at runtime.
type Credentials struct {
	mu   sync.RWMutex
	keys map[string]string
	mode string
	// file holds the keys last read from configuration.
	file conf.Keys
}

// NewCredentials seeds the store from configuration.
func NewCredentials(keys *conf.Keys, gw *conf.Gateway) *Credentials {
	c := &Credentials{keys: make(map[string]string, 3), mode: conf.ModeDirect}
	if gw != nil && gw.Mode != "" {
		c.mode = gw.Mode
	}
	if keys != nil {
		c.file = conf.Keys{Weather: keys.Weather, Places: keys.Places, Hotels: keys.Hotels}
		c.keys[conf.ServiceWeather] = keys.Weather
		c.keys[conf.ServicePlaces] = keys.Places
		c.keys[conf.ServiceHotels] = keys.Hotels
	}
	return c
}

// Update applies upd atomically.
func (c *Credentials) Update(upd KeyUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if upd.Weather != nil {
		c.keys[conf.ServiceWeather] = *upd.Weather
	}
	if upd.Places != nil {
		c.keys[conf.ServicePlaces] = *upd.Places
	}
	if upd.Hotels != nil {
		c.keys[conf.ServiceHotels] = *upd.Hotels
	}
}

// Reload applies a key set read from a reloaded config file. Only keys
// whose file value changed since the previous load are applied, so a key
// set at runtime survives edits to unrelated parts of the file.
func (c *Credentials) Reload(keys *conf.Keys) {
	if keys == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if keys.Weather != c.file.Weather {
		c.keys[conf.ServiceWeather] = keys.Weather
	}
	if keys.Places != c.file.Places {
		c.keys[conf.ServicePlaces] = keys.Places
	}
	if keys.Hotels != c.file.Hotels {
		c.keys[conf.ServiceHotels] = keys.Hotels
	}
	c.file = conf.Keys{Weather: keys.Weather, Places: keys.Places, Hotels: keys.Hotels}
}

// Key returns the API key for service. Hotels fall back to the places key
// because lodging search runs on the places provider.
func (c *Credentials) Key(service string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if k := c.keys[service]; k != "" {
		return k, nil
	}
	if service == conf.ServiceHotels {
		if k := c.keys[conf.ServicePlaces]; k != "" {
			return k, nil
		}
	}
	if c.mode != conf.ModeDirect {
		return "", nil
	}
	return "", &pkgerrors.NotConfiguredError{Service: service}
}

// Configured reports whether calls to service can be made. Proxy and mock
// modes never need a local key.
func (c *Credentials) Configured(service string) bool {
	_, err := c.Key(service)
	return err == nil
}

// Mode returns the gateway mode the store was created for.
func (c *Credentials) Mode() string {
	return c.mode
}
