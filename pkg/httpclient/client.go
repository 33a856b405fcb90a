// Package httpclient builds outbound HTTP clients with optional proxy
// support. SOCKS5 and HTTP(S) proxies are accepted.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

const (
	defaultIdleConns        = 64
	defaultIdleConnsPerHost = 16
	defaultIdleTimeout      = 90 * time.Second
	defaultDialTimeout      = 5 * time.Second
)

// New creates an HTTP client routed through proxyURL, or a direct client
// when proxyURL is empty. timeout is an overall cap; per-attempt deadlines
// are expected to come from the request context.
func New(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{
			Transport: baseTransport(),
			Timeout:   timeout,
		}, nil
	}

	parsedProxy, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedProxy.Scheme {
	case "socks5", "socks5h":
		return newSOCKS5Client(parsedProxy, timeout)
	case "http", "https":
		return newHTTPProxyClient(parsedProxy, timeout), nil
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s", parsedProxy.Scheme)
	}
}

func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        defaultIdleConns,
		MaxIdleConnsPerHost: defaultIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func newSOCKS5Client(proxyURL *url.URL, timeout time.Duration) (*http.Client, error) {
	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	forward := &net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}
	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport := baseTransport()
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}

	return &http.Client{Transport: transport, Timeout: timeout}, nil
}

func newHTTPProxyClient(proxyURL *url.URL, timeout time.Duration) *http.Client {
	transport := baseTransport()
	transport.Proxy = http.ProxyURL(proxyURL)
	return &http.Client{Transport: transport, Timeout: timeout}
}
