package service

// GetWeatherRequest is bound from the {city} path variable.
type GetWeatherRequest struct {
	City string `json:"city"`
}

// SearchPlacesRequest is bound from the query string.
type SearchPlacesRequest struct {
	Query    string `json:"query"`
	Location string `json:"location"`
	Type     string `json:"type"`
}

// SearchHotelsRequest is bound from the query string. Dates are YYYY-MM-DD.
type SearchHotelsRequest struct {
	Location string `json:"location"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

// GetStatusRequest has no fields.
type GetStatusRequest struct{}

// SetAPIKeysRequest updates provider keys. Omitted fields are unchanged;
// an empty string removes the key.
type SetAPIKeysRequest struct {
	Weather *string `json:"weather,omitempty"`
	Places  *string `json:"places,omitempty"`
	Hotels  *string `json:"hotels,omitempty"`
}

// ClearCacheRequest has no fields.
type ClearCacheRequest struct{}

// ResetBreakerRequest is bound from the {service} path variable.
type ResetBreakerRequest struct {
	Service string `json:"service"`
}

// ResetAllBreakersRequest has no fields.
type ResetAllBreakersRequest struct{}

// Ack acknowledges a mutating call.
type Ack struct {
	Status string `json:"status"`
}

var ackOK = &Ack{Status: "ok"}
