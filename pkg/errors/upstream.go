// Package errors provides upstream error classification and conversion to
// kratos API errors.
package errors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	kerrors "github.com/go-kratos/kratos/v2/errors"

	"Wayfarer/pkg/circuitbreaker"
)

// ErrorKind represents the class of an upstream failure.
type ErrorKind int

const (
	// KindUnknown represents an unclassified failure.
	KindUnknown ErrorKind = iota
	// KindTimeout represents an attempt that exceeded its deadline.
	KindTimeout
	// KindNetwork represents a transport failure (DNS, refused, reset).
	KindNetwork
	// KindUnauthorized represents a rejected or missing credential (401/403).
	KindUnauthorized
	// KindQuotaExceeded represents an exhausted provider quota.
	KindQuotaExceeded
	// KindRateLimited represents a provider throttling response (429).
	KindRateLimited
	// KindServerError represents a 5xx provider response.
	KindServerError
	// KindInvalidRequest represents a 4xx response caused by bad input.
	KindInvalidRequest
)

var kindNames = map[ErrorKind]string{
	KindUnknown:        "unknown",
	KindTimeout:        "timeout",
	KindNetwork:        "network",
	KindUnauthorized:   "unauthorized",
	KindQuotaExceeded:  "quota_exceeded",
	KindRateLimited:    "rate_limited",
	KindServerError:    "server_error",
	KindInvalidRequest: "invalid_request",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Kratos reasons.
const (
	ReasonTimeout          = "UPSTREAM_TIMEOUT"
	ReasonNetwork          = "UPSTREAM_NETWORK_ERROR"
	ReasonUnauthorized     = "UPSTREAM_UNAUTHORIZED"
	ReasonQuotaExceeded    = "UPSTREAM_QUOTA_EXCEEDED"
	ReasonRateLimited      = "UPSTREAM_RATE_LIMITED"
	ReasonServerError      = "UPSTREAM_SERVER_ERROR"
	ReasonInvalidRequest   = "UPSTREAM_INVALID_REQUEST"
	ReasonUnknown          = "UPSTREAM_UNKNOWN"
	ReasonCircuitOpen      = "CIRCUIT_OPEN"
	ReasonNotConfigured    = "PROVIDER_NOT_CONFIGURED"
	ReasonRequestTimeout   = "REQUEST_TIMEOUT"
	ReasonRequestCancelled = "REQUEST_CANCELLED"
	ReasonBadRequest       = "BAD_REQUEST"
	ReasonInternal         = "INTERNAL_ERROR"
)

// UpstreamError wraps a provider failure with classification information.
type UpstreamError struct {
	Kind        ErrorKind
	Service     string
	StatusCode  int // HTTP status, 0 when no response was received
	Message     string
	OriginalErr error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Service)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.OriginalErr != nil {
		b.WriteString(": ")
		b.WriteString(e.OriginalErr.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for errors.Is and errors.As compatibility.
func (e *UpstreamError) Unwrap() error {
	return e.OriginalErr
}

// NewUpstreamError builds an UpstreamError.
func NewUpstreamError(service string, kind ErrorKind, status int, msg string, cause error) *UpstreamError {
	return &UpstreamError{
		Kind:        kind,
		Service:     service,
		StatusCode:  status,
		Message:     msg,
		OriginalErr: cause,
	}
}

// ErrNotConfigured is matched by every NotConfiguredError.
var ErrNotConfigured = errors.New("provider not configured")

// NotConfiguredError reports a missing credential for a provider.
type NotConfiguredError struct {
	Service string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("%s: api key not configured", e.Service)
}

// Is reports whether target is ErrNotConfigured.
func (e *NotConfiguredError) Is(target error) bool {
	return target == ErrNotConfigured
}

// ClassifyHTTPStatus maps an HTTP status code to an ErrorKind.
//
//   - 401, 403 → KindUnauthorized
//   - 408 → KindTimeout
//   - 429 → KindRateLimited
//   - 5xx → KindServerError
//   - other 4xx → KindInvalidRequest
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusRequestTimeout:
		return KindTimeout
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500 && status <= 599:
		return KindServerError
	case status >= 400 && status <= 499:
		return KindInvalidRequest
	default:
		return KindUnknown
	}
}

// ClassifyTransportError classifies an error returned by http.Client.Do.
// Callers must check their own context first: a deadline here means the
// per-attempt timeout fired.
func ClassifyTransportError(service string, err error) *UpstreamError {
	if err == nil {
		return nil
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewUpstreamError(service, KindTimeout, 0, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewUpstreamError(service, KindTimeout, 0, "request timed out", err)
	}
	if errors.As(err, &netErr) || isConnectionError(err.Error()) {
		return NewUpstreamError(service, KindNetwork, 0, "network error", err)
	}

	return NewUpstreamError(service, KindUnknown, 0, "unexpected error", err)
}

// isConnectionError checks if the error message indicates a connection problem.
func isConnectionError(errMsg string) bool {
	connectionKeywords := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"eof",
		"dial tcp",
		"socks connect",
	}

	lower := strings.ToLower(errMsg)
	for _, keyword := range connectionKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// KindOf returns the ErrorKind carried by err, or KindUnknown.
func KindOf(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a transient upstream failure worth
// retrying: timeouts, network errors and 5xx responses.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindNetwork, KindServerError:
		return true
	default:
		return false
	}
}

// IsUnauthorized checks if the error is a credential rejection.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// IsQuotaError checks if the error is a quota or throttling rejection.
func IsQuotaError(err error) bool {
	k := KindOf(err)
	return k == KindQuotaExceeded || k == KindRateLimited
}

// IsNotConfigured checks if the error reports a missing credential.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// IsCircuitOpen checks if the error is a breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrOpen)
}

// BadRequest returns a kratos 400 error for caller input problems.
func BadRequest(format string, args ...any) *kerrors.Error {
	return kerrors.New(http.StatusBadRequest, ReasonBadRequest, fmt.Sprintf(format, args...))
}

// ToKratos converts any gateway error into a kratos error carrying a
// provider-attributed, human-readable message. Errors that already are
// kratos errors are returned unchanged.
func ToKratos(err error) *kerrors.Error {
	if err == nil {
		return nil
	}

	var ke *kerrors.Error
	if errors.As(err, &ke) {
		return ke
	}

	var openErr *circuitbreaker.OpenError
	if errors.As(err, &openErr) {
		msg := fmt.Sprintf("%s is temporarily unavailable after repeated failures", openErr.Service)
		if openErr.RetryAfter > 0 {
			msg += fmt.Sprintf(", retry in %s", openErr.RetryAfter.Round(time.Second))
		}
		return kerrors.New(http.StatusServiceUnavailable, ReasonCircuitOpen, msg).
			WithCause(err).
			WithMetadata(map[string]string{
				"service":     openErr.Service,
				"retry_after": fmt.Sprintf("%d", int64(math.Ceil(openErr.RetryAfter.Seconds()))),
			})
	}

	var nc *NotConfiguredError
	if errors.As(err, &nc) {
		return kerrors.New(http.StatusServiceUnavailable, ReasonNotConfigured,
			fmt.Sprintf("%s provider is not configured: set its API key", nc.Service)).
			WithCause(err).
			WithMetadata(map[string]string{"service": nc.Service})
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		code, reason, msg := describe(ue)
		return kerrors.New(code, reason, msg).
			WithCause(err).
			WithMetadata(map[string]string{
				"service": ue.Service,
				"kind":    ue.Kind.String(),
			})
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return kerrors.New(http.StatusGatewayTimeout, ReasonRequestTimeout, "request deadline exceeded").WithCause(err)
	case errors.Is(err, context.Canceled):
		return kerrors.New(499, ReasonRequestCancelled, "request cancelled").WithCause(err)
	}

	return kerrors.New(http.StatusInternalServerError, ReasonInternal, err.Error()).WithCause(err)
}

func describe(ue *UpstreamError) (int, string, string) {
	svc := ue.Service
	switch ue.Kind {
	case KindTimeout:
		return http.StatusGatewayTimeout, ReasonTimeout,
			fmt.Sprintf("%s provider did not respond in time", svc)
	case KindNetwork:
		return http.StatusBadGateway, ReasonNetwork,
			fmt.Sprintf("%s provider is unreachable", svc)
	case KindUnauthorized:
		return http.StatusBadGateway, ReasonUnauthorized,
			fmt.Sprintf("%s provider rejected the API key", svc)
	case KindQuotaExceeded:
		return http.StatusTooManyRequests, ReasonQuotaExceeded,
			fmt.Sprintf("%s provider quota is exhausted", svc)
	case KindRateLimited:
		return http.StatusTooManyRequests, ReasonRateLimited,
			fmt.Sprintf("%s provider is throttling requests, slow down", svc)
	case KindServerError:
		return http.StatusBadGateway, ReasonServerError,
			fmt.Sprintf("%s provider is experiencing an outage", svc)
	case KindInvalidRequest:
		msg := fmt.Sprintf("%s provider rejected the request", svc)
		if ue.Message != "" {
			msg += ": " + ue.Message
		}
		return http.StatusBadRequest, ReasonInvalidRequest, msg
	default:
		return http.StatusBadGateway, ReasonUnknown,
			fmt.Sprintf("%s provider returned an unexpected error", svc)
	}
}
