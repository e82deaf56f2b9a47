package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// UpstreamError carries the HTTP status and body snippet of a failed call to
// an upstream service (job source or geocoding provider).
type UpstreamError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: upstream returned status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: upstream returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewUpstreamError wraps a non-2xx upstream response.
func NewUpstreamError(service string, statusCode int, body string) *UpstreamError {
	const maxBody = 200
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &UpstreamError{Service: service, StatusCode: statusCode, Body: strings.TrimSpace(body)}
}

// IsTransient reports whether the error looks like a transient upstream or
// network failure. Transient failures count toward opening a breaker but are
// recovered locally where a fallback provider exists.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ue *UpstreamError
	if errors.As(err, &ue) {
		return IsTransientHTTPStatus(ue.StatusCode)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the status code indicates a
// transient server-side issue.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
