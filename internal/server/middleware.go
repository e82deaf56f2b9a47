package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// rateLimit admits requests per client identity through the fixed-window
// limiter. A rejection is control flow, not an error: the client gets an
// explicit retry hint both as a Retry-After header and in the body.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := s.limiter.Admit(clientIP(r))
		if !d.Allowed {
			seconds := int(d.RetryAfter.Round(time.Second) / time.Second)
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"message":        "rate limit exceeded",
				"retry_after_ms": d.RetryAfter.Milliseconds(),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP identifies the caller: first hop of X-Forwarded-For when present,
// otherwise the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
