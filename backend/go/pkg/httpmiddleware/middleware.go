package httpmiddleware

import (
	"Neurologix/backend/go/pkg/circuitbreaker"
	"Neurologix/backend/go/pkg/ratelimiter"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyFunc identifies the caller a request is rate limited as.
type KeyFunc func(r *http.Request) string

// ClientAddress keys requests by the first X-Forwarded-For hop, falling back
// to the remote address.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeError writes the same error envelope the query API uses.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

// RateLimit rejects requests once the caller's limiter is exhausted.
func RateLimit(limiter *ratelimiter.Keyed, key KeyFunc) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientAddress
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(key(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "RateLimited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter captures the status code. It forwards Flush so SSE
// responses stream through the wrapper.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wrote {
		rw.statusCode = code
		rw.wrote = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wrote = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Flush() {
	rw.wrote = true
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// errServerStatus reports a 5xx response to the breaker.
var errServerStatus = errors.New("server error status")

// CircuitBreak sheds load while the handler keeps answering with 5xx.
// A request the client abandoned is not counted against the backend.
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			err := breaker.Execute(func() error {
				next.ServeHTTP(rw, r)
				if err := r.Context().Err(); err != nil {
					return err
				}
				if rw.statusCode >= http.StatusInternalServerError {
					return fmt.Errorf("%w: %d", errServerStatus, rw.statusCode)
				}
				return nil
			})

			if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyProbes) {
				w.Header().Set("Retry-After", "5")
				writeError(w, http.StatusServiceUnavailable, "Unavailable", "service unavailable: circuit breaker is open")
			}
		})
	}
}
