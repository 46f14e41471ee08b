package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// Recover converts handler panics into a JSON 500 carrying the request id,
// so a broken healthcheck scrape never takes the daemon down with it.
func Recover(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}

				requestID, _ := r.Context().Value(RequestIDKey).(string)
				if requestID == "" {
					// RequestID runs inside this middleware; its id is on the
					// response header rather than on this request's context.
					requestID = w.Header().Get("X-Request-ID")
				}
				log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("http handler panicked")

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprintf(w, `{"error":"internal server error","request_id":%q}`, requestID)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
