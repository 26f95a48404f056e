// Package request assigns a correlation ID to every inbound request and pins
// the request clock so downstream services observe one consistent "now".
package request

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"pharmatrust/pkg/requestcontext"
)

// HeaderRequestID is echoed back to clients for support correlation.
const HeaderRequestID = "X-Request-Id"

// RequestID middleware generates a request ID (or adopts the inbound one) and
// stores it with the request time in the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
