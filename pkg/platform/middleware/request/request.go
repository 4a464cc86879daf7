// Package request provides middleware that stamps every request with a
// correlation ID and a request-scoped timestamp. Downstream services read
// both through pkg/requestcontext, which keeps every write within one logical
// operation at the same instant.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"agentledger/pkg/requestcontext"
)

// HeaderRequestID is the inbound/outbound correlation header.
const HeaderRequestID = "X-Request-Id"

// Stamp assigns a request ID (honoring an inbound header) and freezes the
// request time in context.
func Stamp(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, requestcontext.Now(ctx))

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID; kept for middleware-local call sites.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
