// Package middleware provides HTTP middleware for PriceScout.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/pricescout/pricescout/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID, or mints a UUID when
// the header is absent. The ID is stored in the request context and
// echoed on the response so clients can correlate logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}
