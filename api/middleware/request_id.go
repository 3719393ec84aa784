package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// RequestID echoes a caller supplied id or mints one, and makes it available
// through RequestIDFromContext and on every log line of the request.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := acceptRequestID(r.Header.Get(requestIDHeader))
			w.Header().Set(requestIDHeader, id)

			ctx := withValue(r.Context(), ctxRequestID, id)
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// acceptRequestID keeps ids that are short printable ASCII so a caller
// cannot inject control bytes or whitespace into log lines.
func acceptRequestID(id string) string {
	unprintable := func(r rune) bool { return r < '!' || r > '~' }
	if id == "" || len(id) > maxRequestIDLength || strings.IndexFunc(id, unprintable) >= 0 {
		return uuid.NewString()
	}
	return id
}
