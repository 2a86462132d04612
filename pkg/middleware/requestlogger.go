package middleware

import (
	"log/slog"
	"net/http"

	"github.com/enginerror/Shopping-Cart/pkg/logger"
)

// RequestLogger builds a request-scoped logger carrying correlation_id,
// session_id, trace_id and span_id and stores it in the request context.
// Handlers retrieve it with logger.FromContext.
//
// Mount it after RequestLogging, Tracing and the session middleware so all
// fields are already present in the context.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			enriched := logger.WithContext(ctx, base)
			ctx = logger.NewContext(ctx, enriched)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
