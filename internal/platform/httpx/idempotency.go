package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// IdempotencyHeader carries the client supplied request key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyGuard records processed request keys. *shared.IdempotencyStore satisfies it.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Idempotent rejects a replayed Idempotency-Key with 409. Requests without the header pass
// through. A key whose request fails is released so the client can retry it.
func Idempotent(guard IdempotencyGuard, module string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if guard == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(IdempotencyHeader)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key, err := shared.ParseIdempotencyKey(raw)
			if err != nil {
				RespondError(w, r, err)
				return
			}
			if err := guard.CheckAndInsert(r.Context(), key, module); err != nil {
				RespondError(w, r, err)
				return
			}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if ww.Status() >= http.StatusBadRequest {
				if err := guard.Delete(context.WithoutCancel(r.Context()), key); err != nil && logger != nil {
					logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
				}
			}
		})
	}
}
