package identity

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Authenticate resolves the bearer token into a principal and rejects the request with 401
// when the token is missing or invalid.
func Authenticate(v *Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httpx.RespondError(w, r, shared.ErrUnauthenticated)
				return
			}
			p, err := v.Verify(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if logger != nil {
					logger.Debug("reject token", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireCashier rejects principals without cashier authority with 403.
func RequireCashier(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		switch {
		case !ok:
			httpx.RespondError(w, r, shared.ErrUnauthenticated)
		case !p.CashierAuthority:
			httpx.RespondError(w, r, shared.ErrForbidden)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
