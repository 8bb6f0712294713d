package auth

import (
	"net/http"
	"strings"

	"shepherd/internal/pkg/httputil"
)

// Middleware rejects requests without a valid bearer token and stores the
// token's scope in the request context.
func Middleware(i *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				httputil.WriteError(w, ErrUnauthenticated)
				return
			}
			scope, err := i.Verify(token)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithScope(r.Context(), scope)))
		})
	}
}

// RequireRole allows the request through only when the scope holds one of
// roles. It must run after Middleware.
func RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, err := ScopeFrom(r.Context())
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
			if !scope.Allows(roles...) {
				httputil.WriteError(w, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
