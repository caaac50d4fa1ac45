package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RoleFunc resolves the caller's role for a request. It returns false when
// the caller is unknown.
type RoleFunc func(*http.Request) (string, bool)

// RequireAnyRole lets the request through when the caller holds one of
// roles. Unknown callers get 401, known callers without the role get 403.
func RequireAnyRole(roleOf RoleFunc, roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := roleOf(r)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "caller is not a known user")
				return
			}
			if !slices.Contains(roles, role) {
				WriteError(w, http.StatusForbidden, "forbidden",
					"requires one of: "+strings.Join(roles, ", "))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
