package rbac

import (
	"encoding/json"
	"net/http"
)

// Require enforces a single permission.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool { return Can(r.Context(), perm) })
}

// RequireAny enforces that the role has at least one of the permissions.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool {
		return defaultChecker.Any(RoleFromContext(r.Context()), perms...)
	})
}

// RequireOwnerOr passes owners through and everyone else only with perm.
func RequireOwnerOr(perm string, isOwner func(r *http.Request) bool) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) bool { return isOwner(r) || Can(r.Context(), perm) })
}

func guard(allow func(r *http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allow(r) {
				Forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Forbidden writes the JSON 403 body used across the API.
func Forbidden(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "forbidden"})
}
