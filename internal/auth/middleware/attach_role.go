package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the learners table row
// when one exists. allowClaimFallback=true keeps the claim for subjects
// not in the table (offline mode); false denies them unless admin.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM learners WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case err == nil || errors.Is(err, sql.ErrNoRows):
				if claimRole == RoleAdmin || (allowClaimFallback && claimRole != "") {
					next.ServeHTTP(w, r)
					return
				}
				rbac.Forbidden(w)
			default:
				if allowClaimFallback && claimRole != "" {
					next.ServeHTTP(w, r)
					return
				}
				rbac.Forbidden(w)
			}
		})
	}
}
