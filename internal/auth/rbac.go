package auth

import (
	"net/http"

	"github.com/nikhilbhutani/staffcore/internal/tenant"
)

// RequirePermission admits operators holding perm. Services check the
// finer per-side permissions themselves; this guards whole route groups.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := tenant.ActorFromContext(req.Context())
			if actor == nil {
				writeError(w, http.StatusForbidden, "no actor in context")
				return
			}
			if !actor.Has(perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// RequireKind admits only actors of one of kinds.
func RequireKind(kinds ...tenant.ActorKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := tenant.ActorFromContext(req.Context())
			if actor != nil {
				for _, k := range kinds {
					if actor.Kind == k {
						next.ServeHTTP(w, req)
						return
					}
				}
			}
			writeError(w, http.StatusForbidden, "not available to this account")
		})
	}
}
