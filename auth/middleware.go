package auth

import (
	"net/http"

	"github.com/dpup/libtask/serverutil"
)

// Middleware authenticates the Authorization header and attaches the
// identity to the request context. Requests without a valid token get a 401.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, err := a.AuthenticateHeader(ctx, r.Header.Get("Authorization"))
		if err != nil {
			serverutil.WriteError(ctx, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, id)))
	})
}

// RequireAdminHandler only lets admins through. It must run after
// Middleware.
func RequireAdminHandler(next http.Handler) http.Handler {
	return guardHandler(RequireAdmin, next)
}

// RequireStaffOrAdminHandler lets staff and admins through. It must run after
// Middleware.
func RequireStaffOrAdminHandler(next http.Handler) http.Handler {
	return guardHandler(RequireStaffOrAdmin, next)
}

func guardHandler(guard Guard, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, ok := IdentityFromContext(ctx)
		if !ok {
			serverutil.WriteError(ctx, w, unauthenticated("no identity on request"))
			return
		}
		if _, err := guard(id); err != nil {
			serverutil.WriteError(ctx, w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
