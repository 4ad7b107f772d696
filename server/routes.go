package server

import (
	"net/http"

	"github.com/dpup/libtask/auth"
	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/profiles"
	"github.com/dpup/libtask/serverutil"
	"google.golang.org/grpc/codes"
)

var errNotSupported = errors.NewC("server: profile store does not support this operation", codes.Unimplemented).
	WithPublicMessage("not supported by the configured profile store")

type routes struct {
	authn       *auth.Authenticator
	store       profiles.Store
	debugConfig func() map[string]any
}

func (rt *routes) handlers() map[string]http.Handler {
	h := map[string]http.Handler{
		"GET /healthz": http.HandlerFunc(rt.healthz),
	}
	if rt.authn != nil {
		authed := rt.authn.Middleware
		h["GET /me"] = authed(http.HandlerFunc(rt.me))
		h["GET /health/store"] = authed(auth.RequireStaffOrAdminHandler(http.HandlerFunc(rt.healthStore)))
		h["GET /staff"] = authed(auth.RequireAdminHandler(http.HandlerFunc(rt.staff)))
	}
	if rt.debugConfig != nil {
		h["GET /debug/config"] = http.HandlerFunc(rt.config)
	}
	return h
}

func (rt *routes) healthz(w http.ResponseWriter, r *http.Request) {
	serverutil.WriteJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *routes) me(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	serverutil.WriteJSON(r.Context(), w, http.StatusOK, id)
}

// healthStore reads through the profile store with the caller's token, which
// proves transport, token and row level security together.
func (rt *routes) healthStore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pinger, ok := rt.store.(profiles.Pinger)
	if !ok {
		serverutil.WriteError(ctx, w, errNotSupported)
		return
	}
	id, _ := auth.IdentityFromContext(ctx)
	if err := pinger.Ping(ctx, id.RawToken); err != nil {
		serverutil.WriteError(ctx, w, err)
		return
	}
	serverutil.WriteJSON(ctx, w, http.StatusOK, map[string]bool{"ok": true})
}

func (rt *routes) staff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lister, ok := rt.store.(profiles.Lister)
	if !ok {
		serverutil.WriteError(ctx, w, errNotSupported)
		return
	}
	id, _ := auth.IdentityFromContext(ctx)
	rows, err := lister.ListByRole(ctx, string(auth.RoleStaff), id.RawToken)
	if err != nil {
		serverutil.WriteError(ctx, w, err)
		return
	}
	serverutil.WriteJSON(ctx, w, http.StatusOK, rows)
}

func (rt *routes) config(w http.ResponseWriter, r *http.Request) {
	serverutil.WriteJSON(r.Context(), w, http.StatusOK, rt.debugConfig())
}
