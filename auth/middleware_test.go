package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dpup/libtask/serverutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := IdentityFromContext(r.Context())
		serverutil.WriteJSON(r.Context(), w, http.StatusOK, id)
	})
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) serverutil.ErrorResponse {
	t.Helper()
	var body serverutil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestMiddleware(t *testing.T) {
	f := newFixture(t)
	f.provider.AddES256("k1")
	staffToken := f.provider.Sign("k1", f.claims("staff-1"))
	adminToken := f.provider.Sign("k1", f.claims("admin-1"))

	store := &mockStore{}
	store.On("Role", mock.Anything, "staff-1", mock.Anything).Return("staff", nil)
	store.On("Role", mock.Anything, "admin-1", mock.Anything).Return("admin", nil)
	a := NewAuthenticator(f.verifier, NewRoleResolver(store))

	mux := http.NewServeMux()
	mux.Handle("/me", a.Middleware(echoIdentity()))
	mux.Handle("/staff", a.Middleware(RequireAdminHandler(echoIdentity())))
	mux.Handle("/tasks", a.Middleware(RequireStaffOrAdminHandler(echoIdentity())))

	tests := []struct {
		name    string
		path    string
		header  string
		status  int
		message string
	}{
		{"no header", "/me", "", http.StatusUnauthorized, "invalid or expired token"},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized, "invalid or expired token"},
		{"staff me", "/me", "Bearer " + staffToken, http.StatusOK, ""},
		{"staff on admin route", "/staff", "Bearer " + staffToken, http.StatusForbidden, "insufficient privileges"},
		{"admin on admin route", "/staff", "Bearer " + adminToken, http.StatusOK, ""},
		{"staff on staff route", "/tasks", "Bearer " + staffToken, http.StatusOK, ""},
		{"admin on staff route", "/tasks", "Bearer " + adminToken, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, r)

			assert.Equal(t, tt.status, w.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decodeError(t, w).Message)
			}
		})
	}
}

func TestMiddleware_IdentityJSON(t *testing.T) {
	f := newFixture(t)
	f.provider.AddES256("k1")
	claims := f.claims("user-1")
	claims["user_metadata"] = map[string]any{"role": "admin"}
	token := f.provider.Sign("k1", claims)

	r := httptest.NewRequest(http.MethodGet, "/me", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	NewAuthenticator(f.verifier, nil).Middleware(echoIdentity()).ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"user_id": "user-1",
		"email": "user-1@example.com",
		"app_role": "staff",
		"jwt_role": "admin",
		"db_role": ""
	}`, w.Body.String())
}

func TestGuardHandler_NoIdentity(t *testing.T) {
	w := httptest.NewRecorder()
	RequireStaffOrAdminHandler(echoIdentity()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Unauthenticated", decodeError(t, w).CodeName)
}
