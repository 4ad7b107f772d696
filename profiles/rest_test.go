package profiles

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dpup/libtask/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRESTStore_RequiresURL(t *testing.T) {
	_, err := NewRESTStore(" ", "anon")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRESTStore_Role(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[{"role":"admin"}]`))
	}))
	t.Cleanup(srv.Close)

	s, err := NewRESTStore(srv.URL+"/", "anon-key", WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	role, err := s.Role(t.Context(), "user-1", "caller-token")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	require.NotNil(t, got)
	assert.Equal(t, "/rest/v1/profiles", got.URL.Path)
	assert.Equal(t, "role", got.URL.Query().Get("select"))
	assert.Equal(t, "eq.user-1", got.URL.Query().Get("id"))
	assert.Equal(t, "anon-key", got.Header.Get("apikey"))
	assert.Equal(t, "Bearer caller-token", got.Header.Get("Authorization"))
}

func TestRESTStore_Role_NotFound(t *testing.T) {
	for name, body := range map[string]string{
		"no rows":    `[]`,
		"null role":  `[{"role":null}]`,
		"empty role": `[{"role":""}]`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			t.Cleanup(srv.Close)

			s, err := NewRESTStore(srv.URL, "anon", WithHTTPClient(srv.Client()))
			require.NoError(t, err)

			_, err = s.Role(t.Context(), "user-1", "tok")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestRESTStore_Role_Unavailable(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"JWT expired"}`, http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		s, err := NewRESTStore(srv.URL, "anon", WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		_, err = s.Role(t.Context(), "user-1", "tok")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.Contains(t, err.Error(), "401")
		assert.Equal(t, "profile store unavailable", errors.PublicMessage(err))
	})

	t.Run("bad json", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"not":"a list"}`))
		}))
		t.Cleanup(srv.Close)

		s, err := NewRESTStore(srv.URL, "anon", WithHTTPClient(srv.Client()))
		require.NoError(t, err)

		_, err = s.Role(t.Context(), "user-1", "tok")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		s, err := NewRESTStore(url, "anon")
		require.NoError(t, err)

		_, err = s.Role(t.Context(), "user-1", "tok")
		assert.ErrorIs(t, err, ErrUnavailable)
	})
}

func TestRESTStore_ListByRole(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		_, _ = w.Write([]byte(`[
			{"id":"u1","full_name":"Ada","role":"staff","created_at":"2024-01-02T03:04:05.123456+00:00","updated_at":null},
			{"id":"u2","full_name":null,"role":"staff","created_at":null,"updated_at":null}
		]`))
	}))
	t.Cleanup(srv.Close)

	s, err := NewRESTStore(srv.URL, "anon", WithHTTPClient(srv.Client()), WithTable("staff_profiles"))
	require.NoError(t, err)

	rows, err := s.ListByRole(t.Context(), "staff", "tok")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Ada", rows[0].FullName)
	assert.Equal(t, 2024, rows[0].CreatedAt.Year())
	assert.Equal(t, "", rows[1].FullName)
	assert.True(t, rows[1].CreatedAt.Equal(time.Time{}))

	assert.Equal(t, "/rest/v1/staff_profiles", got.URL.Path)
	assert.Equal(t, "eq.staff", got.URL.Query().Get("role"))
	assert.Equal(t, "full_name.asc.nullslast", got.URL.Query().Get("order"))
}

func TestRESTStore_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	s, err := NewRESTStore(srv.URL, "anon", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	assert.NoError(t, s.Ping(t.Context(), "tok"))
}
