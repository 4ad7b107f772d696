package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func TestUnaryServerInterceptor(t *testing.T) {
	f := newFixture(t)
	f.provider.AddES256("k1")
	staffToken := f.provider.Sign("k1", f.claims("staff-1"))

	store := &mockStore{}
	store.On("Role", mock.Anything, "staff-1", mock.Anything).Return("staff", nil)
	a := NewAuthenticator(f.verifier, NewRoleResolver(store))

	interceptor := a.UnaryServerInterceptor(
		WithPublicMethods("/grpc.health.v1.Health/Check"),
		WithMethodGuard("/libtask.Admin/ListStaff", RequireAdmin),
	)

	handler := func(ctx context.Context, _ any) (any, error) {
		id, ok := IdentityFromContext(ctx)
		if !ok {
			return "anonymous", nil
		}
		return id.UserID, nil
	}
	call := func(method, authorization string) (any, error) {
		ctx := t.Context()
		if authorization != "" {
			ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", authorization))
		}
		return interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method}, handler)
	}

	t.Run("public method", func(t *testing.T) {
		resp, err := call("/grpc.health.v1.Health/Check", "")
		require.NoError(t, err)
		assert.Equal(t, "anonymous", resp)
	})

	t.Run("missing token", func(t *testing.T) {
		_, err := call("/libtask.Tasks/List", "")
		st, _ := status.FromError(err)
		assert.Equal(t, codes.Unauthenticated, st.Code())
		assert.Equal(t, "invalid or expired token", st.Message())
	})

	t.Run("authenticated", func(t *testing.T) {
		resp, err := call("/libtask.Tasks/List", "Bearer "+staffToken)
		require.NoError(t, err)
		assert.Equal(t, "staff-1", resp)
	})

	t.Run("guarded", func(t *testing.T) {
		_, err := call("/libtask.Admin/ListStaff", "Bearer "+staffToken)
		st, _ := status.FromError(err)
		assert.Equal(t, codes.PermissionDenied, st.Code())
		assert.Equal(t, "insufficient privileges", st.Message())
	})
}
