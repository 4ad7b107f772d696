package auth

import (
	"testing"

	"github.com/dpup/libtask/errors"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestGuards(t *testing.T) {
	tests := []struct {
		role         Role
		admin        bool
		staffOrAdmin bool
	}{
		{RoleAdmin, true, true},
		{RoleStaff, false, true},
		{"", false, false},
		{"owner", false, false},
		{"Admin", false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			id := Identity{UserID: "u1", EffectiveRole: tt.role}

			got, err := RequireAdmin(id)
			assert.Equal(t, id, got)
			if tt.admin {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}

			got, err = RequireStaffOrAdmin(id)
			assert.Equal(t, id, got)
			if tt.staffOrAdmin {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrForbidden)
			}
		})
	}
}

func TestGuards_PublicMessage(t *testing.T) {
	_, err := RequireAdmin(Identity{UserID: "u1", EffectiveRole: RoleStaff})

	assert.Equal(t, codes.PermissionDenied, errors.Code(err))
	assert.Equal(t, "insufficient privileges", errors.PublicMessage(err))
	assert.Contains(t, err.Error(), `role "staff"`)
}
