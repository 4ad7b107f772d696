package auth

import "github.com/dpup/libtask/errors"

// Guard checks an identity before a privileged operation. It returns the
// identity unchanged so calls can be chained.
type Guard func(Identity) (Identity, error)

// RequireAdmin permits admins only.
func RequireAdmin(id Identity) (Identity, error) {
	if id.EffectiveRole != RoleAdmin {
		return id, forbidden(id, RoleAdmin)
	}
	return id, nil
}

// RequireStaffOrAdmin permits staff and admins.
func RequireStaffOrAdmin(id Identity) (Identity, error) {
	switch id.EffectiveRole {
	case RoleStaff, RoleAdmin:
		return id, nil
	}
	return id, forbidden(id, RoleStaff)
}

func forbidden(id Identity, want Role) error {
	return errors.Mark(ErrForbidden, 2).Appendf("user %s has role %q, need %q", id.UserID, id.EffectiveRole, want)
}
