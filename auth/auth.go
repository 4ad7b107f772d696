// Package auth turns a bearer token issued by the identity provider into an
// Identity with an application role, and guards handlers by that role.
//
// The flow for each request is:
//
//	Authorization header → TokenFromHeader → Verifier.Verify → TokenClaims
//	  → RoleResolver.Resolve → Identity → RequireAdmin / RequireStaffOrAdmin
//
// Verification failures of any kind surface as ErrUnauthenticated with a
// generic public message. The specific cause is kept in the internal error
// message and logged, never returned to the caller.
package auth

import (
	"strings"

	"github.com/dpup/libtask/errors"
	"google.golang.org/grpc/codes"
)

var (
	// ErrUnauthenticated is returned for any missing, malformed, expired or
	// otherwise unverifiable token.
	ErrUnauthenticated = errors.NewC("unauthenticated", codes.Unauthenticated).
				WithPublicMessage("invalid or expired token")

	// ErrForbidden is returned by the guards when the caller's role does not
	// permit the operation.
	ErrForbidden = errors.NewC("forbidden", codes.PermissionDenied).
			WithPublicMessage("insufficient privileges")

	// ErrNotConfigured is returned at construction when verification can't
	// work with the settings given.
	ErrNotConfigured = errors.NewC("auth: not configured", codes.FailedPrecondition).
				WithPublicMessage("authentication is not configured")
)

// Role is an application role.
type Role string

const (
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"

	// DefaultRole is granted to authenticated users without a stored role.
	DefaultRole = RoleStaff
)

// normalizeRole lower-cases and trims a role value. Unknown values are kept
// so that the guards can reject them.
func normalizeRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

func unauthenticated(reason string) *errors.Error {
	return errors.Mark(ErrUnauthenticated, 1).Append(reason)
}
