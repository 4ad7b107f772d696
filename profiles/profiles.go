// Package profiles reads user profiles, and in particular the application
// role, from the backing store.
//
// Two backends exist. RESTStore talks to a PostgREST endpoint using the
// caller's own access token, so row level security decides what is visible.
// SQLStore queries a database directly with the service's credentials.
package profiles

import (
	"context"
	"time"

	"github.com/dpup/libtask/errors"
	"google.golang.org/grpc/codes"
)

// DefaultTable holds one row per user, keyed by the provider's user id.
const DefaultTable = "profiles"

var (
	// ErrNotFound is returned when no profile, or no role, exists for a user.
	ErrNotFound = errors.NewC("profiles: not found", codes.NotFound).
			WithPublicMessage("profile not found")

	// ErrUnavailable is returned when the store can't be reached or answers
	// with something unexpected.
	ErrUnavailable = errors.NewC("profiles: store unavailable", codes.Unavailable).
			WithPublicMessage("profile store unavailable")

	// ErrInvalidConfig is returned by constructors given unusable settings.
	ErrInvalidConfig = errors.NewC("profiles: invalid configuration", codes.FailedPrecondition)
)

// Store looks up a user's role. The token is the caller's access token, which
// backends may use as the credential for the lookup.
type Store interface {
	Role(ctx context.Context, userID, token string) (string, error)
}

// Lister lists profiles holding a given role.
type Lister interface {
	ListByRole(ctx context.Context, role, token string) ([]Profile, error)
}

// Pinger checks that the store is reachable with the given credential.
type Pinger interface {
	Ping(ctx context.Context, token string) error
}

// Profile is a row of the profiles table.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
