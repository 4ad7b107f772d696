package auth

import (
	"context"
	"strings"
	"time"

	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/logging"
	"github.com/dpup/libtask/profiles"
)

// DefaultRoleLookupTimeout bounds the backing store lookup.
const DefaultRoleLookupTimeout = 15 * time.Second

// ClaimPath addresses a value nested in the token payload, e.g.
// {"user_metadata", "app_role"}.
type ClaimPath []string

func (p ClaimPath) String() string {
	return strings.Join(p, ".")
}

// DefaultClaimPaths are checked in order for a role claim.
var DefaultClaimPaths = []ClaimPath{
	{"user_metadata", "app_role"},
	{"user_metadata", "role"},
	{"app_metadata", "app_role"},
	{"app_metadata", "role"},
}

// RoleResolution records where a user's role came from. An empty Claim or
// Backing means that source had no value.
type RoleResolution struct {
	Effective Role
	Claim     Role
	Backing   Role
}

// ResolverOption customizes a RoleResolver.
type ResolverOption func(*RoleResolver)

// WithClaimPaths replaces the claim paths searched for a role.
func WithClaimPaths(paths ...ClaimPath) ResolverOption {
	return func(r *RoleResolver) {
		r.paths = paths
	}
}

// WithLookupTimeout bounds each backing store lookup.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *RoleResolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// RoleResolver works out a user's application role.
//
// The backing store is authoritative. The role carried in the token is user
// editable metadata in most provider setups, so it is only reported, never
// trusted. When the store has no role, or can't be reached, the user gets
// DefaultRole.
type RoleResolver struct {
	store   profiles.Store
	paths   []ClaimPath
	timeout time.Duration
}

// NewRoleResolver returns a resolver using store for lookups. A nil store is
// allowed and behaves like a store with no rows.
func NewRoleResolver(store profiles.Store, opts ...ResolverOption) *RoleResolver {
	r := &RoleResolver{
		store:   store,
		paths:   DefaultClaimPaths,
		timeout: DefaultRoleLookupTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve never fails. Lookup errors are logged and treated as "no role".
func (r *RoleResolver) Resolve(ctx context.Context, claims *TokenClaims, rawToken string) RoleResolution {
	res := RoleResolution{
		Claim:   r.claimRole(claims),
		Backing: r.backingRole(ctx, claims, rawToken),
	}
	res.Effective = res.Backing
	if res.Effective == "" {
		res.Effective = DefaultRole
	}
	return res
}

// claimRole returns the first non-empty string found along the claim paths.
func (r *RoleResolver) claimRole(claims *TokenClaims) Role {
	for _, path := range r.paths {
		v, ok := claims.lookup(path)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if role := normalizeRole(s); role != "" {
				return role
			}
		}
	}
	return ""
}

func (r *RoleResolver) backingRole(ctx context.Context, claims *TokenClaims, rawToken string) Role {
	if r.store == nil || claims == nil || claims.Subject == "" {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	role, err := r.store.Role(ctx, claims.Subject, rawToken)
	if errors.Is(err, profiles.ErrNotFound) {
		logging.Debugw(ctx, "auth: no stored role", "auth.user_id", claims.Subject)
		return ""
	}
	if err != nil {
		logging.Warnw(ctx, "auth: role lookup failed, using default role",
			"auth.user_id", claims.Subject,
			"error", err)
		return ""
	}
	return normalizeRole(role)
}
