package auth

import (
	"context"
	"strings"

	"github.com/dpup/libtask/logging"
	"google.golang.org/grpc/metadata"
)

// Identity is an authenticated user, built fresh for every request.
type Identity struct {
	// Subject of the token, the provider's user id.
	UserID string `json:"user_id"`

	Email string `json:"email"`

	// Role used for authorization decisions.
	EffectiveRole Role `json:"app_role"`

	// Role hint found in the token metadata. Informational.
	ClaimRole Role `json:"jwt_role"`

	// Role stored in the profile store, empty when there is none.
	BackingRole Role `json:"db_role"`

	RawClaims map[string]any `json:"-"`
	RawToken  string         `json:"-"`
}

// TokenVerifier verifies an access token. *Verifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*TokenClaims, error)
}

// Authenticator builds identities from access tokens.
type Authenticator struct {
	verifier TokenVerifier
	resolver *RoleResolver
}

// NewAuthenticator returns an authenticator. A nil resolver resolves every
// user to DefaultRole.
func NewAuthenticator(verifier TokenVerifier, resolver *RoleResolver) *Authenticator {
	if resolver == nil {
		resolver = NewRoleResolver(nil)
	}
	return &Authenticator{verifier: verifier, resolver: resolver}
}

// Authenticate verifies rawToken and resolves the user's role.
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	claims, err := a.verifier.Verify(ctx, rawToken)
	if err != nil {
		return Identity{}, err
	}
	if claims.Subject == "" {
		return Identity{}, unauthenticated("token has no subject")
	}

	roles := a.resolver.Resolve(ctx, claims, rawToken)

	logging.Track(ctx, "auth.user_id", claims.Subject)
	logging.Track(ctx, "auth.role", string(roles.Effective))

	return Identity{
		UserID:        claims.Subject,
		Email:         claims.Email,
		EffectiveRole: roles.Effective,
		ClaimRole:     roles.Claim,
		BackingRole:   roles.Backing,
		RawClaims:     claims.Raw,
		RawToken:      rawToken,
	}, nil
}

// AuthenticateHeader is Authenticate for a raw Authorization header value.
func (a *Authenticator) AuthenticateHeader(ctx context.Context, header string) (Identity, error) {
	token, err := TokenFromHeader(header)
	if err != nil {
		return Identity{}, err
	}
	return a.Authenticate(ctx, token)
}

// GetCurrentIdentity returns the identity attached to ctx by the middleware
// or interceptor. Failing that it authenticates the "authorization" value of
// the incoming gRPC metadata.
func (a *Authenticator) GetCurrentIdentity(ctx context.Context) (Identity, error) {
	if id, ok := IdentityFromContext(ctx); ok {
		return id, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	values := md.Get("authorization")
	if len(values) == 0 || values[0] == "" {
		return Identity{}, unauthenticated("missing authorization metadata")
	}
	return a.AuthenticateHeader(ctx, values[0])
}

type identityKey struct{}

// WithIdentity attaches id to the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached with WithIdentity.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
