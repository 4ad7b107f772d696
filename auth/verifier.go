package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"strings"
	"time"

	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/jwks"
	"github.com/dpup/libtask/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// DefaultAudience is the audience the provider puts in user access tokens.
const DefaultAudience = "authenticated"

// Accepted signing algorithms. Symmetric algorithms are never accepted.
var supportedAlgs = map[string]bool{
	jwt.SigningMethodES256.Alg(): true,
	jwt.SigningMethodRS256.Alg(): true,
}

// KeySource supplies the provider's signing keys. *jwks.Cache implements it.
type KeySource interface {
	Get(ctx context.Context, forceRefresh bool) (*jwks.KeySet, error)
}

// VerifierOption customizes a Verifier.
type VerifierOption func(*Verifier)

// WithProviderURL derives the expected issuer, <url>/auth/v1, unless an issuer
// is set explicitly.
func WithProviderURL(url string) VerifierOption {
	return func(v *Verifier) {
		v.providerURL = strings.TrimRight(strings.TrimSpace(url), "/")
	}
}

// WithIssuer sets the expected issuer.
func WithIssuer(issuer string) VerifierOption {
	return func(v *Verifier) {
		v.issuer = strings.TrimSpace(issuer)
	}
}

// WithAudience sets the expected audience.
func WithAudience(audience string) VerifierOption {
	return func(v *Verifier) {
		v.audience = strings.TrimSpace(audience)
	}
}

// WithLeeway tolerates clock skew on exp, nbf and iat.
func WithLeeway(leeway time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.leeway = leeway
	}
}

// WithVerifierClock sets the clock used for expiry checks.
func WithVerifierClock(clk clock.Clock) VerifierOption {
	return func(v *Verifier) {
		v.clock = clk
	}
}

// Verifier checks signature, issuer, audience and expiry of access tokens
// against the provider's published keys.
type Verifier struct {
	keys        KeySource
	providerURL string
	issuer      string
	audience    string
	leeway      time.Duration
	clock       clock.Clock
}

// NewVerifier returns a verifier backed by keys. It fails with
// ErrNotConfigured when no issuer can be determined or the audience is empty.
func NewVerifier(keys KeySource, opts ...VerifierOption) (*Verifier, error) {
	v := &Verifier{
		keys:     keys,
		audience: DefaultAudience,
		clock:    clock.WallClock,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.keys == nil {
		return nil, errors.Mark(ErrNotConfigured, 0).Append("no key source")
	}
	if v.issuer == "" && v.providerURL != "" {
		v.issuer = v.providerURL + "/auth/v1"
	}
	if v.issuer == "" {
		return nil, errors.Mark(ErrNotConfigured, 0).Append("issuer can't be derived, set the provider url or issuer")
	}
	if v.audience == "" {
		return nil, errors.Mark(ErrNotConfigured, 0).Append("audience is empty")
	}
	return v, nil
}

// Issuer returns the expected issuer.
func (v *Verifier) Issuer() string {
	return v.issuer
}

// Audience returns the expected audience.
func (v *Verifier) Audience() string {
	return v.audience
}

// Verify checks rawToken and returns its claims. Every failure is
// ErrUnauthenticated.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*TokenClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, unauthenticated("missing token")
	}

	// The header is read before anything else so that unsupported algorithms
	// are rejected without touching the key set.
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return nil, unauthenticated("malformed token: " + err.Error())
	}
	alg, _ := unverified.Header["alg"].(string)
	if !supportedAlgs[alg] {
		return nil, unauthenticated("unsupported alg " + quote(alg))
	}
	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		return nil, unauthenticated("missing kid")
	}

	key, err := v.lookupKey(ctx, kid)
	if err != nil {
		return nil, err
	}
	pub, err := publicKey(key, alg)
	if err != nil {
		return nil, err
	}

	claims := &TokenClaims{}
	_, err = jwt.ParseWithClaims(rawToken, claims,
		func(*jwt.Token) (interface{}, error) { return pub, nil },
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil {
		return nil, unauthenticated(err.Error())
	}
	return claims, nil
}

// lookupKey finds kid in the cached set. A miss forces exactly one refresh,
// which is how key rotation is picked up.
func (v *Verifier) lookupKey(ctx context.Context, kid string) (jwk.Key, error) {
	ks, err := v.keys.Get(ctx, false)
	if err != nil {
		return nil, v.keySetError(ctx, err)
	}
	if key, ok := ks.Lookup(kid); ok {
		return key, nil
	}

	logging.Infow(ctx, "auth: unknown kid, refreshing key set", "auth.kid", kid)
	ks, err = v.keys.Get(ctx, true)
	if err != nil {
		return nil, v.keySetError(ctx, err)
	}
	if key, ok := ks.Lookup(kid); ok {
		return key, nil
	}
	return nil, unauthenticated("unknown kid " + quote(kid))
}

// keySetError logs an upstream or configuration failure and hides it from
// the caller.
func (v *Verifier) keySetError(ctx context.Context, err error) error {
	logging.Errorw(ctx, "auth: key set unavailable", "error", err)
	return unauthenticated("key set unavailable: " + err.Error())
}

// publicKey rebuilds the verification key and checks it matches alg.
func publicKey(key jwk.Key, alg string) (interface{}, error) {
	if keyAlg := key.Algorithm().String(); keyAlg != "" && keyAlg != alg {
		return nil, unauthenticated("key is for " + keyAlg + ", token uses " + alg)
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, unauthenticated("unusable key: " + err.Error())
	}

	switch alg {
	case jwt.SigningMethodES256.Alg():
		pub, ok := raw.(*ecdsa.PublicKey)
		if !ok || pub.Curve != elliptic.P256() {
			return nil, unauthenticated("key is not a P-256 public key")
		}
		return pub, nil
	case jwt.SigningMethodRS256.Alg():
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			return nil, unauthenticated("key is not an RSA public key")
		}
		return pub, nil
	}
	return nil, unauthenticated("unsupported alg " + quote(alg))
}

func quote(s string) string {
	return `"` + s + `"`
}
