package auth

import (
	"context"
	"testing"
	"time"

	"github.com/dpup/libtask/jwks"
	"github.com/dpup/libtask/jwks/jwkstest"
	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	provider *jwkstest.Provider
	clock    *testclock.Clock
	verifier *Verifier
}

func newFixture(t *testing.T, opts ...VerifierOption) *fixture {
	t.Helper()
	p := jwkstest.NewProvider(t)
	clk := testclock.NewClock(testEpoch)
	cache := jwks.New(p.JWKSURL(), jwks.WithClock(clk))

	opts = append([]VerifierOption{WithProviderURL(p.URL()), WithVerifierClock(clk)}, opts...)
	v, err := NewVerifier(cache, opts...)
	require.NoError(t, err)
	return &fixture{provider: p, clock: clk, verifier: v}
}

// claims returns a valid payload for subject, which tests then break.
func (f *fixture) claims(subject string) jwt.MapClaims {
	now := f.clock.Now()
	return jwt.MapClaims{
		"sub":   subject,
		"iss":   f.provider.Issuer(),
		"aud":   DefaultAudience,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"email": subject + "@example.com",
		"role":  "authenticated",
	}
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Role(ctx context.Context, userID, token string) (string, error) {
	args := m.Called(ctx, userID, token)
	return args.String(0), args.Error(1)
}
