// Package jwkstest runs a fake identity provider key endpoint and signs tokens
// with its keys. It is meant for tests only.
package jwkstest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"
)

// JWKSPath is where the fake provider serves its key set.
const JWKSPath = "/auth/v1/.well-known/jwks.json"

type signer struct {
	method jwt.SigningMethod
	key    crypto.Signer
}

// Provider is a fake identity provider. Keys can be generated ahead of being
// published, which makes rotation easy to simulate.
type Provider struct {
	t      *testing.T
	server *httptest.Server
	hits   atomic.Int32

	mu        sync.Mutex
	signers   map[string]signer
	published []string
	status    int
	body      string
}

// NewProvider starts a fake provider that is closed when the test ends.
func NewProvider(t *testing.T) *Provider {
	t.Helper()
	p := &Provider{t: t, signers: map[string]signer{}, status: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc(JWKSPath, p.serveJWKS)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

// URL is the provider base URL.
func (p *Provider) URL() string {
	return p.server.URL
}

// JWKSURL is the full key set URL.
func (p *Provider) JWKSURL() string {
	return p.server.URL + JWKSPath
}

// Issuer is the issuer the provider puts in its tokens.
func (p *Provider) Issuer() string {
	return p.server.URL + "/auth/v1"
}

// Hits returns how many times the key set has been requested.
func (p *Provider) Hits() int {
	return int(p.hits.Load())
}

// Close stops the server, so later fetches see a refused connection.
func (p *Provider) Close() {
	p.server.Close()
}

// AddES256 generates a P-256 key under kid and publishes it.
func (p *Provider) AddES256(kid string) {
	p.GenerateES256(kid)
	p.Publish(append(p.Published(), kid)...)
}

// AddRS256 generates a 2048 bit RSA key under kid and publishes it.
func (p *Provider) AddRS256(kid string) {
	p.GenerateRS256(kid)
	p.Publish(append(p.Published(), kid)...)
}

// GenerateES256 creates a P-256 key without publishing it.
func (p *Provider) GenerateES256(kid string) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(p.t, err)
	p.mu.Lock()
	p.signers[kid] = signer{method: jwt.SigningMethodES256, key: key}
	p.mu.Unlock()
}

// GenerateRS256 creates an RSA key without publishing it.
func (p *Provider) GenerateRS256(kid string) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(p.t, err)
	p.mu.Lock()
	p.signers[kid] = signer{method: jwt.SigningMethodRS256, key: key}
	p.mu.Unlock()
}

// Publish replaces the served key set with exactly the given keys.
func (p *Provider) Publish(kids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append([]string(nil), kids...)
}

// Published returns the key ids currently served.
func (p *Provider) Published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.published...)
}

// FailWith makes the endpoint answer with the given status. Passing
// http.StatusOK restores normal behaviour.
func (p *Provider) FailWith(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// ServeBody makes the endpoint answer with a fixed body. An empty string
// restores the generated key set.
func (p *Provider) ServeBody(body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.body = body
}

// Sign signs claims with the key registered under kid, setting the kid
// header. The key does not have to be published.
func (p *Provider) Sign(kid string, claims jwt.Claims) string {
	return p.SignWithHeaders(kid, nil, claims)
}

// SignWithHeaders is like Sign but overrides token headers after the kid is
// set. A nil value removes the header. Used to forge tokens whose kid does
// not match the signing key.
func (p *Provider) SignWithHeaders(kid string, headers map[string]any, claims jwt.Claims) string {
	p.mu.Lock()
	s, ok := p.signers[kid]
	p.mu.Unlock()
	require.True(p.t, ok, "unknown kid %q", kid)

	token := jwt.NewWithClaims(s.method, claims)
	token.Header["kid"] = kid
	for k, v := range headers {
		if v == nil {
			delete(token.Header, k)
			continue
		}
		token.Header[k] = v
	}
	signed, err := token.SignedString(s.key)
	require.NoError(p.t, err)
	return signed
}

func (p *Provider) serveJWKS(w http.ResponseWriter, r *http.Request) {
	p.hits.Add(1)

	p.mu.Lock()
	status, body := p.status, p.body
	kids := append([]string(nil), p.published...)
	p.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if body != "" {
		_, _ = w.Write([]byte(body))
		return
	}
	set, err := p.keySet(kids)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(set)
}

func (p *Provider) keySet(kids []string) (jwk.Set, error) {
	set := jwk.NewSet()
	for _, kid := range kids {
		p.mu.Lock()
		s, ok := p.signers[kid]
		p.mu.Unlock()
		if !ok {
			continue
		}

		key, err := jwk.FromRaw(s.key.Public())
		if err != nil {
			return nil, err
		}
		alg := jwa.RS256
		if s.method == jwt.SigningMethodES256 {
			alg = jwa.ES256
		}
		for k, v := range map[string]interface{}{
			jwk.KeyIDKey:     kid,
			jwk.KeyUsageKey:  "sig",
			jwk.AlgorithmKey: alg,
		} {
			if err := key.Set(k, v); err != nil {
				return nil, err
			}
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}
