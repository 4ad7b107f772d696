// Package jwks caches the identity provider's JSON Web Key Set.
//
// The cache holds one immutable KeySet at a time and replaces it wholesale
// after a successful fetch. Concurrent fetches are collapsed into one request.
// A failed fetch never falls back to an older set: the caller gets an error
// and the next call tries again.
package jwks

import (
	"context"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dpup/libtask/errors"
	"github.com/dpup/libtask/logging"
	"github.com/juju/clock"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
)

const (
	// DefaultTTL is how long a fetched key set is trusted.
	DefaultTTL = 10 * time.Minute

	// DefaultTimeout bounds a single key set fetch.
	DefaultTimeout = 10 * time.Second

	// Upper bound on the key set document size.
	maxBodyBytes = 1 << 20
)

var (
	// ErrNotConfigured is returned when no key set URL is available.
	ErrNotConfigured = errors.NewC("jwks: key set url not configured", codes.FailedPrecondition).
				WithPublicMessage("authentication is not configured")

	// ErrUpstreamUnavailable is returned when the key set cannot be fetched or
	// parsed.
	ErrUpstreamUnavailable = errors.NewC("jwks: key set unavailable", codes.Unavailable).
				WithPublicMessage("authentication provider unavailable")
)

// URL returns the key set endpoint for a provider base URL, or an empty string
// when the base is empty.
func URL(providerBase string) string {
	providerBase = strings.TrimRight(strings.TrimSpace(providerBase), "/")
	if providerBase == "" {
		return ""
	}
	return providerBase + "/auth/v1/.well-known/jwks.json"
}

// KeySet is an immutable snapshot of the provider's signing keys, indexed by
// key id.
type KeySet struct {
	keys      map[string]jwk.Key
	FetchedAt time.Time
}

// Lookup returns the key with the given id.
func (s *KeySet) Lookup(kid string) (jwk.Key, bool) {
	if s == nil {
		return nil, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// KeyIDs returns the ids of all keys, sorted.
func (s *KeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.keys))
	for kid := range s.keys {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// Option customizes a Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched key set is considered fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock injects the clock used for freshness checks.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithHTTPClient sets the client used for fetches. The client's own timeout
// is left alone; each fetch is additionally bounded by the cache's timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		c.client = client
	}
}

// WithTimeout bounds each fetch.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// Cache fetches and caches the key set served at a fixed URL. It is safe for
// concurrent use.
type Cache struct {
	url     string
	ttl     time.Duration
	timeout time.Duration
	clock   clock.Clock
	client  *http.Client

	current atomic.Pointer[KeySet]
	group   singleflight.Group
}

// New returns a cache for the key set at url. An empty url is accepted so the
// process can start; Get will then fail with ErrNotConfigured.
func New(url string, opts ...Option) *Cache {
	c := &Cache{
		url:     url,
		ttl:     DefaultTTL,
		timeout: DefaultTimeout,
		clock:   clock.WallClock,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current key set. A cached set younger than the TTL is
// returned as is unless forceRefresh is set, in which case, as when the cache
// is empty or stale, the set is fetched again.
func (c *Cache) Get(ctx context.Context, forceRefresh bool) (*KeySet, error) {
	if c.url == "" {
		return nil, errors.Mark(ErrNotConfigured, 0)
	}

	if !forceRefresh {
		if ks := c.current.Load(); ks != nil && c.clock.Now().Sub(ks.FetchedAt) < c.ttl {
			return ks, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append(err.Error())
	}

	// The shared fetch is detached from any single caller so one cancelled
	// request can't fail the others waiting on it.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan("fetch", func() (interface{}, error) {
		return c.refresh(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append(ctx.Err().Error())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

// Current returns the cached key set without fetching, or nil.
func (c *Cache) Current() *KeySet {
	return c.current.Load()
}

// Invalidate drops the cached set so the next Get fetches.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

func (c *Cache) refresh(ctx context.Context) (*KeySet, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := c.clock.Now()
	ks, err := c.fetch(ctx)
	if err != nil {
		logging.Errorw(ctx, "jwks: fetch failed", "jwks.url", c.url, "error", err)
		return nil, err
	}
	ks.FetchedAt = c.clock.Now()
	c.current.Store(ks)

	logging.Infow(ctx, "jwks: key set refreshed",
		"jwks.url", c.url,
		"jwks.kids", ks.KeyIDs(),
		"jwks.duration", ks.FetchedAt.Sub(start))
	return ks, nil
}

func (c *Cache) fetch(ctx context.Context) (*KeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, errors.Mark(ErrNotConfigured, 0).Append(err.Error())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Appendf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append(err.Error())
	}

	return parseKeySet(body)
}

// parseKeySet indexes the signing keys of a JWKS document by key id. Keys
// without an id, or marked for encryption, are skipped.
func parseKeySet(body []byte) (*KeySet, error) {
	set, err := jwk.Parse(body)
	if err != nil {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append("parse: " + err.Error())
	}

	keys := make(map[string]jwk.Key, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyID() == "" {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}
		keys[key.KeyID()] = key
	}
	if len(keys) == 0 {
		return nil, errors.Mark(ErrUpstreamUnavailable, 0).Append("no usable signing keys")
	}
	return &KeySet{keys: keys}, nil
}
