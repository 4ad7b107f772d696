package profiles

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dpup/libtask/errors"
)

const maxBodyBytes = 1 << 20

// RESTOption customizes a RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(s *RESTStore) {
		s.client = client
	}
}

// WithTable overrides the resource name, "profiles" by default.
func WithTable(table string) RESTOption {
	return func(s *RESTStore) {
		if table != "" {
			s.table = table
		}
	}
}

// RESTStore reads profiles through the provider's PostgREST API:
//
//	GET <provider>/rest/v1/profiles?select=role&id=eq.<user id>
//	apikey: <anon key>
//	Authorization: Bearer <caller token>
type RESTStore struct {
	baseURL string
	anonKey string
	table   string
	client  *http.Client
}

// NewRESTStore returns a store for the provider at baseURL.
func NewRESTStore(baseURL, anonKey string, opts ...RESTOption) (*RESTStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.Mark(ErrInvalidConfig, 0).Append("provider url is required")
	}
	s := &RESTStore{
		baseURL: baseURL,
		anonKey: anonKey,
		table:   DefaultTable,
		client:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Role returns the role stored for userID.
func (s *RESTStore) Role(ctx context.Context, userID, token string) (string, error) {
	var rows []struct {
		Role *string `json:"role"`
	}
	q := url.Values{}
	q.Set("select", "role")
	q.Set("id", "eq."+userID)
	if err := s.get(ctx, s.table, q, token, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 || rows[0].Role == nil || *rows[0].Role == "" {
		return "", errors.Mark(ErrNotFound, 0)
	}
	return *rows[0].Role, nil
}

// ListByRole returns profiles with the given role, ordered by name.
func (s *RESTStore) ListByRole(ctx context.Context, role, token string) ([]Profile, error) {
	rows := []Profile{}
	q := url.Values{}
	q.Set("select", "id,full_name,role,created_at,updated_at")
	q.Set("role", "eq."+role)
	q.Set("order", "full_name.asc.nullslast")
	if err := s.get(ctx, s.table, q, token, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Ping reads a single row with the caller's token, which proves the
// transport, the token and row level security all work.
func (s *RESTStore) Ping(ctx context.Context, token string) error {
	var rows []json.RawMessage
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")
	return s.get(ctx, s.table, q, token, &rows)
}

func (s *RESTStore) get(ctx context.Context, resource string, q url.Values, token string, out any) error {
	u := s.baseURL + "/rest/v1/" + url.PathEscape(resource) + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Mark(ErrInvalidConfig, 0).Append(err.Error())
	}
	req.Header.Set("Accept", "application/json")
	if s.anonKey != "" {
		req.Header.Set("apikey", s.anonKey)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Mark(ErrUnavailable, 0).Append(err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return errors.Mark(ErrUnavailable, 0).Append(err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Mark(ErrUnavailable, 0).Appendf("%s returned %d: %s", resource, resp.StatusCode, truncate(string(body), 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Mark(ErrUnavailable, 0).Append("decode: " + err.Error())
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
