//nolint:gosec // Table names are quoted identifiers taken from config.
package profiles

import (
	"context"
	"database/sql"

	"github.com/dpup/libtask/errors"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Supported database/sql drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// SQLStore reads profiles straight from a database. It ignores the caller's
// token and relies on the connection's own credentials.
type SQLStore struct {
	db    *sql.DB
	table string
}

// OpenSQLStore opens a connection with one of the supported drivers. The
// connection is verified with a ping.
func OpenSQLStore(ctx context.Context, driver, dsn, table string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, errors.Mark(ErrInvalidConfig, 0).Appendf("unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.Mark(ErrInvalidConfig, 0).Append("database url is required")
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Mark(ErrInvalidConfig, 0).Append(err.Error())
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, translateError(err)
	}
	return NewSQLStore(db, table), nil
}

// NewSQLStore wraps an existing connection.
func NewSQLStore(db *sql.DB, table string) *SQLStore {
	if table == "" {
		table = DefaultTable
	}
	return &SQLStore{db: db, table: pq.QuoteIdentifier(table)}
}

// Close closes the underlying connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Role returns the role stored for userID.
func (s *SQLStore) Role(ctx context.Context, userID, _ string) (string, error) {
	var role sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT role FROM "+s.table+" WHERE id = $1", userID).Scan(&role)
	if err != nil {
		return "", translateError(err)
	}
	if !role.Valid || role.String == "" {
		return "", errors.Mark(ErrNotFound, 0)
	}
	return role.String, nil
}

// ListByRole returns profiles with the given role, ordered by name.
func (s *SQLStore) ListByRole(ctx context.Context, role, _ string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, role, created_at, updated_at FROM "+s.table+
			" WHERE role = $1 ORDER BY full_name ASC NULLS LAST", role)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	out := []Profile{}
	for rows.Next() {
		var (
			p                Profile
			name             sql.NullString
			created, updated sql.NullTime
		)
		if err := rows.Scan(&p.ID, &name, &p.Role, &created, &updated); err != nil {
			return nil, translateError(err)
		}
		p.FullName = name.String
		p.CreatedAt = created.Time
		p.UpdatedAt = updated.Time
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err)
	}
	return out, nil
}

// Ping checks the connection.
func (s *SQLStore) Ping(ctx context.Context, _ string) error {
	return translateError(s.db.PingContext(ctx))
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errors.Mark(ErrNotFound, 0)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return errors.Mark(ErrUnavailable, 0).Appendf("postgres %s: %s", pqErr.Code, pqErr.Message)
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return errors.Mark(ErrUnavailable, 0).Appendf("sqlite %d: %s", liteErr.Code, liteErr.Error())
	}

	return errors.Mark(ErrUnavailable, 0).Append(err.Error())
}
