package profiles

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLStore(db, ""), mock
}

func TestSQLStore_Role(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT role FROM "profiles" WHERE id = $1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

	role, err := s.Role(t.Context(), "user-1", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_Role_NoRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT role FROM "profiles" WHERE id = $1`).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Role(t.Context(), "user-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_Role_NullRole(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT role FROM "profiles" WHERE id = $1`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(nil))

	_, err := s.Role(t.Context(), "user-1", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_Role_PostgresError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT role FROM "profiles" WHERE id = $1`).
		WithArgs("user-1").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "profiles" does not exist`})

	_, err := s.Role(t.Context(), "user-1", "")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "42P01")
}

func TestSQLStore_ListByRole(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, full_name, role, created_at, updated_at FROM "profiles" WHERE role = $1 ORDER BY full_name ASC NULLS LAST`).
		WithArgs("staff").
		WillReturnRows(sqlmock.NewRows([]string{"id", "full_name", "role", "created_at", "updated_at"}).
			AddRow("u1", "Ada", "staff", created, nil).
			AddRow("u2", nil, "staff", nil, nil))

	rows, err := s.ListByRole(t.Context(), "staff", "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Profile{ID: "u1", FullName: "Ada", Role: "staff", CreatedAt: created}, rows[0])
	assert.Equal(t, "", rows[1].FullName)
}

func TestSQLStore_TableIsQuoted(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	s := NewSQLStore(db, `odd"name`)

	mock.ExpectQuery(`SELECT role FROM "odd""name" WHERE id = $1`).
		WithArgs("u").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("staff"))

	role, err := s.Role(t.Context(), "u", "")
	require.NoError(t, err)
	assert.Equal(t, "staff", role)
}

func TestOpenSQLStore_Validation(t *testing.T) {
	_, err := OpenSQLStore(t.Context(), "mysql", "dsn", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = OpenSQLStore(t.Context(), DriverPostgres, "", "")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSQLStore_SQLite(t *testing.T) {
	s, err := OpenSQLStore(t.Context(), DriverSQLite, "file:profiles_test?mode=memory&cache=shared", "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.db.Exec(`CREATE TABLE profiles (
		id TEXT PRIMARY KEY,
		full_name TEXT,
		role TEXT,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	_, err = s.db.Exec(`INSERT INTO profiles (id, full_name, role, created_at, updated_at) VALUES
		('u1', 'Zed', 'staff', $1, $1),
		('u2', 'Ada', 'staff', $1, $1),
		('u3', NULL, 'staff', NULL, NULL),
		('u4', 'Root', 'admin', $1, $1)`, now)
	require.NoError(t, err)

	role, err := s.Role(t.Context(), "u4", "")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)

	_, err = s.Role(t.Context(), "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)

	staff, err := s.ListByRole(t.Context(), "staff", "")
	require.NoError(t, err)
	require.Len(t, staff, 3)
	assert.Equal(t, []string{"u2", "u1", "u3"}, []string{staff[0].ID, staff[1].ID, staff[2].ID})
	assert.True(t, staff[0].CreatedAt.Equal(now))

	assert.NoError(t, s.Ping(t.Context(), ""))
}
