package ledger_test

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ladzaretti/dbmigrate/database"
	"github.com/ladzaretti/dbmigrate/ledger"
	"github.com/ladzaretti/dbmigrate/migrateerrors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	gocmp "github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T, opts ...ledger.Opt) *ledger.Store {
	t.Helper()

	db, err := database.Open(t.Context(), ledger.SQLiteDialect{}, filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	s, err := ledger.New(db, ledger.SQLiteDialect{}, opts...)
	require.NoError(t, err)

	return s
}

func newMockStore(t *testing.T, dialect ledger.Dialect) (*ledger.Store, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})

	s, err := ledger.New(sqlx.NewDb(db, "sqlmock"), dialect)
	require.NoError(t, err)

	return s, mock
}

func TestStore_Bootstrap(t *testing.T) {
	s := newSQLiteStore(t)

	exists, err := s.Exists(t.Context())
	require.NoError(t, err)
	require.False(t, exists)

	created, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.True(t, created)

	created, err = s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.False(t, created, "second bootstrap must report an existing table")
}

func TestStore_LedgerMissing(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.LastAppliedVersion(t.Context())
	require.ErrorIs(t, err, migrateerrors.ErrLedgerMissing)

	_, err = s.Records(t.Context())
	require.ErrorIs(t, err, migrateerrors.ErrLedgerMissing)
}

func TestStore_Lifecycle(t *testing.T) {
	s := newSQLiteStore(t, ledger.WithTable("schema_ledger"))
	require.Equal(t, "schema_ledger", s.Table())

	_, err := s.Bootstrap(t.Context())
	require.NoError(t, err)

	last, err := s.LastAppliedVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 0, last, "empty ledger")

	t0 := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	want := []ledger.Record{
		{Version: 1, CreatedAt: t0, UpSQL: "CREATE TABLE a (id INT);", DownSQL: "DROP TABLE a;"},
		{Version: 2, CreatedAt: t0.Add(time.Second), UpSQL: "CREATE TABLE b (id INT);", DownSQL: "DROP TABLE b;\n"},
	}

	for _, r := range want {
		require.NoError(t, s.RecordApplied(t.Context(), r))
	}

	last, err = s.LastAppliedVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 2, last)

	down, err := s.FetchRecordedDownSQL(t.Context(), 2)
	require.NoError(t, err)
	require.Equal(t, "DROP TABLE b;\n", down)

	got, err := s.Records(t.Context())
	require.NoError(t, err)

	if diff := gocmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	err = s.RecordApplied(t.Context(), want[0])
	require.ErrorIs(t, err, migrateerrors.ErrDuplicateVersion)

	require.NoError(t, s.RemoveApplied(t.Context(), 2))

	last, err = s.LastAppliedVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, last)

	err = s.RemoveApplied(t.Context(), 2)
	require.ErrorIs(t, err, migrateerrors.ErrVersionNotRecorded)

	_, err = s.FetchRecordedDownSQL(t.Context(), 2)
	require.ErrorIs(t, err, migrateerrors.ErrVersionNotRecorded)

	var verr *migrateerrors.VersionError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, 2, verr.Version)
}

func TestNew_InvalidTable(t *testing.T) {
	for _, name := range []string{"1abc", "db-migrations", "x; DROP TABLE y", "a.b"} {
		_, err := ledger.New(nil, ledger.SQLiteDialect{}, ledger.WithTable(name))
		require.Error(t, err, "table name %q", name)
	}
}

func TestStore_MySQL(t *testing.T) {
	s, mock := newMockStore(t, ledger.MySQLDialect{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM db_migrations")).
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'app.db_migrations' doesn't exist"})

	_, err := s.LastAppliedVersion(t.Context())
	require.ErrorIs(t, err, migrateerrors.ErrLedgerMissing)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM db_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(int64(7)))

	last, err := s.LastAppliedVersion(t.Context())
	require.NoError(t, err)
	require.Equal(t, 7, last)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT down_sql FROM db_migrations WHERE version = ?")).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"down_sql"}))

	_, err = s.FetchRecordedDownSQL(t.Context(), 3)
	require.ErrorIs(t, err, migrateerrors.ErrVersionNotRecorded)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO db_migrations")).
		WithArgs(int64(7), sqlmock.AnyArg(), "up", "down").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '7' for key 'PRIMARY'"})

	err = s.RecordApplied(t.Context(), ledger.Record{Version: 7, CreatedAt: time.Now(), UpSQL: "up", DownSQL: "down"})
	require.ErrorIs(t, err, migrateerrors.ErrDuplicateVersion)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM db_migrations WHERE version = ?")).
		WithArgs(int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = s.RemoveApplied(t.Context(), 9)
	require.ErrorIs(t, err, migrateerrors.ErrVersionNotRecorded)
}

func TestStore_RecordsFromDatetimeLedger(t *testing.T) {
	s, mock := newMockStore(t, ledger.MySQLDialect{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, created_at, up_sql, down_sql FROM db_migrations ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "created_at", "up_sql", "down_sql"}).
			AddRow(int64(1), "2024-03-05 10:20:30", "CREATE TABLE a (id INT);", "DROP TABLE a;").
			AddRow(int64(2), "2024-03-06 08:00:00", nil, nil))

	got, err := s.Records(t.Context())
	require.NoError(t, err)

	want := []ledger.Record{
		{Version: 1, CreatedAt: time.Date(2024, 3, 5, 10, 20, 30, 0, time.UTC), UpSQL: "CREATE TABLE a (id INT);", DownSQL: "DROP TABLE a;"},
		{Version: 2, CreatedAt: time.Date(2024, 3, 6, 8, 0, 0, 0, time.UTC)},
	}

	if diff := gocmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Postgres(t *testing.T) {
	s, mock := newMockStore(t, ledger.PostgresDialect{})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM db_migrations WHERE 1 = 0")).
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "db_migrations" does not exist`})
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.True(t, created)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM db_migrations WHERE 1 = 0")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	created, err = s.Bootstrap(t.Context())
	require.NoError(t, err)
	require.False(t, created)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT down_sql FROM db_migrations WHERE version = $1")).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"down_sql"}).AddRow("DROP TABLE t;"))

	down, err := s.FetchRecordedDownSQL(t.Context(), 4)
	require.NoError(t, err)
	require.Equal(t, "DROP TABLE t;", down)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO db_migrations")).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err = s.RecordApplied(t.Context(), ledger.Record{Version: 4, CreatedAt: time.Now()})
	require.ErrorIs(t, err, migrateerrors.ErrDuplicateVersion)
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver string
		want   string
	}{
		{"sqlite", ledger.SQLite},
		{"sqlite3", ledger.SQLite},
		{"MySQL", ledger.MySQL},
		{"postgres", ledger.Postgres},
		{"pgx", ledger.Postgres},
	}

	for _, tt := range tests {
		d, err := ledger.DialectFor(tt.driver)
		require.NoError(t, err)
		require.Equal(t, tt.want, d.Name())
	}

	_, err := ledger.DialectFor("oracle")
	require.ErrorIs(t, err, migrateerrors.ErrUnsupportedDriver)
}
