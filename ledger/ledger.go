// Package ledger persists which migrations have been applied.
//
// Each applied version is one row holding the apply timestamp and the verbatim
// up and down SQL that were in effect at apply time. The recorded down SQL is the
// reference against which the on-disk rollback script is checked before any
// rollback runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ladzaretti/dbmigrate/migrateerrors"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// DefaultTable is the ledger table name used when none is configured.
const DefaultTable = "db_migrations"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Record is a single ledger row.
type Record struct {
	Version   int
	CreatedAt time.Time
	UpSQL     string
	DownSQL   string
}

// recordRow is the scan target for ledger rows.
//
// created_at is written as RFC 3339 text so that every backend
// round-trips it without driver specific time handling. Ledgers created
// by other tools may hold a DATETIME and NULL scripts instead.
//
//nolint:tagliatelle
type recordRow struct {
	Version   int64          `db:"version"`
	CreatedAt string         `db:"created_at"`
	UpSQL     sql.NullString `db:"up_sql"`
	DownSQL   sql.NullString `db:"down_sql"`
}

// createdAtLayouts are tried in order when parsing created_at.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.DateTime,
	"2006-01-02T15:04:05",
}

func parseCreatedAt(s string) (t time.Time, err error) {
	for _, layout := range createdAtLayouts {
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, err
}

func (r recordRow) record() (Record, error) {
	t, err := parseCreatedAt(r.CreatedAt)
	if err != nil {
		return Record{}, errf("version %d: parse created_at %q: %v", r.Version, r.CreatedAt, err)
	}

	return Record{
		Version:   int(r.Version),
		CreatedAt: t,
		UpSQL:     r.UpSQL.String,
		DownSQL:   r.DownSQL.String,
	}, nil
}

// Store provides access to the ledger table.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	table   string
	builder sq.StatementBuilderType
}

type Opt func(*Store)

// WithTable sets the ledger table name. Empty names are ignored.
func WithTable(name string) Opt {
	return func(s *Store) {
		if len(name) > 0 {
			s.table = name
		}
	}
}

// New creates a [Store] over db using the given dialect.
func New(db *sqlx.DB, dialect Dialect, opts ...Opt) (*Store, error) {
	s := &Store{
		db:      db,
		dialect: dialect,
		table:   DefaultTable,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := ValidateTableName(s.table); err != nil {
		return nil, err
	}

	s.builder = sq.StatementBuilder.PlaceholderFormat(dialect.Placeholder())

	return s, nil
}

// ValidateTableName checks that name is a plain SQL identifier.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid ledger table name %q: must match %s", name, tableNamePattern)
	}

	return nil
}

func errf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Table returns the ledger table name.
func (s *Store) Table() string { return s.table }

// classify maps driver errors onto ledger error kinds.
func (s *Store) classify(err error) error {
	if err == nil {
		return nil
	}

	if s.dialect.IsUndefinedTable(err) {
		return fmt.Errorf("%s: %w: %v", s.table, migrateerrors.ErrLedgerMissing, err)
	}

	return err
}

// Exists reports whether the ledger table is present.
func (s *Store) Exists(ctx context.Context) (bool, error) {
	query, args, err := s.builder.Select("version").From(s.table).Where("1 = 0").ToSql()
	if err != nil {
		return false, errf("build exists query: %v", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if s.dialect.IsUndefinedTable(err) {
			return false, nil
		}

		return false, errf("probe ledger table: %v", err)
	}

	defer func() { //nolint:wsl
		_ = rows.Close()
	}()

	return true, rows.Err()
}

// Bootstrap creates the ledger table if absent.
//
// It returns true if the table was created, false if it already existed.
func (s *Store) Bootstrap(ctx context.Context) (bool, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return false, err
	}

	if exists {
		return false, nil
	}

	if _, err := s.db.ExecContext(ctx, s.dialect.CreateLedgerQuery(s.table)); err != nil {
		return false, errf("create ledger table: %v", err)
	}

	return true, nil
}

// LastAppliedVersion returns the highest recorded version, or 0 if
// the ledger is empty.
func (s *Store) LastAppliedVersion(ctx context.Context) (int, error) {
	query, args, err := s.builder.Select("COALESCE(MAX(version), 0)").From(s.table).ToSql()
	if err != nil {
		return 0, errf("build last version query: %v", err)
	}

	var v int64
	if err := s.db.GetContext(ctx, &v, query, args...); err != nil {
		return 0, s.classify(err)
	}

	return int(v), nil
}

// RecordApplied inserts a ledger row for an applied version.
func (s *Store) RecordApplied(ctx context.Context, r Record) error {
	query, args, err := s.builder.
		Insert(s.table).
		Columns("version", "created_at", "up_sql", "down_sql").
		Values(r.Version, r.CreatedAt.UTC().Format(time.RFC3339Nano), r.UpSQL, r.DownSQL).
		ToSql()
	if err != nil {
		return errf("build insert query: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if s.dialect.IsDuplicateKey(err) {
			return &migrateerrors.VersionError{Version: r.Version, Op: "record", Err: migrateerrors.ErrDuplicateVersion}
		}

		return &migrateerrors.VersionError{Version: r.Version, Op: "record", Err: s.classify(err)}
	}

	return nil
}

// FetchRecordedDownSQL returns the down SQL recorded for a version.
func (s *Store) FetchRecordedDownSQL(ctx context.Context, version int) (string, error) {
	query, args, err := s.builder.Select("down_sql").From(s.table).Where(sq.Eq{"version": version}).ToSql()
	if err != nil {
		return "", errf("build down sql query: %v", err)
	}

	var downSQL string
	if err := s.db.GetContext(ctx, &downSQL, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", &migrateerrors.VersionError{Version: version, Op: "fetch down sql", Err: migrateerrors.ErrVersionNotRecorded}
		}

		return "", &migrateerrors.VersionError{Version: version, Op: "fetch down sql", Err: s.classify(err)}
	}

	return downSQL, nil
}

// RemoveApplied deletes the ledger row of a version.
func (s *Store) RemoveApplied(ctx context.Context, version int) error {
	query, args, err := s.builder.Delete(s.table).Where(sq.Eq{"version": version}).ToSql()
	if err != nil {
		return errf("build delete query: %v", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return &migrateerrors.VersionError{Version: version, Op: "remove", Err: s.classify(err)}
	}

	n, err := res.RowsAffected()
	if err != nil {
		return &migrateerrors.VersionError{Version: version, Op: "remove", Err: err}
	}

	if n == 0 {
		return &migrateerrors.VersionError{Version: version, Op: "remove", Err: migrateerrors.ErrVersionNotRecorded}
	}

	return nil
}

// Records returns every ledger row ordered by version.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	query, args, err := s.builder.
		Select("version", "created_at", "up_sql", "down_sql").
		From(s.table).
		OrderBy("version ASC").
		ToSql()
	if err != nil {
		return nil, errf("build records query: %v", err)
	}

	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, s.classify(err)
	}

	records := make([]Record, 0, len(rows))

	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}

		records = append(records, r)
	}

	return records, nil
}
