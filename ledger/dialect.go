package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ladzaretti/dbmigrate/migrateerrors"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect provides the backend specific parts of the ledger:
// its DDL, the placeholder style, and classification of driver errors.
type Dialect interface {
	// Name returns the canonical driver name.
	Name() string

	// CreateLedgerQuery returns the DDL for the ledger table.
	CreateLedgerQuery(table string) string

	// Placeholder returns the bind parameter format used by the driver.
	Placeholder() sq.PlaceholderFormat

	// IsUndefinedTable reports whether err means the queried table does not exist.
	IsUndefinedTable(err error) bool

	// IsDuplicateKey reports whether err is a primary key violation.
	IsDuplicateKey(err error) bool
}

const (
	SQLite   = "sqlite"
	MySQL    = "mysql"
	Postgres = "postgres"
)

// DialectFor returns the [Dialect] registered for the given driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case SQLite, "sqlite3":
		return SQLiteDialect{}, nil
	case MySQL:
		return MySQLDialect{}, nil
	case Postgres, "postgresql", "pgx":
		return PostgresDialect{}, nil
	default:
		return nil, fmt.Errorf("%q: %w", driver, migrateerrors.ErrUnsupportedDriver)
	}
}

// SQLiteDialect targets modernc.org/sqlite.
type SQLiteDialect struct{}

var _ Dialect = SQLiteDialect{}

func (SQLiteDialect) Name() string { return SQLite }

func (SQLiteDialect) CreateLedgerQuery(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE
			IF NOT EXISTS %s (
				version INTEGER NOT NULL PRIMARY KEY,
				created_at TEXT NOT NULL,
				up_sql TEXT NOT NULL,
				down_sql TEXT NOT NULL
			);
	`, table)
}

func (SQLiteDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (SQLiteDialect) IsUndefinedTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

func (SQLiteDialect) IsDuplicateKey(err error) bool {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}

	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// MySQLDialect targets github.com/go-sql-driver/mysql.
type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

const (
	mysqlErrNoSuchTable  = 1146
	mysqlErrDuplicateKey = 1062
)

func (MySQLDialect) Name() string { return MySQL }

func (MySQLDialect) CreateLedgerQuery(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE
			IF NOT EXISTS %s (
				version INT UNSIGNED NOT NULL,
				created_at VARCHAR(64) NOT NULL,
				up_sql LONGTEXT NOT NULL,
				down_sql LONGTEXT NOT NULL,
				PRIMARY KEY (version)
			);
	`, table)
}

func (MySQLDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }

func (MySQLDialect) IsUndefinedTable(err error) bool {
	var merr *mysql.MySQLError
	if !errors.As(err, &merr) {
		return false
	}

	return merr.Number == mysqlErrNoSuchTable || string(merr.SQLState[:]) == "42S02"
}

func (MySQLDialect) IsDuplicateKey(err error) bool {
	var merr *mysql.MySQLError
	return errors.As(err, &merr) && merr.Number == mysqlErrDuplicateKey
}

// PostgresDialect targets github.com/jackc/pgx/v5/stdlib.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
)

func (PostgresDialect) Name() string { return Postgres }

func (PostgresDialect) CreateLedgerQuery(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE
			IF NOT EXISTS %s (
				version BIGINT NOT NULL PRIMARY KEY,
				created_at TEXT NOT NULL,
				up_sql TEXT NOT NULL,
				down_sql TEXT NOT NULL
			);
	`, table)
}

func (PostgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (PostgresDialect) IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}

func (PostgresDialect) IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
