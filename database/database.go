// Package database opens the target database and runs migration scripts
// as single transactional units.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ladzaretti/dbmigrate/ledger"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/ladzaretti/migrate/types"

	// Package stdlib registers the pgx driver under the name "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"

	// Package sqlite is a CGo-free port of SQLite/SQLite3.
	_ "modernc.org/sqlite"
)

func errf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// driverName maps a configured backend to its registered database/sql driver.
func driverName(dialect ledger.Dialect) string {
	if dialect.Name() == ledger.Postgres {
		return "pgx"
	}

	return dialect.Name()
}

// Open connects to the database described by dialect and dsn and verifies
// the connection.
//
// MySQL DSNs are rewritten to allow multi-statement scripts.
// SQLite handles are limited to a single connection.
func Open(ctx context.Context, dialect ledger.Dialect, dsn string) (*sqlx.DB, error) {
	if dialect.Name() == ledger.MySQL {
		d, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}

		dsn = d
	}

	db, err := sqlx.Open(driverName(dialect), dsn)
	if err != nil {
		return nil, errf("%s open: %v", dialect.Name(), err)
	}

	if dialect.Name() == ledger.SQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, errors.Join(errf("%s ping: %v", dialect.Name(), err), db.Close())
	}

	return db, nil
}

func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errf("mysql parse dsn: %v", err)
	}

	cfg.MultiStatements = true

	return cfg.FormatDSN(), nil
}

// TxRunner executes SQL scripts, each inside its own transaction.
//
// It uses the driver's transaction API rather than literal BEGIN/COMMIT
// statements, so scripts stay portable across backends.
type TxRunner struct {
	db types.DBTX
}

func NewTxRunner(db types.DBTX) *TxRunner {
	return &TxRunner{db: db}
}

// ExecTx runs query in a new transaction. On failure the transaction
// is rolled back and the execution error is returned.
func (r *TxRunner) ExecTx(ctx context.Context, query string) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errf("start transaction: %v", err)
	}

	if _, err := tx.ExecContext(ctx, query); err != nil {
		if err2 := tx.Rollback(); err2 != nil {
			return errors.Join(err, errf("rollback: %v", err2))
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return errf("transaction commit: %v", err)
	}

	return nil
}
