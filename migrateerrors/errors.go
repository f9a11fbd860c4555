package migrateerrors

import (
	"errors"
	"fmt"
)

var (
	ErrLedgerMissing = errors.New("ledger table does not exist")

	ErrInconsistentState = errors.New("inconsistent state: last applied migration is missing in filesystem")

	ErrFileNotFound = errors.New("migration file not found")

	ErrDuplicateVersion = errors.New("version already recorded in ledger")

	ErrVersionNotRecorded = errors.New("version not recorded in ledger")

	ErrNoMigrationToRollback = errors.New("there is no migration to rollback")

	ErrDriftDetected = errors.New("sql stored in ledger does not match the sql in filesystem")

	ErrExecutionFailure = errors.New("migration execution failed")

	ErrAmbiguousVersion = errors.New("multiple migration files resolve to the same version")

	ErrInvalidVersion = errors.New("migration version must be a positive integer")

	ErrUnsupportedDriver = errors.New("unsupported database driver")
)

// VersionError attaches a migration version and the failing
// operation to an underlying error.
type VersionError struct {
	Version int
	Op      string
	Err     error
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("version %d: %s: %v", e.Version, e.Op, e.Err)
}

func (e *VersionError) Unwrap() error { return e.Err }

// ExecutionError reports a driver failure while running the SQL
// of a single migration. It matches both [ErrExecutionFailure]
// and the driver error.
type ExecutionError struct {
	Version   int
	Direction string // "up" or "down"
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("version %d: %s: %v: %v", e.Version, e.Direction, ErrExecutionFailure, e.Err)
}

func (e *ExecutionError) Unwrap() []error { return []error{ErrExecutionFailure, e.Err} }

// DriftError is returned when the down SQL on disk differs from
// the copy recorded in the ledger at apply time.
//
// Both bodies are kept verbatim so they can be diffed by hand.
type DriftError struct {
	Version   int
	DiskSQL   string
	LedgerSQL string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("version %d: %v", e.Version, ErrDriftDetected)
}

func (*DriftError) Unwrap() error { return ErrDriftDetected }
