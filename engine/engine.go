// Package engine reconciles the migrations available on disk with the ledger
// of applied migrations.
//
// Migrations are strictly linear: versions are applied in ascending order and
// only the most recent one is ever rolled back. The engine assumes it is the
// only process changing the ledger; it takes no locks of its own.
package engine

import (
	"context"
	"errors"
	"slices"

	"github.com/ladzaretti/dbmigrate/ledger"
	"github.com/ladzaretti/dbmigrate/migrateerrors"
	"github.com/ladzaretti/dbmigrate/repository"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Repository resolves versions to migration scripts.
type Repository interface {
	ListVersions() ([]int, error)
	Load(version int) (repository.Item, error)
	LoadUp(version int) (string, error)
	LoadDown(version int) (string, error)
}

// Ledger records applied migrations.
type Ledger interface {
	Bootstrap(ctx context.Context) (created bool, err error)
	LastAppliedVersion(ctx context.Context) (int, error)
	RecordApplied(ctx context.Context, r ledger.Record) error
	FetchRecordedDownSQL(ctx context.Context, version int) (string, error)
	RemoveApplied(ctx context.Context, version int) error
	Records(ctx context.Context) ([]ledger.Record, error)
}

// Runner executes a SQL script as one all-or-nothing transaction.
type Runner interface {
	ExecTx(ctx context.Context, query string) error
}

type Engine struct {
	repo   Repository
	ledger Ledger
	runner Runner
	log    *zap.Logger
	clock  clock.Clock
}

type Opt func(*Engine)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.Logger) Opt {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithClock sets the clock used to timestamp ledger rows.
func WithClock(c clock.Clock) Opt {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

func New(repo Repository, store Ledger, runner Runner, opts ...Opt) *Engine {
	e := &Engine{
		repo:   repo,
		ledger: store,
		runner: runner,
		log:    zap.NewNop(),
		clock:  clock.New(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Setup creates the ledger table if it does not exist yet.
// An existing table is reported, not treated as a failure.
func (e *Engine) Setup(ctx context.Context) (bool, error) {
	created, err := e.ledger.Bootstrap(ctx)
	if err != nil {
		return false, err
	}

	if created {
		e.log.Info("Created ledger table")
	} else {
		e.log.Info("Ledger table already exists")
	}

	return created, nil
}

// Pending returns the available versions greater than the last
// applied one, in ascending order.
func (e *Engine) Pending(ctx context.Context) ([]int, error) {
	last, err := e.ledger.LastAppliedVersion(ctx)
	if err != nil {
		return nil, err
	}

	available, err := e.repo.ListVersions()
	if err != nil {
		return nil, err
	}

	return pending(last, available)
}

func pending(last int, available []int) ([]int, error) {
	if last == 0 {
		return slices.Clone(available), nil
	}

	if !slices.Contains(available, last) {
		return nil, &migrateerrors.VersionError{Version: last, Op: "compute pending", Err: migrateerrors.ErrInconsistentState}
	}

	out := make([]int, 0, len(available))

	for _, v := range available {
		if v > last {
			out = append(out, v)
		}
	}

	return out, nil
}

// Up applies every pending migration in ascending order.
//
// It stops at the first failure. Versions committed before the failure
// stay applied and recorded; the failing version leaves no ledger row.
// The returned slice lists the versions applied by this call.
func (e *Engine) Up(ctx context.Context) ([]int, error) {
	e.log.Debug("Running up")

	versions, err := e.Pending(ctx)
	if err != nil {
		return nil, err
	}

	e.log.Info("Pending migrations", zap.Ints("versions", versions))

	applied := make([]int, 0, len(versions))

	for _, v := range versions {
		if err := e.apply(ctx, v); err != nil {
			return applied, err
		}

		applied = append(applied, v)
	}

	e.log.Info("Executed all pending migrations", zap.Int("applied", len(applied)))

	return applied, nil
}

func (e *Engine) apply(ctx context.Context, version int) error {
	log := e.log.With(zap.Int("version", version))
	log.Info("Running migration")

	item, err := e.repo.Load(version)
	if err != nil {
		return err
	}

	log.Debug("Executing up sql", zap.String("sql", item.Up))

	start := e.clock.Now()

	if err := e.runner.ExecTx(ctx, item.Up); err != nil {
		log.Error("Migration failed", zap.Error(err))
		return &migrateerrors.ExecutionError{Version: version, Direction: "up", Err: err}
	}

	record := ledger.Record{
		Version:   version,
		CreatedAt: e.clock.Now(),
		UpSQL:     item.Up,
		DownSQL:   item.Down,
	}

	if err := e.ledger.RecordApplied(ctx, record); err != nil {
		return err
	}

	log.Info("Applied migration", zap.Duration("took", e.clock.Since(start)))

	return nil
}

// Down rolls back the most recently applied migration and returns its version.
//
// The down SQL on disk must match the copy recorded at apply time byte for byte;
// otherwise a [*migrateerrors.DriftError] is returned and nothing is executed.
func (e *Engine) Down(ctx context.Context) (int, error) {
	e.log.Debug("Rolling back last migration")

	last, err := e.ledger.LastAppliedVersion(ctx)
	if err != nil {
		return 0, err
	}

	if last == 0 {
		return 0, migrateerrors.ErrNoMigrationToRollback
	}

	log := e.log.With(zap.Int("version", last))
	log.Info("Last migration")

	diskSQL, err := e.repo.LoadDown(last)
	if err != nil {
		return 0, err
	}

	ledgerSQL, err := e.ledger.FetchRecordedDownSQL(ctx, last)
	if err != nil {
		return 0, err
	}

	if diskSQL != ledgerSQL {
		log.Error("Rollback sql stored in ledger does not match the sql in filesystem")
		return 0, &migrateerrors.DriftError{Version: last, DiskSQL: diskSQL, LedgerSQL: ledgerSQL}
	}

	log.Debug("Executing down sql", zap.String("sql", diskSQL))

	if err := e.runner.ExecTx(ctx, diskSQL); err != nil {
		log.Error("Rollback failed", zap.Error(err))
		return 0, &migrateerrors.ExecutionError{Version: last, Direction: "down", Err: err}
	}

	if err := e.ledger.RemoveApplied(ctx, last); err != nil {
		return 0, err
	}

	log.Info("Rollback completed")

	return last, nil
}

// State is the position of a single version relative to the ledger.
type State string

const (
	StateApplied State = "applied"
	StatePending State = "pending"
	StateMissing State = "missing" // recorded in the ledger but absent on disk
)

// Entry describes one version in a [Status] report.
type Entry struct {
	Version int
	State   State
	Record  *ledger.Record // nil unless the version is recorded
}

// Status is a read-only snapshot of the migration state.
type Status struct {
	Last    int
	Pending []int
	Entries []Entry
}

// Status reports the last applied version, the pending versions, and every known
// version with its state. It does not modify the database.
//
// Recorded versions missing on disk are reported as [StateMissing]. If the last
// applied version is one of them, the report is returned together with
// [migrateerrors.ErrInconsistentState].
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	last, err := e.ledger.LastAppliedVersion(ctx)
	if err != nil {
		return nil, err
	}

	available, err := e.repo.ListVersions()
	if err != nil {
		return nil, err
	}

	records, err := e.ledger.Records(ctx)
	if err != nil {
		return nil, err
	}

	pendingVersions, err := pending(last, available)
	if err != nil && !errors.Is(err, migrateerrors.ErrInconsistentState) {
		return nil, err
	}

	status := &Status{Last: last, Pending: pendingVersions}

	recorded := make(map[int]*ledger.Record, len(records))
	for i := range records {
		recorded[records[i].Version] = &records[i]
	}

	versions := slices.Clone(available)
	for v := range recorded {
		if !slices.Contains(available, v) {
			versions = append(versions, v)
		}
	}

	slices.Sort(versions)

	for _, v := range versions {
		entry := Entry{Version: v, Record: recorded[v]}

		switch {
		case entry.Record == nil:
			entry.State = StatePending
		case slices.Contains(available, v):
			entry.State = StateApplied
		default:
			entry.State = StateMissing
		}

		status.Entries = append(status.Entries, entry)
	}

	return status, err
}
