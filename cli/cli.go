package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ladzaretti/dbmigrate/clierror"
	"github.com/ladzaretti/dbmigrate/database"
	"github.com/ladzaretti/dbmigrate/engine"
	"github.com/ladzaretti/dbmigrate/genericclioptions"
	"github.com/ladzaretti/dbmigrate/ledger"
	"github.com/ladzaretti/dbmigrate/logger"
	"github.com/ladzaretti/dbmigrate/migrateerrors"
	"github.com/ladzaretti/dbmigrate/repository"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migrator bundles an engine with the database handle it runs against.
type migrator struct {
	engine *engine.Engine
	log    *zap.Logger
	closer io.Closer
}

// openMigrator connects to the configured database and wires the engine.
func openMigrator(ctx context.Context, stdio *genericclioptions.StdioOptions, c ResolvedConfig) (*migrator, error) {
	lc, err := c.LoggerConfig(stdio.Verbose)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(stdio.ErrOut, lc)
	if err != nil {
		return nil, &ConfigError{Opt: "log.format", Err: err}
	}

	dialect, err := ledger.DialectFor(c.Driver)
	if err != nil {
		return nil, err
	}

	log.Debug("Opening database", zap.String("driver", dialect.Name()), zap.String("table", c.Table))

	db, err := database.Open(ctx, dialect, c.DSN)
	if err != nil {
		return nil, err
	}

	store, err := ledger.New(db, dialect, ledger.WithTable(c.Table))
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}

	e := engine.New(
		repository.New(c.Dir),
		store,
		database.NewTxRunner(db),
		engine.WithLogger(log),
	)

	return &migrator{engine: e, log: log, closer: db}, nil
}

func (m *migrator) Close() error {
	_ = m.log.Sync()
	return m.closer.Close()
}

type DefaultMigrateOptions struct {
	*genericclioptions.StdioOptions

	configOptions *ConfigOptions

	setup bool
	down  bool
	list  bool
}

var _ genericclioptions.CmdOptions = &DefaultMigrateOptions{}

func NewDefaultMigrateOptions(iostreams *genericclioptions.IOStreams) *DefaultMigrateOptions {
	stdio := &genericclioptions.StdioOptions{IOStreams: iostreams}

	return &DefaultMigrateOptions{
		StdioOptions:  stdio,
		configOptions: NewConfigOptions(stdio),
	}
}

func (o *DefaultMigrateOptions) Complete() error {
	if err := o.StdioOptions.Complete(); err != nil {
		return err
	}

	return o.configOptions.Complete()
}

func (o *DefaultMigrateOptions) Validate() error {
	if o.down && o.list {
		return errors.New("--down and --list cannot be used together")
	}

	return o.configOptions.Resolved.Validate()
}

// Run optionally bootstraps the ledger, then lists, rolls back or applies migrations.
func (o *DefaultMigrateOptions) Run(ctx context.Context, _ ...string) (retErr error) {
	m, err := openMigrator(ctx, o.StdioOptions, o.configOptions.Resolved)
	if err != nil {
		return err
	}
	defer func() { //nolint:wsl
		retErr = errors.Join(retErr, m.Close())
	}()

	if o.setup {
		created, err := m.engine.Setup(ctx)
		if err != nil {
			return err
		}

		if created {
			o.Infof("Created migrations table %q.\n", o.configOptions.Resolved.Table)
		} else {
			o.Warnf("Migrations table %q already exists.\n", o.configOptions.Resolved.Table)
		}
	}

	switch {
	case o.list:
		return o.runList(ctx, m.engine)
	case o.down:
		return o.runDown(ctx, m.engine)
	default:
		return o.runUp(ctx, m.engine)
	}
}

func (o *DefaultMigrateOptions) runUp(ctx context.Context, e *engine.Engine) error {
	applied, err := e.Up(ctx)
	for _, v := range applied {
		o.Infof("Applied migration %d.\n", v)
	}

	if err != nil {
		return err
	}

	if len(applied) == 0 {
		o.Infof("Database is up to date.\n")
		return nil
	}

	o.Infof("Executed %d migration(s).\n", len(applied))

	return nil
}

func (o *DefaultMigrateOptions) runDown(ctx context.Context, e *engine.Engine) error {
	v, err := e.Down(ctx)
	if errors.Is(err, migrateerrors.ErrNoMigrationToRollback) {
		o.Infof("There is no migration to rollback.\n")
		return nil
	}

	if err != nil {
		return err
	}

	o.Infof("Rolled back migration %d.\n", v)

	return nil
}

func (o *DefaultMigrateOptions) runList(ctx context.Context, e *engine.Engine) error {
	status, err := e.Status(ctx)
	if status != nil {
		printStatus(o.Out, status)
	}

	return err
}

// NewDefaultMigrateCommand creates the `dbmigrate` command with its sub-commands.
func NewDefaultMigrateCommand(iostreams *genericclioptions.IOStreams, args []string) *cobra.Command {
	o := NewDefaultMigrateOptions(iostreams)

	cmd := &cobra.Command{
		Use:   "dbmigrate",
		Short: "Apply and roll back sequential SQL migrations",
		Long: fmt.Sprintf(`dbmigrate applies numbered SQL migrations in ascending order and rolls them back one at a time.

The migrations directory holds two subdirectories, up/ and down/, with one file per version
named after its number, e.g. up/001.sql and down/001.sql. Applied versions are recorded,
together with their SQL, in a ledger table inside the target database.

Without flags, every pending migration is applied.

Environment Variables:
    %s: overrides the default config path: %q.
    %s: overrides the database connection string.`, envConfigPathKey, defaultConfigName, envDSNKey),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))
		},
	}

	cmd.SetArgs(args)
	cmd.SetOut(iostreams.Out)
	cmd.SetErr(iostreams.ErrOut)

	cmd.Flags().BoolVarP(&o.setup, "setup", "s", false, "create the migrations table if needed, then continue")
	cmd.Flags().BoolVarP(&o.down, "down", "d", false, "roll back the last applied migration")
	cmd.Flags().BoolVarP(&o.list, "list", "l", false, "list migrations and their state")
	cmd.MarkFlagsMutuallyExclusive("down", "list")

	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().StringVarP(&o.configOptions.userPath, "config", "", "",
		fmt.Sprintf("configuration file path (default: ./%s)", defaultConfigName))
	cmd.PersistentFlags().StringVarP(&o.configOptions.flags.dir, "dir", "m", "",
		fmt.Sprintf("migrations directory (default: ./%s)", defaultMigrationsDir))
	cmd.PersistentFlags().StringVarP(&o.configOptions.flags.driver, "driver", "", "", "database driver: sqlite, mysql or postgres")
	cmd.PersistentFlags().StringVarP(&o.configOptions.flags.dsn, "dsn", "", "", "database connection string")
	cmd.PersistentFlags().StringVarP(&o.configOptions.flags.table, "table", "", "",
		fmt.Sprintf("migrations table name (default: %s)", ledger.DefaultTable))

	cmd.AddCommand(NewCmdConfig(o))
	cmd.AddCommand(NewCmdVerify(o))
	cmd.AddCommand(newVersionCommand(o))

	return cmd
}
