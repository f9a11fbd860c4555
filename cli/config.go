package cli

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"

	"github.com/ladzaretti/dbmigrate/clierror"
	"github.com/ladzaretti/dbmigrate/genericclioptions"
	"github.com/ladzaretti/dbmigrate/ledger"
	"github.com/ladzaretti/dbmigrate/logger"

	"github.com/go-sql-driver/mysql"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
)

// ResolvedConfig is the effective configuration after merging
// flags, environment and the config file, in that order of precedence.
//
//nolint:tagliatelle
type ResolvedConfig struct {
	Driver    string `json:"driver"`
	DSN       string `json:"dsn"`
	Table     string `json:"table"`
	Dir       string `json:"migrations_dir"`
	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// Validate checks that the configuration is complete enough to run migrations.
func (c ResolvedConfig) Validate() error {
	if len(c.Driver) == 0 {
		return &ConfigError{Opt: "database.driver", Err: errors.New("must be set")}
	}

	if _, err := ledger.DialectFor(c.Driver); err != nil {
		return &ConfigError{Opt: "database.driver", Err: err}
	}

	if len(c.DSN) == 0 {
		return &ConfigError{Opt: "database.dsn", Err: fmt.Errorf("must be set (or export %s)", envDSNKey)}
	}

	if err := ledger.ValidateTableName(c.Table); err != nil {
		return &ConfigError{Opt: "database.table", Err: err}
	}

	fi, err := os.Stat(c.Dir)
	if err != nil {
		return &ConfigError{Opt: "migrations.dir", Err: err}
	}

	if !fi.IsDir() {
		return &ConfigError{Opt: "migrations.dir", Err: fmt.Errorf("%q is not a directory", c.Dir)}
	}

	return nil
}

// LoggerConfig converts the log settings; verbose forces the debug level.
func (c ResolvedConfig) LoggerConfig(verbose bool) (logger.Config, error) {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.Config{}, &ConfigError{Opt: "log.level", Err: err}
	}

	lc := logger.NewConfig()
	lc.Format = cmp.Or(c.LogFormat, lc.Format)
	lc.Level = level

	if verbose {
		lc.Level = zapcore.DebugLevel
	}

	return lc, nil
}

// Redacted returns a copy safe for printing, with any DSN password masked.
func (c ResolvedConfig) Redacted() ResolvedConfig {
	c.DSN = redactDSN(c.Driver, c.DSN)
	return c
}

const redactedPassword = "xxxxx"

var keyValuePassword = regexp.MustCompile(`(password\s*=\s*)('[^']*'|\S+)`)

func redactDSN(driver, dsn string) string {
	d, err := ledger.DialectFor(driver)
	if err != nil || len(dsn) == 0 {
		return dsn
	}

	switch d.Name() {
	case ledger.MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil || len(cfg.Passwd) == 0 {
			return dsn
		}

		cfg.Passwd = redactedPassword

		return cfg.FormatDSN()
	case ledger.Postgres:
		if u, err := url.Parse(dsn); err == nil && u.User != nil {
			return u.Redacted()
		}

		return keyValuePassword.ReplaceAllString(dsn, "${1}"+redactedPassword)
	default:
		return dsn
	}
}

// configFlags holds the values of the config overriding flags.
type configFlags struct {
	driver string
	dsn    string
	table  string
	dir    string
}

type ConfigOptions struct {
	*genericclioptions.StdioOptions
	*FileConfig

	Resolved ResolvedConfig

	userPath string // userPath is the config file path explicitly provided by the user, if any.
	flags    configFlags
}

var _ genericclioptions.CmdOptions = &ConfigOptions{}

// NewConfigOptions initializes the options struct.
func NewConfigOptions(stdio *genericclioptions.StdioOptions) *ConfigOptions {
	return &ConfigOptions{
		StdioOptions: stdio,
	}
}

// Complete loads the config file and merges it with the environment and flags.
func (o *ConfigOptions) Complete() error {
	c, err := LoadFileConfig(o.userPath)
	if err != nil {
		return err
	}

	o.FileConfig = c
	o.Resolved = ResolvedConfig{
		Driver:    cmp.Or(o.flags.driver, c.Database.Driver),
		DSN:       cmp.Or(o.flags.dsn, os.Getenv(envDSNKey), c.Database.DSN),
		Table:     cmp.Or(o.flags.table, c.Database.Table, ledger.DefaultTable),
		Dir:       cmp.Or(o.flags.dir, c.Migrations.Dir, defaultMigrationsDir),
		LogFormat: cmp.Or(c.Log.Format, logger.FormatAuto),
		LogLevel:  cmp.Or(c.Log.Level, "info"),
	}

	if len(c.path) > 0 {
		o.Debugf("Loaded config file %q\n", c.path)
	}

	return nil
}

func (*ConfigOptions) Validate() error {
	return nil
}

func (o *ConfigOptions) Run(context.Context, ...string) error {
	parsed := *o.FileConfig
	parsed.Database.DSN = redactDSN(parsed.Database.Driver, parsed.Database.DSN)

	config := struct {
		Path     string         `json:"path,omitempty"`
		Parsed   FileConfig     `json:"parsed_config"`   //nolint:tagliatelle
		Resolved ResolvedConfig `json:"resolved_config"` //nolint:tagliatelle
	}{
		Path:     o.path,
		Parsed:   parsed,
		Resolved: o.Resolved.Redacted(),
	}

	b, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	o.Printf("%s\n", string(b))

	return nil
}

// NewCmdConfig creates the cobra config command tree.
func NewCmdConfig(defaults *DefaultMigrateOptions) *cobra.Command {
	o := defaults.configOptions

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Resolve and inspect the active configuration (subcommands available)",
		Long: fmt.Sprintf(`Resolve and display the active dbmigrate configuration as JSON.

Values are taken from flags, then the environment, then the config file.
If --config is not provided, %q in the working directory is used.
Passwords in the DSN are masked.`, defaultConfigName),
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))
		},
	}

	cmd.AddCommand(newGenerateConfigCmd(defaults))
	cmd.AddCommand(newValidateConfigCmd(defaults))

	return cmd
}

type generateConfigOptions struct {
	*genericclioptions.StdioOptions
}

var _ genericclioptions.CmdOptions = &generateConfigOptions{}

func (*generateConfigOptions) Complete() error {
	return nil
}

func (*generateConfigOptions) Validate() error {
	return nil
}

func (o *generateConfigOptions) Run(context.Context, ...string) error {
	out, err := toml.Marshal(&FileConfig{})
	if err != nil {
		return err
	}

	o.Printf("%s", string(out))

	return nil
}

// newGenerateConfigCmd creates the 'generate' subcommand for generating default config.
func newGenerateConfigCmd(defaults *DefaultMigrateOptions) *cobra.Command {
	hiddenFlags := []string{"config", "driver", "dsn", "table", "dir"}
	o := &generateConfigOptions{StdioOptions: defaults.StdioOptions}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Print a default config file",
		Long: `Outputs the default configuration in TOML format to stdout.

This command does not accept any arguments.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.RejectDisallowedFlags(cmd, hiddenFlags...))
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))
		},
	}

	genericclioptions.MarkFlagsHidden(cmd, hiddenFlags...)

	return cmd
}

type validateConfigOptions struct {
	*genericclioptions.StdioOptions

	configPath string
}

var _ genericclioptions.CmdOptions = &validateConfigOptions{}

func (*validateConfigOptions) Complete() error {
	return nil
}

func (*validateConfigOptions) Validate() error {
	return nil
}

func (o *validateConfigOptions) Run(context.Context, ...string) error {
	c, err := LoadFileConfig(o.configPath)
	if err != nil {
		return err
	}

	if len(c.path) == 0 {
		o.Infof("No config file found; Nothing to validate.\n")
		return nil
	}

	o.Infof("%s: OK\n", c.path)

	return nil
}

// newValidateConfigCmd creates the 'validate' subcommand for validating the config file.
func newValidateConfigCmd(defaults *DefaultMigrateOptions) *cobra.Command {
	hiddenFlags := []string{"driver", "dsn", "table", "dir"}
	o := &validateConfigOptions{StdioOptions: defaults.StdioOptions}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check config validity",
		Long: fmt.Sprintf(`Loads the configuration file and checks for common errors.

If --config is not provided, %q in the working directory is used.`, defaultConfigName),
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			o.configPath = defaults.configOptions.userPath

			clierror.Check(genericclioptions.RejectDisallowedFlags(cmd, hiddenFlags...))
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))
		},
	}

	genericclioptions.MarkFlagsHidden(cmd, hiddenFlags...)

	return cmd
}
