package cli

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ladzaretti/dbmigrate/ledger"
	"github.com/ladzaretti/dbmigrate/logger"

	"github.com/pelletier/go-toml/v2"
)

const (
	// defaultConfigName is the config file looked up in the working
	// directory when no path is given.
	defaultConfigName = "dbmigrate.toml"

	// envConfigPathKey is the environment variable key for overriding
	// the config file path.
	envConfigPathKey = "DBMIGRATE_CONFIG_PATH"

	// envDSNKey is the environment variable key for overriding
	// the database connection string.
	envDSNKey = "DBMIGRATE_DSN"

	// defaultMigrationsDir is the migrations root used when none is configured.
	defaultMigrationsDir = "migrations"
)

type ConfigError struct {
	Opt string
	Err error
}

func (e *ConfigError) Error() string {
	return "config: " + strings.Join([]string{e.Opt, e.Err.Error()}, ": ")
}

func (e *ConfigError) Unwrap() error { return e.Err }

// FileConfig represents the full structure of the configuration file.
//
//nolint:tagalign
type FileConfig struct {
	Database   DatabaseConfig   `toml:"database" json:"database"`
	Migrations MigrationsConfig `toml:"migrations" json:"migrations"`
	Log        LogConfig        `toml:"log" json:"log"`

	path string // path to the loaded config file. Empty if no config file was used.
}

// DatabaseConfig holds the target database settings.
//
//nolint:tagalign
type DatabaseConfig struct {
	Driver string `toml:"driver,commented" comment:"Database driver: sqlite, mysql or postgres" json:"driver,omitempty"`
	DSN    string `toml:"dsn,commented" comment:"Connection string; overridden by $DBMIGRATE_DSN" json:"dsn,omitempty"`
	Table  string `toml:"table,commented" comment:"Ledger table name (default: 'db_migrations')" json:"table,omitempty"`
}

// MigrationsConfig locates the migration scripts.
//
//nolint:tagalign
type MigrationsConfig struct {
	Dir string `toml:"dir,commented" comment:"Directory holding the up/ and down/ subdirectories (default: 'migrations')" json:"dir,omitempty"`
}

// LogConfig configures the progress log written to stderr.
//
//nolint:tagalign
type LogConfig struct {
	Format string `toml:"format,commented" comment:"Log format: auto, console or json (default: 'auto')" json:"format,omitempty"`
	Level  string `toml:"level,commented" comment:"Log level: debug, info, warn or error (default: 'info')" json:"level,omitempty"`
}

// LoadFileConfig loads the config from the given or default path.
//
// A missing file at the default path yields an empty config;
// a missing file at an explicit path is an error.
func LoadFileConfig(path string) (*FileConfig, error) {
	configPath := cmp.Or(path, defaultConfigPath())

	c, err := parseFileConfig(configPath)
	if err != nil {
		// config file not found at default location; fallback to empty config
		if len(path) == 0 && errors.Is(err, fs.ErrNotExist) { //nolint:revive // clearer with explicit fallback logic
			c = &FileConfig{}
		} else {
			return nil, err
		}
	} else {
		c.path = configPath
	}

	return c, c.validate()
}

func defaultConfigPath() string {
	if p, ok := os.LookupEnv(envConfigPathKey); ok {
		return p
	}

	return defaultConfigName
}

func parseFileConfig(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config: stat file: %w", err)
	}

	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	config := &FileConfig{}
	if err := toml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("config: parse file: %w", err)
	}

	return config, nil
}

func (c *FileConfig) validate() error {
	if c == nil {
		return &ConfigError{Err: errors.New("cannot validate a nil config")}
	}

	if d := c.Database.Driver; len(d) > 0 {
		if _, err := ledger.DialectFor(d); err != nil {
			return &ConfigError{Opt: "database.driver", Err: err}
		}
	}

	if t := c.Database.Table; len(t) > 0 {
		if err := ledger.ValidateTableName(t); err != nil {
			return &ConfigError{Opt: "database.table", Err: err}
		}
	}

	if err := logger.ValidateFormat(c.Log.Format); err != nil {
		return &ConfigError{Opt: "log.format", Err: err}
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &ConfigError{Opt: "log.level", Err: err}
	}

	return nil
}
