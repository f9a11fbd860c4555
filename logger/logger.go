// Package logger builds the zap loggers used to report migration progress.
package logger

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Format string        `toml:"format"`
	Level  zapcore.Level `toml:"level"`
}

// NewConfig returns a new instance of Config with defaults.
func NewConfig() Config {
	return Config{
		Format: FormatAuto,
		Level:  zapcore.InfoLevel,
	}
}

// ValidateFormat reports whether format names a known encoder.
func ValidateFormat(format string) error {
	switch format {
	case "", FormatAuto, FormatConsole, FormatJSON:
		return nil
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
}

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(s string) (zapcore.Level, error) {
	if s == "" {
		return zapcore.InfoLevel, nil
	}

	return zapcore.ParseLevel(s)
}

type fder interface {
	Fd() uintptr
}

// New returns a logger writing to w.
//
// The auto format selects the console encoder when w is a terminal
// and JSON otherwise.
func New(w io.Writer, c Config) (*zap.Logger, error) {
	if err := ValidateFormat(c.Format); err != nil {
		return nil, err
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	var encoder zapcore.Encoder

	switch resolveFormat(w, c.Format) {
	case FormatJSON:
		encoder = zapcore.NewJSONEncoder(config)
	default:
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	return zap.New(zapcore.NewCore(
		encoder,
		zapcore.Lock(zapcore.AddSync(w)),
		c.Level,
	)), nil
}

func resolveFormat(w io.Writer, format string) string {
	if format != "" && format != FormatAuto {
		return format
	}

	if f, ok := w.(fder); ok && term.IsTerminal(int(f.Fd())) { //nolint:gosec
		return FormatConsole
	}

	return FormatJSON
}
