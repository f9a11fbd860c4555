// Package clierror turns errors returned by commands into short,
// actionable messages and process exit codes.
package clierror

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ladzaretti/dbmigrate/migrateerrors"
)

const (
	DefaultErrorExitCode = 1
)

var (
	// errHandler is the function used to handle cli errors.
	errHandler = FatalErrHandler

	// errWriter is used to output cli error messages.
	errWriter io.Writer = os.Stderr

	// debugMode enables always printing raw error values.
	debugMode bool
)

// SetErrorHandler overrides the default [FatalErrHandler] error handler.
func SetErrorHandler(f func(string, int)) {
	errHandler = f
}

// ResetErrorHandler restores the default error handler.
func ResetErrorHandler() {
	errHandler = FatalErrHandler
}

// SetErrWriter overrides the default error output writer [os.Stderr].
func SetErrWriter(w io.Writer) {
	errWriter = w
}

// ResetErrWriter restores the default error output writer to [os.Stderr].
func ResetErrWriter() {
	errWriter = os.Stderr
}

// DebugMode sets whether debug logging is enabled.
//
// When enabled, raw error values are printed to stderr.
func DebugMode(enabled bool) {
	debugMode = enabled
}

// FatalErrHandler prints the message provided and then exits with the given code.
func FatalErrHandler(msg string, code int) {
	printError(msg)

	//nolint:revive // Intentional exit after fatal error.
	os.Exit(code)
}

func PrintErrHandler(msg string, _ int) {
	printError(msg)
}

func printError(msg string) {
	if len(msg) == 0 {
		return
	}

	// add newline if needed
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}

	_, _ = fmt.Fprintf(errWriter, "%s", msg)
}

func debugPrint(err error) {
	if !debugMode {
		return
	}

	_, _ = fmt.Fprintf(errWriter, "DEBUG %+v\n", err)
}

// ErrExit may be passed to CheckError to instruct it to output nothing but exit with
// status code 1.
var ErrExit = errors.New("exit")

// Check prints a user-friendly error message and invokes the configured error handler.
//
// When the [FatalErrHandler] is used, the program will exit before this function returns.
func Check(err error) error {
	check(err, errHandler)
	return err
}

//nolint:revive
func check(err error, handleErr func(string, int)) {
	if err == nil {
		return
	}

	debugPrint(err)

	var (
		driftErr *migrateerrors.DriftError
		execErr  *migrateerrors.ExecutionError
	)

	switch {
	case errors.Is(err, ErrExit):
		handleErr("", DefaultErrorExitCode)
	case errors.As(err, &driftErr):
		handleErr(driftMessage(driftErr), DefaultErrorExitCode)
	case errors.As(err, &execErr):
		handleErr(fmt.Sprintf("dbmigrate: migration %d (%s) failed and was rolled back: %v", execErr.Version, execErr.Direction, execErr.Err), DefaultErrorExitCode)
	case errors.Is(err, migrateerrors.ErrLedgerMissing):
		handleErr("dbmigrate: migrations table does not exist\nRun again with --setup to create it.", DefaultErrorExitCode)
	case errors.Is(err, migrateerrors.ErrInconsistentState):
		handleErr("dbmigrate: "+err.Error()+"\nRestore the missing migration files or fix the migrations table manually.", DefaultErrorExitCode)
	case errors.Is(err, migrateerrors.ErrFileNotFound):
		handleErr("dbmigrate: "+err.Error()+"\nEvery version needs both an up and a down file.", DefaultErrorExitCode)
	case errors.Is(err, migrateerrors.ErrAmbiguousVersion):
		handleErr("dbmigrate: "+err.Error()+"\nRemove or rename one of the files.", DefaultErrorExitCode)
	case errors.Is(err, migrateerrors.ErrUnsupportedDriver):
		handleErr("dbmigrate: "+err.Error()+"\nSupported drivers: sqlite, mysql, postgres.", DefaultErrorExitCode)
	default:
		msg, ok := StandardErrorMessage(err)
		if !ok {
			msg = err.Error()
			if !strings.HasPrefix(msg, "dbmigrate: ") {
				msg = "dbmigrate: " + msg
			}
		}

		handleErr(msg, DefaultErrorExitCode)
	}
}

func driftMessage(err *migrateerrors.DriftError) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "dbmigrate: version %d: rollback sql stored in ledger does not match the sql in filesystem\n", err.Version)
	fmt.Fprintf(&sb, "SQL from ledger:\n%s\n", err.LedgerSQL)
	fmt.Fprintf(&sb, "SQL from filesystem:\n%s\n", err.DiskSQL)
	sb.WriteString("Please manually fix this error and run again.")

	return sb.String()
}

func StandardErrorMessage(_ error) (string, bool) {
	return "", false
}
