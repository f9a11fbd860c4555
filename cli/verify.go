package cli

import (
	"context"
	"errors"
	"strconv"

	"github.com/ladzaretti/dbmigrate/clierror"
	"github.com/ladzaretti/dbmigrate/engine"
	"github.com/ladzaretti/dbmigrate/genericclioptions"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type VerifyOptions struct {
	*genericclioptions.StdioOptions

	configOptions *ConfigOptions
}

var _ genericclioptions.CmdOptions = &VerifyOptions{}

// NewVerifyOptions initializes the options struct.
func NewVerifyOptions(defaults *DefaultMigrateOptions) *VerifyOptions {
	return &VerifyOptions{
		StdioOptions:  defaults.StdioOptions,
		configOptions: defaults.configOptions,
	}
}

func (o *VerifyOptions) Complete() error {
	if err := o.StdioOptions.Complete(); err != nil {
		return err
	}

	return o.configOptions.Complete()
}

func (o *VerifyOptions) Validate() error {
	return o.configOptions.Resolved.Validate()
}

func (o *VerifyOptions) Run(ctx context.Context, _ ...string) (retErr error) {
	m, err := openMigrator(ctx, o.StdioOptions, o.configOptions.Resolved)
	if err != nil {
		return err
	}
	defer func() { //nolint:wsl
		retErr = errors.Join(retErr, m.Close())
	}()

	problems, err := m.engine.Verify(ctx)
	if len(problems) > 0 {
		o.printProblems(problems)
	}

	if err != nil {
		return err
	}

	o.Infof("Ledger matches the migrations directory.\n")

	return nil
}

func (o *VerifyOptions) printProblems(problems []engine.Problem) {
	t := table.NewWriter()
	t.SetOutputMirror(o.Out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"VERSION", "PROBLEM", "LEDGER", "DISK"})

	for _, p := range problems {
		t.AppendRow(table.Row{strconv.Itoa(p.Version), p.Kind, orDash(p.LedgerDigest), orDash(p.DiskDigest)})
	}

	t.Render()
}

func orDash(s string) string {
	if len(s) == 0 {
		return "-"
	}

	return s
}

// NewCmdVerify creates the verify cobra command.
func NewCmdVerify(defaults *DefaultMigrateOptions) *cobra.Command {
	o := NewVerifyOptions(defaults)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check recorded migrations against the migrations directory",
		Long: `Compare the up and down SQL recorded for every applied migration with the
files on disk, byte for byte. Mismatches are listed with short content digests.

Also checks that the applied versions are exactly the lowest versions on disk.
The database is never modified.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			clierror.Check(genericclioptions.ExecuteCommand(cmd.Context(), o))
		},
	}

	return cmd
}
