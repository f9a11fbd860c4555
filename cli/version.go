package cli

import (
	"errors"

	"github.com/ladzaretti/dbmigrate/clierror"
	"github.com/ladzaretti/dbmigrate/genericclioptions"

	"github.com/spf13/cobra"
)

// Version is the build version, set at link time with
// -ldflags "-X github.com/ladzaretti/dbmigrate/cli.Version=...".
var Version = "dev"

func newVersionCommand(defaults *DefaultMigrateOptions) *cobra.Command {
	cmd := cobra.Command{
		Use:                "version",
		Short:              "Show version",
		DisableFlagParsing: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return clierror.Check(func() error {
				if len(args) > 0 {
					return errors.New("version: command takes no arguments")
				}

				defaults.Printf("%s\n", Version)

				return nil
			}())
		},
	}

	genericclioptions.MarkAllFlagsHidden(&cmd)

	return &cmd
}
