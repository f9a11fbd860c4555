package genericclioptions

import (
	"github.com/ladzaretti/dbmigrate/clierror"
)

// StdioOptions provides output-related CLI helpers,
// intended to be embedded in option structs.
type StdioOptions struct {
	*IOStreams
}

var _ BaseOptions = &StdioOptions{}

// Complete propagates the verbosity to the error printer.
func (o *StdioOptions) Complete() error {
	clierror.DebugMode(o.Verbose)
	return nil
}

func (*StdioOptions) Validate() error {
	return nil
}
