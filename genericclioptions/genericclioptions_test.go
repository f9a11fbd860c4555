package genericclioptions_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ladzaretti/dbmigrate/genericclioptions"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
)

type recordingOptions struct {
	calls       []string
	validateErr error
}

func (o *recordingOptions) Complete() error {
	o.calls = append(o.calls, "complete")
	return nil
}

func (o *recordingOptions) Validate() error {
	o.calls = append(o.calls, "validate")
	return o.validateErr
}

func (o *recordingOptions) Run(context.Context, ...string) error {
	o.calls = append(o.calls, "run")
	return nil
}

func TestExecuteCommand(t *testing.T) {
	errInvalid := errors.New("invalid")

	canceled, cancel := context.WithCancel(t.Context())
	cancel()

	tests := []struct {
		name    string
		ctx     context.Context //nolint:containedctx
		opts    *recordingOptions
		want    []string
		wantErr error
	}{
		{"runs all phases", t.Context(), &recordingOptions{}, []string{"complete", "validate", "run"}, nil},
		{"stops on invalid options", t.Context(), &recordingOptions{validateErr: errInvalid}, []string{"complete", "validate"}, errInvalid},
		{"skips run when canceled", canceled, &recordingOptions{}, []string{"complete", "validate"}, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := genericclioptions.ExecuteCommand(tt.ctx, tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want error %v, got %v", tt.wantErr, err)
			}

			if diff := gocmp.Diff(tt.want, tt.opts.calls); diff != "" {
				t.Errorf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIOStreams(t *testing.T) {
	s, out, errOut := genericclioptions.NewTestIOStreams()

	s.Infof("applied %d\n", 1)
	s.Debugf("hidden\n")
	s.Warnf("careful\n")

	s.Verbose = true
	s.Debugf("shown\n")

	if got, want := out.String(), "INFO applied 1\n"; got != want {
		t.Errorf("out: want %q, got %q", want, got)
	}

	if got, want := errOut.String(), "WARN careful\nDEBUG shown\n"; got != want {
		t.Errorf("errOut: want %q, got %q", want, got)
	}
}

func TestRejectDisallowedFlags(t *testing.T) {
	var table string

	cmd := &cobra.Command{Use: "generate", Run: func(*cobra.Command, []string) {}}
	cmd.Flags().StringVar(&table, "table", "", "")

	if err := cmd.Flags().Parse([]string{"--table", "x"}); err != nil {
		t.Fatal(err)
	}

	if err := genericclioptions.RejectDisallowedFlags(cmd, "table"); err == nil {
		t.Error("expected --table to be rejected")
	}

	if err := genericclioptions.RejectDisallowedFlags(cmd, "dsn"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
