package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/ladzaretti/dbmigrate/engine"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// now is the reference time for relative apply times.
var now = time.Now

func printStatus(w io.Writer, status *engine.Status) {
	fmt.Fprintf(w, "Last applied version: %d\n", status.Last)
	fmt.Fprintf(w, "Pending migrations:   %d\n\n", len(status.Pending))

	if len(status.Entries) == 0 {
		fmt.Fprintln(w, "No migrations found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"VERSION", "STATE", "APPLIED"})

	for _, e := range status.Entries {
		applied := "-"
		if e.Record != nil {
			applied = fmt.Sprintf("%s (%s)", humanize.RelTime(e.Record.CreatedAt, now(), "ago", "from now"),
				e.Record.CreatedAt.UTC().Format(time.RFC3339))
		}

		t.AppendRow(table.Row{strconv.Itoa(e.Version), string(e.State), applied})
	}

	t.Render()
}
