// Package dashboard renders a periodic terminal snapshot of both
// registries, the supplemental operator view described in SPEC_FULL.md,
// grounded in the original balancer's terminal_ui loop.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/stacklok/balancer/internal/registry"
)

// clearScreen repaints the terminal in place, same escape sequence the
// original balancer used between snapshots.
const clearScreen = "\x1B[2J\x1B[1;1H"

// Dashboard periodically renders a snapshot of one or more registries.
type Dashboard struct {
	Out        io.Writer
	Registries []*registry.Registry
	Interval   time.Duration
	ListenAddr string
}

// DefaultInterval matches the original terminal refresh cadence.
const DefaultInterval = 2 * time.Second

// New builds a Dashboard over the given registries with the default
// refresh interval.
func New(out io.Writer, listenAddr string, registries ...*registry.Registry) *Dashboard {
	return &Dashboard{
		Out:        out,
		Registries: registries,
		Interval:   DefaultInterval,
		ListenAddr: listenAddr,
	}
}

// Run renders a snapshot every Interval until ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()

	d.render()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	fmt.Fprint(d.Out, clearScreen)
	fmt.Fprintln(d.Out, "== Balancer Status ==")
	fmt.Fprintf(d.Out, "Listening on: %s\n", d.ListenAddr)

	for _, reg := range d.Registries {
		fmt.Fprintf(d.Out, "\n-- %s nodes --\n", reg.Class())
		renderTable(d.Out, reg.Snapshot())
	}
	fmt.Fprintln(d.Out, "\nCtrl+C to stop.")
}

func renderTable(out io.Writer, records []registry.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "(no nodes registered)")
		return
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	table := tablewriter.NewWriter(out)
	table.Options(
		tablewriter.WithHeader([]string{"Node ID", "Service URL", "State", "Last Seen"}),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(4, tw.AlignLeft)),
	)

	now := time.Now()
	for _, rec := range records {
		state := rec.Health.State.String()
		if rec.Health.State == registry.Failed && !rec.Health.FailedSince.IsZero() {
			state = fmt.Sprintf("%s (%ds)", state, int(now.Sub(rec.Health.FailedSince).Seconds()))
		}
		_ = table.Append([]string{
			rec.ID,
			rec.EndpointURL,
			state,
			fmt.Sprintf("%ds ago", int(now.Sub(rec.LastSeen).Seconds())),
		})
	}
	_ = table.Render()
}
