package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/reson/internal/persistence"
)

// lastRunKey is the meta key holding the ID of the last completed run.
const lastRunKey = "last_run"

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
	Limit    int
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List recorded runs",
		Long:  "List the runs recorded in a SQLite database, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := persistence.Open(opts.Database)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to open database", err)
			}
			defer db.Close()

			runs, err := db.Runs(opts.Limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list runs", err)
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tDEFINITIONS\tSTART\tTICKS\tINVOCATIONS\tANOMALIES\tSTARTED")
			for _, r := range runs {
				started := r.StartedAt
				if t, err := time.Parse(time.RFC3339, r.StartedAt); err == nil {
					started = humanize.Time(t)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.ID, r.Definitions,
					time.Unix(r.StartTime, 0).UTC().Format(time.RFC3339),
					humanize.Comma(int64(r.Ticks)), humanize.Comma(int64(r.Invocations)),
					r.Anomalies, started,
				)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if last, err := db.GetMeta(lastRunKey); err == nil {
				fmt.Fprintf(out, "\nlast completed run: %s\n", last)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum runs to list")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}
