package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"so2pg/internal/journal"
)

func newRunsCommand(stdout io.Writer) *cobra.Command {
	var (
		path  string
		runID string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show imports recorded in a journal",
		Long: `Without --run, lists the most recent runs. With --run, lists the files of
that run in the order they were imported.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("runs: --journal is required")
			}
			j, closeFn, err := journal.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer closeFn()

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			if runID != "" {
				files, err := j.Files(cmd.Context(), runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "FILE\tTABLE\tROWS\tBYTES\tDURATION\tSTATUS\tDIGEST")
				for _, f := range files {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%016x\n",
						f.File, f.Table, f.Rows, f.Bytes, f.Duration, f.Status, f.Digest)
				}
				return tw.Flush()
			}

			runs, err := j.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "RUN\tJOB\tSTARTED\tDURATION\tSTATUS\tDIRECTORY")
			for _, r := range runs {
				dur := "-"
				if !r.FinishedAt.IsZero() {
					dur = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Job, r.StartedAt.Format(time.RFC3339), dur, r.Status, r.Directory)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "journal", "", "journal SQLite file")
	cmd.Flags().StringVar(&runID, "run", "", "show the files of this run")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list; 0 lists all")
	return cmd
}
