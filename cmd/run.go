package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

var runCmd = &cobra.Command{
	Use:   "run <job-id>",
	Short: "Run one job now and print its result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initHarvest(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Scheduler.RunNow(ctx, args[0])
		if err != nil {
			return err
		}
		formatRunResult(os.Stdout, res)
		if !res.OK() {
			return eris.Errorf("job %s failed", args[0])
		}
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent job runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, _ := cmd.Flags().GetString("job")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Job:    job,
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("job", "", "filter by job id")
	runsCmd.Flags().String("status", "", "filter by status (success, failed)")
	runsCmd.Flags().Int("limit", 20, "max runs to show")
	rootCmd.AddCommand(runCmd, runsCmd)
}

// formatRunResult writes one run's outcome to w.
func formatRunResult(out io.Writer, r model.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s\n", r.ID)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", r.Job)
	_, _ = fmt.Fprintf(w, "Status:\t%s\n", r.Status)
	_, _ = fmt.Fprintf(w, "Records found:\t%d\n", r.RecordsFound)
	_, _ = fmt.Fprintf(w, "Records saved:\t%d\n", r.RecordsSaved)
	_, _ = fmt.Fprintf(w, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", r.Duration.Round(time.Millisecond))
	if r.Error != "" {
		_, _ = fmt.Fprintf(w, "Error:\t%s\n", r.Error)
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.RunResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tJOB\tSTATUS\tFOUND\tSAVED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t---\t------\t-----\t-----\t-------\t--------")

	for _, r := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			r.Job,
			r.Status,
			r.RecordsFound,
			r.RecordsSaved,
			r.StartedAt.Format("2006-01-02 15:04"),
			r.Duration.Round(time.Second),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
