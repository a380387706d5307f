package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/monitoring"
	"github.com/sells-group/lending-harvest/internal/scheduler"
	"github.com/sells-group/lending-harvest/internal/source"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List configured jobs and their next trigger time",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initHarvest(cmd.Context(), "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		formatJobs(os.Stdout, env.Scheduler.ListJobs())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-source health and any active alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := initHarvest(cmd.Context(), "schedule")
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := env.Scheduler.Health(cmd.Context())
		if err != nil {
			return err
		}
		formatHealth(os.Stdout, rows)

		lookback := cfg.Monitoring.LookbackWindowHours
		if lookback <= 0 {
			lookback = 24
		}
		snap, err := monitoring.NewCollector(env.Store, env.Scheduler).Collect(cmd.Context(), lookback)
		if err != nil {
			return err
		}
		formatAlerts(os.Stdout, snap, monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap))
		return nil
	},
}

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List adapter kinds and the origins each supports",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatAdapters(os.Stdout, source.NewDefaultRegistry())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd, statusCmd, adaptersCmd)
}

func formatJobs(out io.Writer, jobs []scheduler.JobInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tADAPTER\tCRON\tNEXT RUN")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t----\t--------")
	for _, j := range jobs {
		next := "disabled"
		if j.Enabled {
			next = j.NextRun.Format("2006-01-02 15:04 MST")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Adapter, j.Cron, next)
	}
	_ = w.Flush()
}

func formatHealth(out io.Writer, rows []model.SourceHealth) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tCADENCE\tSTATUS\tLAST SCRAPE")
	_, _ = fmt.Fprintln(w, "------\t-------\t------\t-----------")
	for _, h := range rows {
		last, status := "never", string(h.LastStatus)
		if !h.LastScrapeAt.IsZero() {
			last = h.LastScrapeAt.Format(time.RFC3339)
		}
		if status == "" {
			status = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.SourceName, h.Cadence, status, last)
	}
	_ = w.Flush()
}

func formatAdapters(out io.Writer, reg *source.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ADAPTER\tORIGINS")
	for _, name := range reg.Names() {
		_, _ = fmt.Fprintf(w, "%s\t%v\n", name, source.Origins(name))
	}
	_ = w.Flush()
}

func formatAlerts(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	_, _ = fmt.Fprintf(out, "\nLast %dh: %d runs, %d failed, %d records saved\n",
		snap.LookbackHours, snap.RunsTotal, snap.RunsFailed, snap.RecordsSaved)
	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "No alerts.")
		return
	}
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
	}
}
