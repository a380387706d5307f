package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

// maxWindowRuns caps how many history rows one collection reads.
const maxWindowRuns = 1000

// MetricsSnapshot holds a point-in-time view of harvest health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsSuccess  int     `json:"runs_success"`
	RunsFailed   int     `json:"runs_failed"`
	RunFailRate  float64 `json:"run_fail_rate"`
	RecordsFound int     `json:"records_found"`
	RecordsSaved int     `json:"records_saved"`

	// Source metrics (current state, not windowed).
	SourcesTotal   int      `json:"sources_total"`
	FailingSources []string `json:"failing_sources,omitempty"`
	StaleSources   []string `json:"stale_sources,omitempty"`
	NeverRun       []string `json:"never_run,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister reads run history.
type RunLister interface {
	ListRuns(ctx context.Context, f store.RunFilter) ([]model.RunResult, error)
}

// HealthLister reports Source Health for every configured job.
type HealthLister interface {
	Health(ctx context.Context) ([]model.SourceHealth, error)
}

// Collector gathers metrics from run history and Source Health.
type Collector struct {
	runs   RunLister
	health HealthLister
	now    func() time.Time
}

// NewCollector creates a new metrics collector. health may be nil.
func NewCollector(runs RunLister, health HealthLister) *Collector {
	return &Collector{runs: runs, health: health, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.runs.ListRuns(ctx, store.RunFilter{Limit: maxWindowRuns})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	// Newest first, so the first run before the cutoff ends the window.
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			break
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusSuccess:
			snap.RunsSuccess++
		case model.RunStatusFailed:
			snap.RunsFailed++
		}
		snap.RecordsFound += r.RecordsFound
		snap.RecordsSaved += r.RecordsSaved
	}
	if finished := snap.RunsSuccess + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}

	if c.health == nil {
		return snap, nil
	}
	rows, err := c.health.Health(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: source health")
	}
	snap.SourcesTotal = len(rows)
	for _, h := range rows {
		switch {
		case h.LastScrapeAt.IsZero():
			snap.NeverRun = append(snap.NeverRun, h.SourceName)
			continue
		case h.LastStatus == model.RunStatusFailed:
			snap.FailingSources = append(snap.FailingSources, h.SourceName)
		}
		if maxAge := StaleAfter(h.Cadence); maxAge > 0 && now.Sub(h.LastScrapeAt) > maxAge {
			snap.StaleSources = append(snap.StaleSources, h.SourceName)
		}
	}
	sort.Strings(snap.FailingSources)
	sort.Strings(snap.StaleSources)
	sort.Strings(snap.NeverRun)

	return snap, nil
}

// StaleAfter is how long a source may go without a run before it is
// reported stale. Sources without a cadence are never stale.
func StaleAfter(c model.Cadence) time.Duration {
	const day = 24 * time.Hour
	switch c {
	case model.CadenceDaily:
		return 2 * day
	case model.CadenceWeekly:
		return 14 * day
	case model.CadenceMonthly:
		return 62 * day
	case model.CadenceQuarterly:
		return 184 * day
	default:
		return 0
	}
}
