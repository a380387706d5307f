package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/store"
)

type fakeRuns struct {
	runs []model.RunResult
	err  error
}

func (f *fakeRuns) ListRuns(_ context.Context, _ store.RunFilter) ([]model.RunResult, error) {
	return f.runs, f.err
}

type fakeHealth struct {
	rows []model.SourceHealth
	err  error
}

func (f *fakeHealth) Health(context.Context) ([]model.SourceHealth, error) {
	return f.rows, f.err
}

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestCollector(runs RunLister, health HealthLister) *Collector {
	c := NewCollector(runs, health)
	c.now = func() time.Time { return testNow }
	return c
}

func run(status model.RunStatus, ago time.Duration, found, saved int) model.RunResult {
	return model.RunResult{
		Status:       status,
		StartedAt:    testNow.Add(-ago),
		RecordsFound: found,
		RecordsSaved: saved,
	}
}

func TestCollector_EmptyStore(t *testing.T) {
	c := newTestCollector(&fakeRuns{}, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, testNow, snap.CollectedAt)
}

func TestCollector_RunMetrics(t *testing.T) {
	runs := &fakeRuns{runs: []model.RunResult{
		run(model.RunStatusSuccess, time.Hour, 10, 4),
		run(model.RunStatusFailed, 2*time.Hour, 3, 0),
		run(model.RunStatusSuccess, 3*time.Hour, 5, 5),
		run(model.RunStatusFailed, 20*time.Hour, 0, 0),
		// Outside the window.
		run(model.RunStatusFailed, 30*time.Hour, 9, 0),
	}}
	c := newTestCollector(runs, nil)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsSuccess)
	assert.Equal(t, 2, snap.RunsFailed)
	assert.InDelta(t, 0.5, snap.RunFailRate, 0.001)
	assert.Equal(t, 18, snap.RecordsFound)
	assert.Equal(t, 9, snap.RecordsSaved)
}

func TestCollector_SourceHealth(t *testing.T) {
	health := &fakeHealth{rows: []model.SourceHealth{
		{SourceName: "media_scraper", LastScrapeAt: testNow.Add(-time.Hour), LastStatus: model.RunStatusSuccess, Cadence: model.CadenceDaily},
		{SourceName: "official_scraper", LastScrapeAt: testNow.Add(-70 * 24 * time.Hour), LastStatus: model.RunStatusSuccess, Cadence: model.CadenceMonthly},
		{SourceName: "research_scraper", LastScrapeAt: testNow.Add(-time.Hour), LastStatus: model.RunStatusFailed, Cadence: model.CadenceWeekly},
		{SourceName: "corporate_scraper", Cadence: model.CadenceQuarterly},
		{SourceName: "adhoc", LastScrapeAt: testNow.Add(-400 * 24 * time.Hour), LastStatus: model.RunStatusSuccess},
	}}
	c := newTestCollector(&fakeRuns{}, health)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.SourcesTotal)
	assert.Equal(t, []string{"research_scraper"}, snap.FailingSources)
	assert.Equal(t, []string{"official_scraper"}, snap.StaleSources)
	assert.Equal(t, []string{"corporate_scraper"}, snap.NeverRun)
}

func TestCollector_Errors(t *testing.T) {
	boom := errors.New("boom")

	_, err := newTestCollector(&fakeRuns{err: boom}, nil).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")

	_, err = newTestCollector(&fakeRuns{}, &fakeHealth{err: boom}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source health")
}

func TestCollector_FailureRateZeroFinished(t *testing.T) {
	runs := &fakeRuns{runs: []model.RunResult{run("running", time.Minute, 0, 0)}}
	snap, err := newTestCollector(runs, nil).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsTotal)
	assert.Zero(t, snap.RunFailRate)
}

func TestStaleAfter(t *testing.T) {
	tests := []struct {
		cadence model.Cadence
		want    time.Duration
	}{
		{model.CadenceDaily, 48 * time.Hour},
		{model.CadenceWeekly, 14 * 24 * time.Hour},
		{model.CadenceMonthly, 62 * 24 * time.Hour},
		{model.CadenceQuarterly, 184 * 24 * time.Hour},
		{"", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.cadence), func(t *testing.T) {
			assert.Equal(t, tt.want, StaleAfter(tt.cadence))
		})
	}
}
