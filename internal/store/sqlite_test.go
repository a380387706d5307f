package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lending-harvest/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func period(t *testing.T, s string) model.Period {
	t.Helper()
	p, err := model.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func platform(t *testing.T, name, month string, issued float64) model.Record {
	return model.Record{
		Kind:        model.KindPlatform,
		Name:        name,
		Group:       "蚂蚁集团",
		Period:      period(t, month),
		Issued:      model.Float(issued),
		SourceLabel: "蚂蚁集团财报",
		SourceURL:   "https://example.com/" + name,
	}
}

func save(t *testing.T, st Store, recs ...model.Record) int {
	t.Helper()
	var saved int
	err := st.InTx(context.Background(), func(tx Tx) error {
		var err error
		saved, err = SaveRecords(context.Background(), tx, recs)
		return err
	})
	require.NoError(t, err)
	return saved
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_SaveRecords_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := platform(t, "花呗", "2024-03", 1800)
	rec.YoYGrowth = model.Float(12.5)
	bank := model.Record{
		Kind:              model.KindBank,
		Name:              "招商银行",
		BankType:          "股份制",
		Period:            period(t, "2024-03"),
		TotalInternetLoan: model.Float(900),
		CoopPlatformCount: model.Int(12),
	}
	assert.Equal(t, 2, save(t, st, rec, bank))

	platforms, err := st.ListPlatforms(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, platforms, 1)
	got := platforms[0]
	assert.Equal(t, "花呗", got.Name)
	assert.Equal(t, "2024-03", got.Period.String())
	assert.Equal(t, model.ProductJointLending, got.Product)
	assert.Equal(t, model.UsageConsumer, got.Usage)
	require.NotNil(t, got.Issued)
	assert.InDelta(t, 1800, *got.Issued, 0.001)
	assert.Nil(t, got.Balance)
	require.NotNil(t, got.YoYGrowth)
	assert.InDelta(t, 12.5, *got.YoYGrowth, 0.001)
	assert.Equal(t, "蚂蚁集团财报", got.SourceLabel)

	banks, err := st.ListBanks(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, banks, 1)
	assert.Equal(t, "股份制", banks[0].BankType)
	require.NotNil(t, banks[0].CoopPlatformCount)
	assert.Equal(t, 12, *banks[0].CoopPlatformCount)
	assert.Nil(t, banks[0].Top3Share)
}

func TestSQLite_SaveRecords_KeepsFirstWrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	assert.Equal(t, 1, save(t, st, platform(t, "花呗", "2024-03", 1800)))

	// Same natural key with a different value, plus one new record.
	saved := save(t, st,
		platform(t, "花呗", "2024-03", 9999),
		platform(t, "借呗", "2024-03", 2100),
	)
	assert.Equal(t, 1, saved)

	recs, err := st.ListPlatforms(ctx, Filter{Name: "花呗"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 1800, *recs[0].Issued, 0.001)
}

func TestSQLite_SaveRecords_DistinctProductIsNewKey(t *testing.T) {
	st := newTestSQLiteStore(t)

	joint := platform(t, "网商银行", "2024-03", 3000)
	business := joint
	business.Usage = model.UsageBusiness
	assisted := joint
	assisted.Product = model.ProductAssistedLending

	assert.Equal(t, 3, save(t, st, joint, business, assisted))
}

func TestSQLite_InTx_RollsBackOnError(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx Tx) error {
		n, err := SaveRecords(ctx, tx, []model.Record{platform(t, "花呗", "2024-03", 1800)})
		require.NoError(t, err)
		require.Equal(t, 1, n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	recs, err := st.ListPlatforms(ctx, Filter{})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSQLite_ListPlatforms_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	other := platform(t, "微粒贷", "2024-02", 500)
	other.Group = "腾讯"
	save(t, st,
		platform(t, "花呗", "2024-01", 1),
		platform(t, "花呗", "2024-02", 2),
		platform(t, "花呗", "2024-03", 3),
		other,
	)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"2024-03", "2024-02", "2024-02", "2024-01"}},
		{"by name", Filter{Name: "微粒贷"}, []string{"2024-02"}},
		{"by group", Filter{Group: "腾讯"}, []string{"2024-02"}},
		{"from", Filter{From: period(t, "2024-02"), Name: "花呗"}, []string{"2024-03", "2024-02"}},
		{"to", Filter{To: period(t, "2024-01")}, []string{"2024-01"}},
		{"limit", Filter{Limit: 1}, []string{"2024-03"}},
		{"offset", Filter{Name: "花呗", Limit: 1, Offset: 2}, []string{"2024-01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := st.ListPlatforms(ctx, tt.filter)
			require.NoError(t, err)
			var months []string
			for _, r := range recs {
				months = append(months, r.Period.String())
			}
			assert.Equal(t, tt.want, months)
		})
	}
}

func TestSQLite_DeleteByPeriod(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	bank := model.Record{Kind: model.KindBank, Name: "招商银行", Period: period(t, "2024-02"), TotalInternetLoan: model.Float(1)}
	save(t, st,
		platform(t, "花呗", "2024-01", 1),
		platform(t, "花呗", "2024-02", 2),
		platform(t, "花呗", "2024-03", 3),
		bank,
	)

	n, err := st.DeleteByPeriod(ctx, model.KindPlatform, period(t, "2024-02"), period(t, "2024-03"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	banks, err := st.ListBanks(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, banks, 1)

	n, err = st.DeleteByPeriod(ctx, "", period(t, "2024-01"), period(t, "2024-12"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = st.DeleteByPeriod(ctx, "", period(t, "2024-05"), period(t, "2024-01"))
	assert.Error(t, err)
}

func TestSQLite_SourceHealth(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	h, err := st.GetSourceHealth(ctx, "media_scraper")
	require.NoError(t, err)
	assert.Nil(t, h)

	first := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.UpsertSourceHealth(ctx, model.SourceHealth{
		SourceName:   "media_scraper",
		LastScrapeAt: first,
		LastStatus:   model.RunStatusSuccess,
		Cadence:      model.CadenceDaily,
	}))

	second := first.Add(24 * time.Hour)
	require.NoError(t, st.UpsertSourceHealth(ctx, model.SourceHealth{
		SourceName:   "media_scraper",
		LastScrapeAt: second,
		LastStatus:   model.RunStatusFailed,
	}))

	h, err = st.GetSourceHealth(ctx, "media_scraper")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, model.RunStatusFailed, h.LastStatus)
	assert.Equal(t, model.CadenceDaily, h.Cadence, "empty cadence keeps the stored one")
	assert.True(t, second.Equal(h.LastScrapeAt))

	require.NoError(t, st.UpsertSourceHealth(ctx, model.SourceHealth{
		SourceName: "corporate_scraper", LastScrapeAt: first, LastStatus: model.RunStatusSuccess,
	}))
	all, err := st.ListSourceHealth(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "corporate_scraper", all[0].SourceName)
}

func TestSQLite_Runs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	start := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	runs := []model.RunResult{
		{ID: "r1", Job: "media_scraper", Status: model.RunStatusSuccess, RecordsFound: 4, RecordsSaved: 3,
			StartedAt: start, CompletedAt: start.Add(2 * time.Second), Duration: 2 * time.Second},
		{ID: "r2", Job: "media_scraper", Status: model.RunStatusFailed, RecordsFound: 4,
			StartedAt: start.Add(time.Hour), CompletedAt: start.Add(time.Hour), Error: "store: commit"},
		{ID: "r3", Job: "official_scraper", Status: model.RunStatusSuccess,
			StartedAt: start.Add(2 * time.Hour), CompletedAt: start.Add(2 * time.Hour)},
	}
	for _, r := range runs {
		require.NoError(t, st.InsertRun(ctx, r))
	}

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "r3", all[0].ID)

	media, err := st.ListRuns(ctx, RunFilter{Job: "media_scraper"})
	require.NoError(t, err)
	require.Len(t, media, 2)
	assert.Equal(t, "r2", media[0].ID)
	assert.Equal(t, "store: commit", media[0].Error)

	failed, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 4, failed[0].RecordsFound)
	assert.Equal(t, 0, failed[0].RecordsSaved)

	first, err := st.ListRuns(ctx, RunFilter{Job: "media_scraper", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, "r1", first[0].ID)
	assert.Equal(t, 2*time.Second, first[0].Duration)
	assert.True(t, start.Equal(first[0].StartedAt))
}
