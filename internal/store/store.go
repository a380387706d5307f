// Package store persists harvested records, run history and per-source
// health in SQLite or PostgreSQL.
package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/model"
)

// Filter narrows record listings. Zero fields are ignored; From and To are
// inclusive.
type Filter struct {
	Name   string       `json:"name,omitempty"`
	Group  string       `json:"group,omitempty"` // company_group for platforms, bank_type for banks
	From   model.Period `json:"from,omitempty"`
	To     model.Period `json:"to,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Job    string          `json:"job,omitempty"`
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Tx is the write side of one run transaction. Inserts never overwrite:
// a record whose natural key already exists is skipped and reported as
// not inserted.
type Tx interface {
	InsertPlatformIfAbsent(ctx context.Context, r model.Record) (bool, error)
	InsertBankIfAbsent(ctx context.Context, r model.Record) (bool, error)
}

// Store defines the persistence interface for the harvester.
type Store interface {
	// InTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Records
	ListPlatforms(ctx context.Context, f Filter) ([]model.Record, error)
	ListBanks(ctx context.Context, f Filter) ([]model.Record, error)
	DeleteByPeriod(ctx context.Context, kind model.RecordKind, from, to model.Period) (int64, error)

	// Source health
	UpsertSourceHealth(ctx context.Context, h model.SourceHealth) error
	GetSourceHealth(ctx context.Context, name string) (*model.SourceHealth, error)
	ListSourceHealth(ctx context.Context) ([]model.SourceHealth, error)

	// Run history
	InsertRun(ctx context.Context, r model.RunResult) error
	ListRuns(ctx context.Context, f RunFilter) ([]model.RunResult, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// SaveRecords inserts each record if its natural key is absent and returns
// how many were inserted. It is the shared persistence step of every job.
// Records without a name or a valid period are skipped with a warning;
// any insert error aborts so the caller's transaction rolls back.
func SaveRecords(ctx context.Context, tx Tx, recs []model.Record) (int, error) {
	saved := 0
	for _, r := range recs {
		r = r.WithDefaults()
		if r.Name == "" || !r.Period.Valid() {
			zap.L().Warn("store: skipping record without name or period",
				zap.String("name", r.Name), zap.String("source_url", r.SourceURL))
			continue
		}

		var (
			inserted bool
			err      error
		)
		switch r.Kind {
		case model.KindBank:
			inserted, err = tx.InsertBankIfAbsent(ctx, r)
		default:
			inserted, err = tx.InsertPlatformIfAbsent(ctx, r)
		}
		if err != nil {
			return saved, eris.Wrapf(err, "store: save %s", r.NaturalKey())
		}
		if inserted {
			saved++
		}
	}
	return saved, nil
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}
