// Package runner wraps one adapter's scrape and persist cycle in a timed,
// transactional envelope that always yields a RunResult.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/source"
	"github.com/sells-group/lending-harvest/internal/store"
)

// PersistFunc writes candidates through tx and returns how many were
// inserted. Returning an error rolls the whole run back.
type PersistFunc func(ctx context.Context, tx store.Tx, recs []model.Record) (int, error)

// Executor runs jobs against a store.
type Executor struct {
	store store.Store
	now   func() time.Time
	newID func() string
}

// New creates an Executor persisting into st.
func New(st store.Store) *Executor {
	return &Executor{
		store: st,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Run scrapes with a, hands the candidates to persist inside one store
// transaction and reports the outcome. It never returns an error: scrape
// failures, persist failures and panics all become a failed RunResult with
// RecordsSaved forced to zero. A nil persist uses store.SaveRecords.
func (e *Executor) Run(ctx context.Context, job string, a source.Adapter, persist PersistFunc) model.RunResult {
	if persist == nil {
		persist = store.SaveRecords
	}
	log := zap.L().With(zap.String("component", "runner"), zap.String("job", job), zap.String("adapter", a.Name()))

	res := model.RunResult{
		ID:        e.newID(),
		Job:       job,
		StartedAt: e.now().UTC(),
	}
	log.Info("run started", zap.String("run_id", res.ID))

	found, saved, err := e.execute(ctx, a, persist)
	res.RecordsFound = found
	res.CompletedAt = e.now().UTC()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)

	if err != nil {
		res.Status = model.RunStatusFailed
		res.Error = err.Error()
		log.Error("run failed",
			zap.String("run_id", res.ID),
			zap.Int("records_found", found),
			zap.Duration("duration", res.Duration),
			zap.Error(err),
		)
		return res
	}

	res.Status = model.RunStatusSuccess
	res.RecordsSaved = saved
	log.Info("run complete",
		zap.String("run_id", res.ID),
		zap.Int("records_found", found),
		zap.Int("records_saved", saved),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// Failed builds the result of a run that could not start, such as one
// whose adapter failed to construct.
func (e *Executor) Failed(job string, err error) model.RunResult {
	now := e.now().UTC()
	return model.RunResult{
		ID:          e.newID(),
		Job:         job,
		Status:      model.RunStatusFailed,
		StartedAt:   now,
		CompletedAt: now,
		Error:       err.Error(),
	}
}

func (e *Executor) execute(ctx context.Context, a source.Adapter, persist PersistFunc) (found, saved int, err error) {
	var recs []model.Record
	err = guard(func() error {
		var err error
		recs, err = a.Scrape(ctx)
		return err
	})
	if err != nil {
		return 0, 0, eris.Wrap(err, "runner: scrape")
	}
	found = len(recs)

	// A panic in persist must surface inside InTx so the transaction rolls back.
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		return guard(func() error {
			n, err := persist(ctx, tx, recs)
			if err != nil {
				return err
			}
			saved = n
			return nil
		})
	})
	if err != nil {
		return found, 0, eris.Wrap(err, "runner: persist")
	}
	return found, saved, nil
}

// guard runs fn and converts a panic into an error.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.New(fmt.Sprintf("panic: %v", r))
		}
	}()
	return fn()
}
