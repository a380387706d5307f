// Package scheduler fires harvest jobs on independent cron triggers,
// serializes executions per job and records per-source health after every
// run.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/runner"
	"github.com/sells-group/lending-harvest/internal/source"
	"github.com/sells-group/lending-harvest/internal/store"
)

var (
	// ErrUnknownJob is returned when a job id is not configured.
	ErrUnknownJob = eris.New("scheduler: unknown job")
	// ErrJobRunning is returned when a job is triggered while it is running.
	ErrJobRunning = eris.New("scheduler: job already running")
	// ErrNotStarted is returned by Stop on a scheduler that is not running.
	ErrNotStarted = eris.New("scheduler: not started")
)

// Job binds an adapter to a cron trigger.
type Job struct {
	ID      string
	Name    string
	Adapter string
	Cron    string // standard 5-field expression
	Cadence model.Cadence
	Options source.Options

	// Disabled jobs are never triggered or caught up but still run on demand.
	Disabled bool
}

// JobInfo describes a configured job for observability.
type JobInfo struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Adapter string        `json:"adapter"`
	Cron    string        `json:"cron"`
	Cadence model.Cadence `json:"cadence,omitempty"`
	NextRun time.Time     `json:"next_run"`
	Running bool          `json:"running"`
	Enabled bool          `json:"enabled"`
}

// Config holds the collaborators a Scheduler needs.
type Config struct {
	Jobs     []Job
	Registry *source.Registry
	Deps     source.Deps
	Executor *runner.Executor
	Store    store.Store
	Location *time.Location
}

type entry struct {
	job      Job
	schedule cron.Schedule
	running  atomic.Bool
}

// Scheduler owns the cron substrate and the Source Health lifecycle.
type Scheduler struct {
	reg   *source.Registry
	deps  source.Deps
	exec  *runner.Executor
	store store.Store
	loc   *time.Location
	now   func() time.Time
	log   *zap.Logger

	jobs  map[string]*entry
	order []string

	mu   sync.Mutex
	cron *cron.Cron
}

// New validates cfg and builds a Scheduler. Jobs are not triggered until
// Start is called; RunNow works either way.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Registry == nil || cfg.Executor == nil || cfg.Store == nil {
		return nil, eris.New("scheduler: registry, executor and store are required")
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Scheduler{
		reg:   cfg.Registry,
		deps:  cfg.Deps,
		exec:  cfg.Executor,
		store: cfg.Store,
		loc:   loc,
		now:   time.Now,
		log:   zap.L().With(zap.String("component", "scheduler")),
		jobs:  make(map[string]*entry, len(cfg.Jobs)),
	}

	for _, j := range cfg.Jobs {
		if j.ID == "" {
			return nil, eris.New("scheduler: job id is required")
		}
		if _, dup := s.jobs[j.ID]; dup {
			return nil, eris.Errorf("scheduler: duplicate job id %q", j.ID)
		}
		if !s.reg.Has(j.Adapter) {
			return nil, eris.Wrapf(source.ErrUnknownAdapter, "scheduler: job %s adapter %q", j.ID, j.Adapter)
		}
		sched, err := cron.ParseStandard(j.Cron)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: job %s cron %q", j.ID, j.Cron)
		}
		if j.Name == "" {
			j.Name = j.ID
		}
		s.jobs[j.ID] = &entry{job: j, schedule: sched}
		s.order = append(s.order, j.ID)
	}
	return s, nil
}

// Start registers every job with a fresh cron instance and starts firing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return eris.New("scheduler: already started")
	}

	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	for _, id := range s.order {
		e := s.jobs[id]
		if e.job.Disabled {
			continue
		}
		c.Schedule(e.schedule, cron.FuncJob(func() { s.fire(e) }))
	}
	c.Start()
	s.cron = c

	s.log.Info("scheduler started", zap.Int("jobs", len(c.Entries())), zap.String("timezone", s.loc.String()))
	return nil
}

// Stop halts triggers and waits for in-flight runs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return ErrNotStarted
	}

	done := c.Stop()
	select {
	case <-done.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "scheduler: stop")
	}
}

// fire is the cron callback. Runs are not cancellable once started.
func (s *Scheduler) fire(e *entry) {
	_, err := s.execute(context.Background(), e)
	if eris.Is(err, ErrJobRunning) {
		s.log.Warn("trigger skipped, job still running", zap.String("job", e.job.ID))
	}
}

// RunNow runs the job synchronously on the caller's goroutine.
func (s *Scheduler) RunNow(ctx context.Context, id string) (model.RunResult, error) {
	e, ok := s.jobs[id]
	if !ok {
		return model.RunResult{}, eris.Wrapf(ErrUnknownJob, "scheduler: run %q", id)
	}
	return s.execute(ctx, e)
}

// execute holds the job's try-lock for the whole run. The returned error
// is non-nil only when the run could not start.
func (s *Scheduler) execute(ctx context.Context, e *entry) (model.RunResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return model.RunResult{}, eris.Wrapf(ErrJobRunning, "scheduler: run %q", e.job.ID)
	}
	defer e.running.Store(false)

	var res model.RunResult
	a, err := s.reg.Create(e.job.Adapter, s.deps, e.job.Options)
	if err != nil {
		s.log.Error("adapter construction failed", zap.String("job", e.job.ID), zap.Error(err))
		res = s.exec.Failed(e.job.ID, err)
	} else {
		res = s.exec.Run(ctx, e.job.ID, a, nil)
	}

	s.record(ctx, e.job, res)
	return res, nil
}

// record writes Source Health and run history. Failures are logged only;
// the run outcome already stands.
func (s *Scheduler) record(ctx context.Context, j Job, res model.RunResult) {
	ctx = context.WithoutCancel(ctx)
	health := model.SourceHealth{
		SourceName:   j.ID,
		LastScrapeAt: res.CompletedAt,
		LastStatus:   res.Status,
		Cadence:      j.Cadence,
	}
	if err := s.store.UpsertSourceHealth(ctx, health); err != nil {
		s.log.Error("source health update failed", zap.String("job", j.ID), zap.Error(err))
	}
	if err := s.store.InsertRun(ctx, res); err != nil {
		s.log.Error("run history insert failed", zap.String("job", j.ID), zap.Error(err))
	}
}

// ListJobs returns every configured job in configuration order.
func (s *Scheduler) ListJobs() []JobInfo {
	now := s.now().In(s.loc)
	out := make([]JobInfo, 0, len(s.order))
	for _, id := range s.order {
		e := s.jobs[id]
		info := JobInfo{
			ID:      e.job.ID,
			Name:    e.job.Name,
			Adapter: e.job.Adapter,
			Cron:    e.job.Cron,
			Cadence: e.job.Cadence,
			Running: e.running.Load(),
			Enabled: !e.job.Disabled,
		}
		if info.Enabled {
			info.NextRun = e.schedule.Next(now)
		}
		out = append(out, info)
	}
	return out
}

// CatchUp runs, in configuration order, every job whose last recorded run
// falls outside its cadence window. Disabled jobs and jobs without a
// cadence are skipped.
func (s *Scheduler) CatchUp(ctx context.Context) ([]model.RunResult, error) {
	now := s.now().In(s.loc)
	var results []model.RunResult
	for _, id := range s.order {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "scheduler: catch up")
		}
		e := s.jobs[id]
		if e.job.Disabled || e.job.Cadence == "" {
			continue
		}

		h, err := s.store.GetSourceHealth(ctx, id)
		if err != nil {
			return results, eris.Wrapf(err, "scheduler: catch up %s", id)
		}
		var last *time.Time
		if h != nil && !h.LastScrapeAt.IsZero() {
			t := h.LastScrapeAt.In(s.loc)
			last = &t
		}
		if !Due(e.job.Cadence, now, last) {
			s.log.Debug("catch up skipped, not due", zap.String("job", id))
			continue
		}

		s.log.Info("catching up", zap.String("job", id))
		res, err := s.execute(ctx, e)
		if err != nil {
			s.log.Warn("catch up skipped", zap.String("job", id), zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// Health returns Source Health rows for configured jobs, including jobs
// that have never run.
func (s *Scheduler) Health(ctx context.Context) ([]model.SourceHealth, error) {
	rows, err := s.store.ListSourceHealth(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: health")
	}
	seen := make(map[string]bool, len(rows))
	for _, h := range rows {
		seen[h.SourceName] = true
	}
	for _, id := range s.order {
		if !seen[id] {
			rows = append(rows, model.SourceHealth{SourceName: id, Cadence: s.jobs[id].job.Cadence})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].SourceName < rows[j].SourceName })
	return rows, nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
