package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/lending-harvest/internal/config"
	"github.com/sells-group/lending-harvest/internal/entity"
	"github.com/sells-group/lending-harvest/internal/fetcher"
	"github.com/sells-group/lending-harvest/internal/model"
	"github.com/sells-group/lending-harvest/internal/ocr"
	"github.com/sells-group/lending-harvest/internal/runner"
	"github.com/sells-group/lending-harvest/internal/scheduler"
	"github.com/sells-group/lending-harvest/internal/source"
	"github.com/sells-group/lending-harvest/internal/store"
)

// harvestEnv holds the initialized components shared by run, serve and jobs.
type harvestEnv struct {
	Store     store.Store
	Registry  *source.Registry
	Scheduler *scheduler.Scheduler
	tempDir   string
}

// Close releases the store and removes downloaded documents.
func (e *harvestEnv) Close() {
	if e.tempDir != "" {
		_ = os.RemoveAll(e.tempDir)
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initHarvest validates config for mode and wires the store, fetcher,
// registry, executor and scheduler.
func initHarvest(ctx context.Context, mode string) (*harvestEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "load timezone %s", cfg.Schedule.Timezone)
	}
	jobs, err := buildJobs(cfg.Schedule.Jobs, cfg.Sources)
	if err != nil {
		return nil, err
	}
	extractor, err := ocr.NewExtractor(cfg.OCR)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &harvestEnv{Store: st, Registry: source.NewDefaultRegistry()}

	env.tempDir, err = os.MkdirTemp("", "harvest-*")
	if err != nil {
		env.Close()
		return nil, eris.Wrap(err, "create temp dir")
	}

	deps := source.Deps{
		Fetcher:    newFetcher(cfg.Fetch),
		OCR:        extractor,
		Recognizer: entity.NewDefault(),
		TempDir:    env.tempDir,
	}
	env.Scheduler, err = scheduler.New(scheduler.Config{
		Jobs:     jobs,
		Registry: env.Registry,
		Deps:     deps,
		Executor: runner.New(st),
		Store:    st,
		Location: loc,
	})
	if err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

// newFetcher converts fetch config, expressed in time units, to fetcher
// options. A non-positive host rate disables per-host throttling.
func newFetcher(fc config.FetchConfig) *fetcher.HTTPFetcher {
	hostRate := rate.Inf
	if fc.HostRate > 0 {
		hostRate = rate.Limit(fc.HostRate)
	}
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:        time.Duration(fc.TimeoutSecs) * time.Second,
		MaxRetries:     fc.MaxRetries,
		UserAgents:     fc.UserAgents,
		PaceMin:        fc.Units(fc.PaceMin),
		PaceMax:        fc.Units(fc.PaceMax),
		BackoffMin:     fc.Units(fc.BackoffMin),
		BackoffMax:     fc.Units(fc.BackoffMax),
		HostRate:       hostRate,
		BlockThreshold: fc.BlockThreshold,
		BlockCooldown:  fc.BlockCooldown,
	})
}

// buildJobs maps job config to scheduler jobs, applying per-source
// overrides of base URL, listing path and keyword allowlist.
func buildJobs(jobs []config.JobConfig, sources map[string]config.SourceConfig) ([]scheduler.Job, error) {
	out := make([]scheduler.Job, 0, len(jobs))
	for _, j := range jobs {
		var cadence model.Cadence
		if j.Cadence != "" {
			c, err := model.ParseCadence(j.Cadence)
			if err != nil {
				return nil, eris.Wrapf(err, "job %s", j.ID)
			}
			cadence = c
		}

		opts := source.Options{
			Source:   j.Source,
			MaxItems: j.MaxItems,
			Search:   j.Keywords,
			Days:     j.Days,
		}
		if sc, ok := sources[j.Source]; ok {
			opts.BaseURL = sc.BaseURL
			opts.ListPath = sc.ListPath
			opts.Allow = sc.Keywords
		}

		out = append(out, scheduler.Job{
			ID:       j.ID,
			Name:     j.Name,
			Adapter:  j.Adapter,
			Cron:     j.Cron,
			Cadence:  cadence,
			Options:  opts,
			Disabled: j.Disabled,
		})
	}
	return out, nil
}
