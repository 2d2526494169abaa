package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/glimpse/pkg/budget"
	"github.com/pario-ai/glimpse/pkg/cache"
	cachestore "github.com/pario-ai/glimpse/pkg/cache/sqlite"
	"github.com/pario-ai/glimpse/pkg/capture"
	"github.com/pario-ai/glimpse/pkg/clock"
	"github.com/pario-ai/glimpse/pkg/config"
	"github.com/pario-ai/glimpse/pkg/distill"
	"github.com/pario-ai/glimpse/pkg/embedding"
	"github.com/pario-ai/glimpse/pkg/inference"
	"github.com/pario-ai/glimpse/pkg/metadata"
	"github.com/pario-ai/glimpse/pkg/models"
	"github.com/pario-ai/glimpse/pkg/pipeline"
	"github.com/pario-ai/glimpse/pkg/ringbuffer"
	"github.com/pario-ai/glimpse/pkg/router"
	"github.com/pario-ai/glimpse/pkg/scheduler"
	"github.com/pario-ai/glimpse/pkg/tracker"
	"github.com/pario-ai/glimpse/pkg/vision"
)

// app holds every long-lived component of a running Glimpse process.
type app struct {
	cfg *config.Config
	log *zap.Logger

	ring      *ringbuffer.Buffer
	tracker   *tracker.SQLiteTracker
	store     *cachestore.Store
	cache     *cache.Cache
	ledger    *budget.Ledger
	queue     *distill.Queue
	spooler   *distill.Spooler
	assembler *capture.Assembler
	engine    *router.Engine
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler

	closers []func() error
}

// appOptions overrides the components newApp would otherwise build from
// configuration.
type appOptions struct {
	Metadata capture.MetadataProvider
	Local    inference.Backend
	Cloud    inference.Backend
	Listener pipeline.Listener
	Sink     router.TokenSink
	Clock    clock.Clock
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, opts appOptions) (*app, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close()
		}
	}()

	var err error
	a.tracker, err = tracker.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init tracker: %w", err)
	}
	a.closers = append(a.closers, a.tracker.Close)

	a.ledger, err = budget.NewLedger(ctx, budget.Options{
		Ceiling: cfg.Router.DailyCostCeiling,
		Tracker: a.tracker,
		Clock:   opts.Clock,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("init ledger: %w", err)
	}

	if cfg.Cache.Enabled {
		a.store, err = cachestore.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init cache store: %w", err)
		}
		a.closers = append(a.closers, a.store.Close)

		emb, err := embedding.NewEngine(ctx, cfg.Embedding, cfg.Cloud.APIKey)
		if err != nil {
			return nil, fmt.Errorf("init embedding: %w", err)
		}
		a.cache, err = cache.New(cache.Options{
			Capacity:  cfg.Cache.Capacity,
			Threshold: cfg.Cache.SimilarityThreshold,
			MaxAge:    cfg.Cache.MaxAge,
			Embedder:  emb,
			Store:     a.store,
			Clock:     opts.Clock,
			Logger:    log,
		})
		if err != nil {
			return nil, fmt.Errorf("init cache: %w", err)
		}
	}

	a.queue = distill.NewQueue(cfg.Distill.Capacity, opts.Clock, log)
	a.spooler = distill.NewSpooler(a.queue, cfg.Distill.SpoolPath, log)

	local, cloud, err := backends(ctx, cfg, opts, log)
	if err != nil {
		return nil, err
	}
	rules, err := router.NewRulebook(cfg.Rulebook)
	if err != nil {
		return nil, fmt.Errorf("init rulebook: %w", err)
	}
	calibrator := router.NewCalibrator(map[models.Backend]float64{
		models.BackendLocal: cfg.Local.Confidence,
		models.BackendCloud: cfg.Cloud.Confidence,
	})
	a.engine, err = router.New(router.Options{
		Local:      local,
		Cloud:      cloud,
		Cache:      a.cache,
		Ledger:     a.ledger,
		Tracker:    a.tracker,
		Queue:      a.queue,
		Rulebook:   rules,
		Tokens:     router.LengthEstimator{PerRune: 1.5, Min: 48, Max: 4 * cfg.Router.CompletionTokens},
		Calibrator: calibrator,
		Profiles: map[models.Backend]router.Profile{
			models.BackendLocal: {
				TokensPerSecond: cfg.Local.TokensPerSecond,
				Overhead:        cfg.Local.Overhead,
				Confidence:      cfg.Local.Confidence,
			},
			models.BackendCloud: {
				TokensPerSecond: cfg.Cloud.TokensPerSecond,
				Overhead:        cfg.Cloud.Overhead,
				Confidence:      cfg.Cloud.Confidence,
				Pricing:         cfg.Cloud.Pricing,
			},
		},
		CloudBias:        cfg.Router.CloudBias,
		FallbackWindow:   cfg.Router.FallbackWindow,
		CompletionTokens: cfg.Router.CompletionTokens,
		EarlyExit: router.EarlyExit{
			Enabled:   cfg.Router.EarlyExit,
			Threshold: cfg.Router.EarlyExitThreshold,
			MinTokens: cfg.Router.EarlyExitMinTokens,
		},
		Clock:  opts.Clock,
		Logger: log,
	})
	if err != nil {
		return nil, fmt.Errorf("init router: %w", err)
	}

	a.ring = ringbuffer.New(cfg.Ring.Capacity, opts.Clock)
	copts := capture.Options{
		Events:           a.ring,
		Metadata:         opts.Metadata,
		EventWindow:      cfg.Ring.Window,
		MaxBytes:         cfg.Snapshot.MaxBytes,
		CaptionTimeout:   cfg.Snapshot.CaptionTimeout,
		RequireWindow:    cfg.Snapshot.RequireWindow,
		RequireProcesses: cfg.Snapshot.RequireProcesses,
		Clock:            opts.Clock,
		Logger:           log,
	}
	if copts.Metadata == nil {
		copts.Metadata = metadata.NewLinux(nil, log)
	}
	if cfg.Vision.Enabled && cfg.Cloud.APIKey != "" {
		captioner, err := vision.NewGenAICaptioner(ctx, cfg.Cloud.APIKey, cfg.Vision.Model)
		if err != nil {
			return nil, fmt.Errorf("init captioner: %w", err)
		}
		copts.Screen = vision.NewCommandScreen(nil, "")
		copts.Captioner = captioner
	}
	a.assembler, err = capture.New(copts)
	if err != nil {
		return nil, fmt.Errorf("init assembler: %w", err)
	}

	a.pipeline, err = pipeline.New(pipeline.Options{
		Events:    a.ring,
		Assembler: a.assembler,
		Router:    a.engine,
		Listener:  opts.Listener,
		Sink:      opts.Sink,
		Feedback:  a.engine,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	a.scheduler = scheduler.New(opts.Clock, log)
	if err := a.scheduleJobs(); err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

// backends builds the local and cloud backends. Cloud is skipped without an
// API key.
func backends(ctx context.Context, cfg *config.Config, opts appOptions, log *zap.Logger) (local, cloud inference.Backend, err error) {
	local = opts.Local
	if local == nil && cfg.Local.URL != "" {
		local = inference.NewOllamaBackend(cfg.Local.URL, cfg.Local.Model)
	}
	cloud = opts.Cloud
	if cloud == nil && cfg.Cloud.APIKey != "" {
		g, err := inference.NewGenAIBackend(ctx, cfg.Cloud.APIKey, cfg.Cloud.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("init cloud backend: %w", err)
		}
		cloud = g
	}
	if cloud == nil {
		log.Info("cloud backend disabled, no API key configured")
	}
	if local == nil && cloud == nil {
		return nil, nil, fmt.Errorf("no backends configured: set local.url or cloud.api_key")
	}
	return local, cloud, nil
}

type scheduledJob struct {
	name string
	spec string
	fn   scheduler.JobFunc
}

func (a *app) scheduleJobs() error {
	jobs := []scheduledJob{
		{"recalibrate", a.cfg.Calibration.Schedule, func(context.Context) error {
			a.engine.Recalibrate()
			return nil
		}},
		{"distill-spool", a.cfg.Distill.SpoolSchedule, func(context.Context) error {
			n, err := a.spooler.Flush()
			if n > 0 {
				a.log.Info("spooled distillation records",
					zap.Int("count", n),
					zap.Int("queued", a.queue.Len()),
					zap.Int64("dropped", a.queue.Dropped()))
			}
			return err
		}},
	}
	if a.cache != nil && a.cfg.Cache.MaxAge > 0 {
		jobs = append(jobs, scheduledJob{"cache-sweep", a.cfg.Cache.SweepSchedule, func(context.Context) error {
			if n := a.cache.Sweep(); n > 0 {
				a.log.Info("swept expired cache entries", zap.Int("count", n))
			}
			return nil
		}})
	}
	for _, j := range jobs {
		if err := a.scheduler.Add(j.name, j.spec, j.fn); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes pending distillation records and releases resources.
func (a *app) Close() error {
	var errs []error
	if a.spooler != nil {
		if _, err := a.spooler.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
