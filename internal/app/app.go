package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"speedlog/internal/config"
	"speedlog/internal/measure"
	"speedlog/internal/metrics"
	"speedlog/internal/paths"
	"speedlog/internal/provider"
	"speedlog/internal/schedule"
	"speedlog/internal/selector"
	"speedlog/internal/storage"
	"speedlog/internal/storage/jsonl"
	"speedlog/internal/storage/postgres"
	"speedlog/internal/storage/sqlite"
	"speedlog/internal/summary"
	pkgerrors "speedlog/pkg/errors"
)

// SQLiteFile is the database name used when the sqlite driver is selected
// without an explicit path.
const SQLiteFile = "speedlog.db"

// App represents the application context
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    storage.Store
	Provider provider.Provider
	Metrics  *metrics.Metrics

	// Out receives human-readable progress lines.
	Out io.Writer
}

// New creates a new application instance from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := NewLogger(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Storage)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("storage opened", zap.String("driver", cfg.Storage.Driver))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Provider: provider.NewSpeedtest(cfg.Provider.Timeout),
		Metrics:  metrics.New(),
		Out:      os.Stdout,
	}, nil
}

// NewLogger returns a console logger writing to stderr at the given level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.Sampling = nil
	return cfg.Build()
}

// OpenStore opens the record log selected by sc.Driver.
func OpenStore(ctx context.Context, sc config.StorageConfig) (storage.Store, error) {
	switch sc.Driver {
	case config.DriverFile:
		store, err := jsonl.Open(sc.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverSQLite:
		path := sc.Path
		if path == "" || path == config.DefaultLogPath {
			dir, err := paths.DataDir()
			if err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
			path = filepath.Join(dir, SQLiteFile)
		}
		db, err := sqlite.New(path)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, sc.DSN)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("storage driver %q: %w", sc.Driver, pkgerrors.ErrUnknownDriver)
}

// NewSelector returns a server selector using the configured provider.
func (a *App) NewSelector() *selector.Selector {
	return selector.New(selector.Params{
		Provider:   a.Provider,
		Candidates: a.Config.Selector.Candidates,
		Probes:     a.Config.Selector.Probes,
		Workers:    a.Config.Selector.Workers,
		Logger:     a.Logger.Named("selector"),
	})
}

// NewRunner returns a measurement runner that appends to the store and
// feeds the metrics. Progress lines go to out.
func (a *App) NewRunner(out io.Writer) *measure.Runner {
	return measure.New(measure.Params{
		Provider: a.Provider,
		Store:    a.Store,
		Out:      out,
		Logger:   a.Logger.Named("measure"),
		Observer: a.Metrics,
	})
}

// NewLoop returns the measurement loop. maxCycles of zero runs until the
// context passed to Run is cancelled.
func (a *App) NewLoop(maxCycles int) *schedule.Loop {
	return schedule.NewLoop(schedule.Params{
		Selector:   a.NewSelector(),
		Runner:     a.NewRunner(a.Out),
		Interval:   a.Config.Interval,
		Attempts:   a.Config.Schedule.Attempts,
		RetryDelay: a.Config.Schedule.RetryDelay,
		MaxCycles:  maxCycles,
		Out:        a.Out,
		Logger:     a.Logger.Named("loop"),
	})
}

// MeasureOnce selects a server with a single attempt and measures it.
func (a *App) MeasureOnce(ctx context.Context, out io.Writer) *measure.Outcome {
	id, _ := a.NewSelector().Select(ctx)
	return a.NewRunner(out).Run(ctx, id)
}

// NewScheduler returns a stopped scheduler carrying the background jobs
// enabled in the configuration.
func (a *App) NewScheduler(ctx context.Context) (*schedule.Scheduler, error) {
	s, err := schedule.NewScheduler(nil, a.Logger.Named("scheduler"))
	if err != nil {
		return nil, err
	}
	if iv := a.Config.Summary.Interval; iv > 0 {
		err := s.Every("summary", iv, false, func() {
			a.ReportSummary(ctx, time.Now().Add(-iv))
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ReportSummary logs aggregate statistics for the records taken at or after
// since.
func (a *App) ReportSummary(ctx context.Context, since time.Time) {
	recs, err := a.Store.List(ctx, 0)
	if err != nil {
		a.Logger.Error("cannot read records for summary", zap.Error(err))
		return
	}
	s := summary.Compute(summary.Since(recs, since))
	fields := []zap.Field{
		zap.Int("records", s.Records),
		zap.Int("failed", s.Failed),
		zap.Float64("success_rate", s.SuccessRate()),
	}
	if s.Download.Count > 0 {
		fields = append(fields,
			zap.Float64("download_mean_mbps", s.Download.Mean),
			zap.Float64("upload_mean_mbps", s.Upload.Mean))
	}
	a.Logger.Info("summary", fields...)
}

// Close closes the application and releases resources
func (a *App) Close() error {
	var err error
	if a.Store != nil {
		err = a.Store.Close()
	}
	if a.Logger != nil {
		// Sync on a terminal stderr fails with EINVAL.
		_ = a.Logger.Sync()
	}
	return err
}
