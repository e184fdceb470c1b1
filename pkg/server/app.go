package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/robfig/cron/v3"

	"CoinPull/internal/handler/api"
	mid "CoinPull/internal/middleware"
	"CoinPull/internal/usecase"
	"CoinPull/pkg/config"
	xhttp "CoinPull/pkg/http"
	applogger "CoinPull/pkg/logger"
)

// App runs serve mode: the HTTP API plus scheduled collection runs.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	job        *usecase.CollectionJob
	pipeline   *mid.SinkPipeline
	hub        *api.ProgressHub
	httpServer *xhttp.Server
	closers    []io.Closer
	cron       *cron.Cron
	runOnStart bool
	wg         sync.WaitGroup
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	job *usecase.CollectionJob,
	pipeline *mid.SinkPipeline,
	hub *api.ProgressHub,
	httpServer *xhttp.Server,
	closers ...io.Closer,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		job:        job,
		pipeline:   pipeline,
		hub:        hub,
		httpServer: httpServer,
		closers:    closers,
		runOnStart: true,
	}
}

// SetRunOnStart controls whether a collection starts immediately instead of
// waiting for the first scheduled tick.
func (a *App) SetRunOnStart(v bool) { a.runOnStart = v }

// Start launches the sink pipeline, the scheduler and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	if a.pipeline != nil {
		// queued batches must still drain after ctx is cancelled
		a.pipeline.Start(context.WithoutCancel(ctx))
	}

	clog := cronLogger{l: a.log}
	a.cron = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	job := cron.FuncJob(func() { a.collect(ctx) })
	if _, err := a.cron.AddJob(a.cfg.Collector.Schedule, job); err != nil {
		return fmt.Errorf("schedule %q: %w", a.cfg.Collector.Schedule, err)
	}
	a.cron.Start()
	a.log.Info("scheduler started", applogger.String("schedule", a.cfg.Collector.Schedule))

	if a.runOnStart {
		// through the chain, so a tick firing meanwhile is skipped
		for _, e := range a.cron.Entries() {
			a.wg.Add(1)
			go func(j cron.Job) {
				defer a.wg.Done()
				j.Run()
			}(e.WrappedJob)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

func (a *App) collect(ctx context.Context) {
	res, err := a.job.Run(ctx)
	switch {
	case errors.Is(err, usecase.ErrAlreadyRunning):
		a.log.Warn("collection skipped, previous run still active")
	case err != nil && !errors.Is(err, context.Canceled):
		a.log.Error("scheduled collection failed", applogger.Error(err))
	case res != nil:
		a.log.Info("scheduled collection done",
			applogger.String("run_id", res.RunID),
			applogger.Int("rows_added", res.RowsAdded),
			applogger.Int("total_rows", res.TotalRows),
		)
	}
}

// Run starts the app and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	return a.Shutdown(context.Background())
}

// Shutdown stops the scheduler, waits for a running collection, drains the
// sinks and closes infrastructure clients.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.wg.Wait()

	if err := a.httpServer.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.pipeline != nil {
		a.pipeline.Stop()
	}

	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.log.Warn("close error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

// cronLogger routes scheduler messages through the app logger.
type cronLogger struct {
	l *applogger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(kvFields(keysAndValues), applogger.Error(err))...)
}

func kvFields(kv []interface{}) []applogger.Field {
	fields := make([]applogger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, applogger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
