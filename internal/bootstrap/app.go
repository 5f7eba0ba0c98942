package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	"github.com/mohammadpnp/bulk-import/internal/config"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/events"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/metrics"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/parser"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/repository"
	httpecho "github.com/mohammadpnp/bulk-import/internal/interfaces/http/echo"
)

// multipartOverhead is added to the file size limit for the request body.
const multipartOverhead = 1 << 20

// App is the wired service: queue, event sinks, use cases and HTTP server.
type App struct {
	cfg config.Config
	log *zap.Logger
	db  *Database

	Queue       *app.Queue
	Broadcaster *app.Broadcaster
	Metrics     *metrics.Recorder
	Server      *echo.Echo

	Submit    app.SubmitImport
	GetJob    app.GetImportJob
	Subscribe app.SubscribeImportJob

	archive *events.ArchiveSink
	nats    *events.NATSPublisher
}

// NewApp wires the service on top of an open database. The caller keeps
// ownership of db.
func NewApp(cfg config.Config, db *Database, log *zap.Logger) (*App, error) {
	p := parser.New(parser.Config{
		HeaderScanRows: cfg.Import.HeaderScanRows,
		LazyQuotes:     cfg.Import.LazyQuotes,
	})
	loader := repository.NewBulkImportRepository(db.SQL, db.Dialect, repository.BulkImportOptions{
		Strategy:          repository.StagingStrategy(cfg.Import.StagingStrategy),
		BatchSize:         cfg.Import.BatchSize,
		MaxStoredFailures: cfg.Import.MaxStoredFailures,
		ThroughputFloor:   float64(cfg.Import.ThroughputFloor) / 60,
	}, log.Named("loader"))
	pipeline := app.NewPipeline(p, loader, app.PipelineConfig{ProgressEvery: cfg.Import.ProgressEvery}, log.Named("pipeline"))

	a := &App{cfg: cfg, log: log, db: db}
	a.Broadcaster = app.NewBroadcaster(app.BroadcasterConfig{
		PingInterval:   cfg.Broadcaster.PingInterval,
		CompletedGrace: cfg.Broadcaster.CompletedGrace,
		FailedGrace:    cfg.Broadcaster.FailedGrace,
		Buffer:         cfg.Broadcaster.Buffer,
	})
	a.Metrics = metrics.NewRecorder()
	publishers := app.MultiPublisher{a.Broadcaster, a.Metrics}

	var archive app.JobArchive
	if cfg.Archive.Enabled && db.Gorm != nil {
		repo := repository.NewImportJobRepository(db.Gorm)
		a.archive = events.NewArchiveSink(repo, cfg.Archive.Buffer, log)
		publishers = append(publishers, a.archive)
		archive = repo
	}
	if cfg.NATS.URL != "" {
		np, err := events.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, log)
		if err != nil {
			return nil, err
		}
		a.nats = np
		publishers = append(publishers, np)
	}

	a.Queue = app.NewQueue(pipeline, publishers, app.QueueConfig{
		Workers:       cfg.Import.Workers,
		JobTimeout:    cfg.Import.JobTimeout,
		Retention:     cfg.Import.Retention,
		SweepInterval: cfg.Import.SweepInterval,
	}, log.Named("queue"))

	a.Submit = app.NewSubmitImport(a.Queue, p, cfg.Import.MaxFileSize)
	a.GetJob = app.NewGetImportJob(a.Queue, archive)
	a.Subscribe = app.NewSubscribeImportJob(a.Queue, archive, a.Broadcaster)

	a.Server = NewHTTPServer(HTTPDeps{
		Import:       httpecho.NewImportHandler(a.Submit),
		Jobs:         httpecho.NewJobHandler(a.GetJob, app.NewListImportJobs(a.Queue), app.NewCancelImportJob(a.Queue)),
		Events:       httpecho.NewEventsHandler(a.Subscribe),
		Metrics:      a.Metrics.Handler(),
		MaxBodyBytes: cfg.Import.MaxFileSize + multipartOverhead,
		Log:          log,
	})
	return a, nil
}

// StartWorkers runs the queue and the archive sink until ctx is done. The
// returned function waits for both to stop.
func (a *App) StartWorkers(ctx context.Context) (wait func() error) {
	g, gctx := errgroup.WithContext(ctx)
	a.Queue.Start(gctx)
	g.Go(func() error {
		a.Queue.Wait()
		return nil
	})
	if a.archive != nil {
		g.Go(func() error { return a.archive.Run(gctx) })
	}
	return g.Wait
}

// Run serves HTTP and processes jobs until ctx is cancelled, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	waitWorkers := a.StartWorkers(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + a.cfg.Server.Port
		a.log.Info("http server listening", zap.String("addr", addr))
		if err := a.Server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer stop()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	cancel()
	if werr := waitWorkers(); err == nil {
		err = werr
	}
	return err
}

func (a *App) Close() {
	if a.nats != nil {
		if err := a.nats.Close(); err != nil {
			a.log.Warn("close nats", zap.Error(err))
		}
	}
}
