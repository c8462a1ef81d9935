package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/draftsync/api/controllers"
	"github.com/angelmondragon/draftsync/api/routes"
	"github.com/angelmondragon/draftsync/internal/connectivity"
	"github.com/angelmondragon/draftsync/internal/drafts"
	"github.com/angelmondragon/draftsync/internal/legacy"
	"github.com/angelmondragon/draftsync/internal/metadata"
	"github.com/angelmondragon/draftsync/internal/progress"
	"github.com/angelmondragon/draftsync/internal/remote"
	"github.com/angelmondragon/draftsync/internal/uploadqueue"
	"github.com/angelmondragon/draftsync/pkg/config"
	"github.com/angelmondragon/draftsync/pkg/db"
	"github.com/angelmondragon/draftsync/pkg/logger"
	"github.com/angelmondragon/draftsync/pkg/metrics"
	"github.com/angelmondragon/draftsync/pkg/pubsub"
	"github.com/angelmondragon/draftsync/pkg/redis"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "draftsyncd"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "draftsyncd",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"port": cfg.App.Port,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	store, err := drafts.NewStore(drafts.StoreParams{DB: dbClient, Logger: logg})
	if err != nil {
		logg.Error(ctx, "failed to create draft store", err)
		os.Exit(1)
	}
	if err := store.Initialize(ctx); err != nil {
		logg.Error(ctx, "failed to initialize draft store", err)
		os.Exit(1)
	}

	metaRepo := metadata.NewRepository(dbClient.DB())
	migrator, err := legacy.NewMigrator(legacy.MigratorParams{
		Store:    store,
		Metadata: metaRepo,
		Sources:  legacy.DefaultSources(cfg.Legacy.Dir, metaRepo),
		Logger:   logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create legacy migrator", err)
		os.Exit(1)
	}
	runLegacyMigration(ctx, logg, migrator)

	remoteClient, err := remote.NewClient(cfg.Remote.BaseURL,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Remote.RequestTimeout}),
		remote.WithAPIToken(cfg.Remote.APIToken),
		remote.WithHealthPath(cfg.Remote.HealthPath),
	)
	if err != nil {
		logg.Error(ctx, "failed to create remote client", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	uploadMetrics := metrics.NewUploadMetrics(registry)
	cronMetrics := metrics.NewCronJobMetrics(registry)

	checks := map[string]controllers.Pinger{}
	bus := progress.NewBroadcaster(progress.WithLogger(logg))

	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap pubsub", err)
			os.Exit(1)
		}
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		forwarder := progress.NewForwarder(psClient.ProgressPublisher(), logg)
		if forwarder != nil {
			bus.Subscribe(forwarder.Listener())
		}
		checks["pubsub"] = psClient
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to bootstrap redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
		checks["redis"] = redisClient
	}

	watcher, err := connectivity.NewWatcher(connectivity.WatcherParams{
		Pinger:   remoteClient,
		Interval: cfg.Sync.OnlineCheckInterval,
		Logger:   logg,
		Metrics:  uploadMetrics,
	})
	if err != nil {
		logg.Error(ctx, "failed to create connectivity watcher", err)
		os.Exit(1)
	}

	processor, err := uploadqueue.NewProcessor(uploadqueue.ProcessorParams{
		Store:        store,
		Remote:       remoteClient,
		Progress:     bus,
		Connectivity: watcher,
		Metrics:      uploadMetrics,
		Logger:       logg,
		Backoff: &uploadqueue.BackoffPolicy{
			Base:       cfg.Sync.BackoffBase,
			Max:        cfg.Sync.BackoffMax,
			Jitter:     cfg.Sync.BackoffJitter,
			MaxRetries: cfg.Sync.MaxRetries,
		},
		CallTimeout:      cfg.Remote.RequestTimeout,
		StaleUploadAfter: cfg.Sync.StaleUploadAfter,
	})
	if err != nil {
		logg.Error(ctx, "failed to create upload processor", err)
		os.Exit(1)
	}
	defer processor.Close()

	if recovered, err := processor.Recover(ctx); err != nil {
		logg.Error(ctx, "failed to recover interrupted uploads", err)
	} else if recovered > 0 {
		logg.Info(logg.WithField(ctx, "recovered", recovered), "interrupted uploads returned to the queue")
	}

	watcher.OnReconnect(func(ctx context.Context) {
		if _, err := processor.ProcessQueue(ctx); err != nil && !errors.Is(err, uploadqueue.ErrAlreadyProcessing) {
			logg.Error(ctx, "reconnect upload pass failed", err)
		}
	})

	schedulers, err := newSchedulers(cfg, logg, store, processor, redisClient, cronMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create schedulers", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr: ":" + cfg.App.Port,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:       cfg,
			Logger:       logg,
			DB:           dbClient,
			Checks:       checks,
			Connectivity: watcher,
			Drafts:       store,
			Queue:        processor,
			Migrator:     migrator,
			Gatherer:     registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logg.Info(ctx, "starting draftsync daemon")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		watcher.Run(gctx)
		return nil
	})
	for _, svc := range schedulers {
		g.Go(func() error {
			if err := svc.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logg.Error(ctx, "draftsync daemon stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "draftsync daemon shutting down gracefully")
}

func runLegacyMigration(ctx context.Context, logg *logger.Logger, migrator *legacy.Migrator) {
	report, err := migrator.MigrateLegacyDrafts(ctx)
	if err != nil {
		logg.Error(ctx, "legacy draft migration failed", err)
		return
	}
	if report.AlreadyDone {
		return
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"imported": report.Imported,
		"skipped":  report.Skipped,
		"complete": report.Complete,
	})
	logg.Info(logCtx, "legacy drafts migrated")
}
