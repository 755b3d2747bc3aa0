package daemon

import (
	"context"
	"os"

	"github.com/inboxmirror/inboxd/internal/blob"
	"github.com/inboxmirror/inboxd/internal/bus"
	"github.com/inboxmirror/inboxd/internal/config"
	"github.com/inboxmirror/inboxd/internal/httpapi"
	"github.com/inboxmirror/inboxd/internal/lock"
	"github.com/inboxmirror/inboxd/internal/logging"
	"github.com/inboxmirror/inboxd/internal/provider"
	"github.com/inboxmirror/inboxd/internal/router"
	"github.com/inboxmirror/inboxd/internal/store"
	intsync "github.com/inboxmirror/inboxd/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(cfg *config.Config) fx.Option {
	return fx.Module("daemon",
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideProviderClient,
			provideBlobUploader,
			provideTracker,
			provideEnricher,
			providePipeline,
			provideHandler,
			provideRouter,
			provideBackfiller,
			provideImporter,
			provideWorker,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(cfg *config.Config, logger *zap.Logger) (*store.DB, error) {
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", cfg.DBPath()))
	return db, nil
}

func provideProviderClient(cfg *config.Config) *provider.Client {
	return provider.NewClient(provider.Options{
		BaseURL:       cfg.Provider.BaseURL,
		Token:         cfg.Provider.Token,
		RatePerSecond: cfg.Provider.RatePerSecond,
	})
}

// provideBlobUploader returns nil when no blob store is configured; the
// attachment pipeline then stores content inline.
func provideBlobUploader(cfg *config.Config, logger *zap.Logger) blob.Uploader {
	if cfg.Blob.BaseURL == "" {
		logger.Info("no blob store configured, attachments stored inline")
		return nil
	}
	return blob.NewClient(blob.Options{
		BaseURL: cfg.Blob.BaseURL,
		Token:   cfg.Blob.Token,
	})
}

func provideTracker(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Tracker {
	return intsync.NewTracker(db, b, logger)
}

func provideEnricher(cfg *config.Config, db *store.DB, client *provider.Client, logger *zap.Logger) *intsync.Enricher {
	return intsync.NewEnricher(db, client, cfg.Sync.OwnerRefreshEvery.Duration, logger)
}

func providePipeline(db *store.DB, client *provider.Client, blobs blob.Uploader, logger *zap.Logger) *intsync.Pipeline {
	return intsync.NewPipeline(db, client, blobs, logger)
}

func provideHandler(db *store.DB, b *bus.Bus, enricher *intsync.Enricher, pipeline *intsync.Pipeline, logger *zap.Logger) *intsync.Handler {
	return intsync.NewHandler(db, b, enricher, pipeline, logger)
}

func provideRouter(db *store.DB, handler *intsync.Handler, logger *zap.Logger) *router.Router {
	return router.New(db, handler, logger)
}

func provideBackfiller(cfg *config.Config, db *store.DB, client *provider.Client, pipeline *intsync.Pipeline, enricher *intsync.Enricher, tracker *intsync.Tracker, logger *zap.Logger) *intsync.Backfiller {
	return intsync.NewBackfiller(db, client, pipeline, enricher, tracker, cfg.Sync, cfg.Provider.Warmup.Duration, logger)
}

func provideImporter(cfg *config.Config, db *store.DB, enricher *intsync.Enricher, pipeline *intsync.Pipeline, logger *zap.Logger) *intsync.Importer {
	return intsync.NewImporter(db, enricher, pipeline, cfg.Sync, logger)
}

func provideWorker(db *store.DB, b *bus.Bus, backfiller *intsync.Backfiller, logger *zap.Logger) *intsync.BackfillWorker {
	return intsync.NewBackfillWorker(db, b, backfiller, logger)
}

func provideServer(cfg *config.Config, db *store.DB, b *bus.Bus, rt *router.Router, importer *intsync.Importer, logger *zap.Logger) (*httpapi.Server, error) {
	return httpapi.NewServer(cfg.ListenAddr, db, b, rt, importer, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *httpapi.Server, worker *intsync.BackfillWorker, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			worker.Start(context.Background())
			srv.Start()
			logger.Info("daemon started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				logger.Warn("error stopping http server", zap.Error(err))
			}
			worker.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
