// Package app builds the optional run sinks (archive, notifications, run
// ledger) from configuration and owns their lifecycle.
package app

import (
	"context"
	"fmt"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/JakeFAU/edge-sitemaps/internal/config"
	"github.com/JakeFAU/edge-sitemaps/internal/generator"
	pubmemory "github.com/JakeFAU/edge-sitemaps/internal/publisher/memory"
	"github.com/JakeFAU/edge-sitemaps/internal/publisher/pubsub"
	"github.com/JakeFAU/edge-sitemaps/internal/storage"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/gcs"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/local"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/memory"
	"github.com/JakeFAU/edge-sitemaps/internal/storage/postgres"
)

// App holds the shared, long-lived services for one CLI invocation. Sinks
// that are not configured are nil.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     storage.BlobStore
	publisher generator.Publisher
	ledger    generator.RunLedger
	closers   []func() error
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the artifact archive, or nil.
func (a *App) Store() storage.BlobStore { return a.store }

// Publisher returns the notification sink, or nil.
func (a *App) Publisher() generator.Publisher { return a.publisher }

// Ledger returns the run ledger, or nil.
func (a *App) Ledger() generator.RunLedger { return a.ledger }

// New initializes every configured sink and fails fast if one cannot start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Storage.Provider {
	case "", "none":
		a.logger.Debug("artifact archive disabled")
	case "memory":
		a.store = memory.NewBlobStore()
	case "local":
		store, err := local.New(a.cfg.Storage.Local)
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.store = store
	case "gcs":
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, a.cfg.Storage.GCS)
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.store = store
		a.logger.Info("archiving artifacts to gcs", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
	default:
		return fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	switch a.cfg.Notify.Provider {
	case "", "none":
		a.logger.Debug("run notifications disabled")
	case "memory":
		a.publisher = pubmemory.New()
	case "pubsub":
		pub, closeFn, err := pubsub.Connect(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, closeFn)
		a.publisher = pub
		a.logger.Info("publishing run notifications", zap.String("topic", a.cfg.Notify.Topic))
	default:
		return fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
	return nil
}

func (a *App) initLedger(ctx context.Context) error {
	if a.cfg.RunStore.DSN == "" {
		return nil
	}
	store, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
		DSN:   a.cfg.RunStore.DSN,
		Table: a.cfg.RunStore.Table,
	})
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}
	a.ledger = store
	return nil
}

// Close shuts down every service in reverse start order.
func (a *App) Close() {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	if err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
}
