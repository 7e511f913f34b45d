package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/rssnews/internal/api"
	"github.com/jonesrussell/north-cloud/rssnews/internal/config"
	"github.com/jonesrussell/north-cloud/rssnews/internal/coordination"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/metrics"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

// Closer releases a resource opened by a factory.
type Closer func()

// NewRedis connects to the shared Redis instance.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	return client, nil
}

// NewLockFactory builds the configured lock implementation. The lease lock
// shares client; redlock opens one client per configured instance.
func NewLockFactory(cfg config.RedisConfig, client *redis.Client) (coordination.Factory, Closer, error) {
	if cfg.Lock != config.LockRedlock {
		return coordination.NewLeaseFactory(client, cfg.LockLease), func() {}, nil
	}

	clients := make([]*redis.Client, 0, len(cfg.LockAddrs))
	for _, addr := range cfg.LockAddrs {
		clients = append(clients, redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password}))
	}

	closeAll := func() {
		for _, c := range clients {
			_ = c.Close()
		}
	}

	factory, err := coordination.NewRedlockFactory(clients, cfg.LockLease)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	return factory, closeAll, nil
}

// Stores bundles the configured article store and registry.
type Stores struct {
	Articles storage.ArticleStore
	Registry storage.Registry
	closers  []Closer
}

// Close releases every backend connection.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// OpenStores connects the backends selected by cfg.Storage. Mongo is
// connected once when it serves both roles.
func OpenStores(ctx context.Context, cfg *config.Config, log logger.Logger) (*Stores, error) {
	stores := &Stores{}

	var mongoStores *mongoBackends
	if cfg.Storage.Articles == storage.BackendMongo || cfg.Storage.Registry == storage.BackendMongo {
		client, err := storage.ConnectMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, func() { _ = client.Disconnect(context.Background()) })
		mongoStores = &mongoBackends{
			articles: storage.NewMongoArticleStore(client, cfg.Mongo),
			registry: storage.NewMongoRegistry(client, cfg.Mongo),
		}
	}

	switch cfg.Storage.Articles {
	case storage.BackendElasticsearch:
		client, err := storage.NewElasticsearchClient(cfg.Elasticsearch)
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores.Articles = storage.NewElasticsearchArticleStore(client, cfg.Elasticsearch)
	default:
		stores.Articles = mongoStores.articles
	}

	switch cfg.Storage.Registry {
	case storage.BackendPostgres:
		db, err := storage.ConnectPostgres(ctx, cfg.Postgres)
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores.closers = append(stores.closers, func() { _ = db.Close() })
		registry := storage.NewPostgresRegistry(db)
		if schemaErr := registry.EnsureSchema(ctx); schemaErr != nil {
			stores.Close()
			return nil, schemaErr
		}
		stores.Registry = registry
	default:
		stores.Registry = mongoStores.registry
	}

	log.Info("Storage ready",
		logger.String("articles", cfg.Storage.Articles),
		logger.String("registry", cfg.Storage.Registry),
	)

	return stores, nil
}

type mongoBackends struct {
	articles *storage.MongoArticleStore
	registry *storage.MongoRegistry
}

// NewArchiver returns the raw markup archiver, or nil when disabled.
func NewArchiver(cfg storage.MinioConfig) (*storage.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // disabled archiving is not an error
	}
	return storage.NewArchiver(cfg)
}

// NewMetrics creates a registry with the process collectors and the
// application metrics.
func NewMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

// StartServer runs the admin server in the background when enabled. The
// returned channel yields the server's exit error.
func StartServer(
	ctx context.Context,
	deps *CommandDeps,
	client redis.Cmdable,
	reg prometheus.Gatherer,
	service string,
) <-chan error {
	errCh := make(chan error, 1)

	if !deps.Config.Server.Enabled {
		close(errCh)
		return errCh
	}

	srv := api.NewServer(deps.Config.Server, api.Deps{
		Redis:    client,
		Gatherer: reg,
		Service:  service,
		Version:  deps.Version,
		Logger:   deps.Logger,
	})

	go func() {
		defer close(errCh)
		if err := srv.Run(ctx); err != nil {
			deps.Logger.Error("Admin server failed", logger.Error(err))
			errCh <- err
		}
	}()

	return errCh
}

// IgnoreCanceled maps a context cancellation to a clean exit. Steps cut short
// by shutdown can surface a wrapped context.Canceled.
func IgnoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
