// Package app wires the catalog service together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cloudgames/catalog/internal/config"
	"github.com/cloudgames/catalog/internal/event"
	handler "github.com/cloudgames/catalog/internal/handler/http"
	"github.com/cloudgames/catalog/internal/repository/postgres"
	"github.com/cloudgames/catalog/internal/search"
	esengine "github.com/cloudgames/catalog/internal/search/elasticsearch"
	"github.com/cloudgames/catalog/internal/search/memory"
	"github.com/cloudgames/catalog/internal/service"
	"github.com/cloudgames/catalog/migrations"
	"github.com/cloudgames/catalog/pkg/database"
	"github.com/cloudgames/catalog/pkg/health"
	pkgkafka "github.com/cloudgames/catalog/pkg/kafka"
)

// App wires together all dependencies and runs the catalog service.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	pool        *pgxpool.Pool
	redisClient *redis.Client
	producer    *pkgkafka.Producer
	dlq         *pkgkafka.DLQProducer
	consumer    *pkgkafka.Consumer
	catalog     *service.CatalogService
	httpServer  *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Search engine.
	var eng search.Engine
	var esEng *esengine.Engine
	switch cfg.SearchEngine {
	case "elasticsearch":
		var err error
		esEng, err = esengine.New(cfg.ElasticsearchURL, cfg.ElasticsearchIndex, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("index", cfg.ElasticsearchIndex),
		)
	default:
		eng = memory.New()
		logger.Info("in-memory search engine initialized")
	}

	// Postgres.
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}
	database.RegisterPoolMetrics(pool, "catalog")

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	repo := postgres.NewProductRepository(pool)

	// Kafka producers.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	// Idempotency store: Redis when configured, in-process otherwise.
	var redisClient *redis.Client
	var idemStore pkgkafka.IdempotencyStore
	if cfg.RedisHost != "" {
		redisClient, err = database.NewRedisClient(ctx, cfg.Redis())
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init redis client: %w", err)
		}
		idemStore = pkgkafka.NewRedisIdempotencyStore(redisClient, "catalog:orders", cfg.IdempotencyTTL)
		logger.Info("redis idempotency store initialized", slog.String("addr", cfg.Redis().Addr()))
	} else {
		idemStore = pkgkafka.NewMemoryIdempotencyStore(cfg.IdempotencyTTL)
		logger.Info("in-memory idempotency store initialized")
	}

	// Services.
	catalogService := service.NewCatalogService(repo, eng, logger)
	stockService := service.NewStockService(repo, event.NewPublisher(producer), logger)

	// Order consumer: deduplicated by order ID so a redelivered
	// authorization never deducts twice.
	orderHandler := event.NewOrderHandler(stockService, logger)
	dedupedHandler := pkgkafka.IdempotentHandler(idemStore, pkgkafka.KeyByAggregateID, orderHandler.Handle, logger)

	consumer := pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ConsumerGroup,
		Topic:    event.TopicOrderAuthorized,
		MinBytes: 1,
		MaxBytes: 10e6, // 10 MB
	}, dedupedHandler, dlq, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", pool.Ping)
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})
	if esEng != nil {
		healthHandler.Register("elasticsearch", esEng.Ping)
	}
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	router := handler.NewRouter(catalogService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		redisClient: redisClient,
		producer:    producer,
		dlq:         dlq,
		consumer:    consumer,
		catalog:     catalogService,
		httpServer:  httpServer,
	}, nil
}

// Run starts the HTTP server and the order consumer, blocking until the
// context is canceled or a component fails.
func (a *App) Run(ctx context.Context) error {
	// The index may be empty or stale relative to Postgres; converge it in
	// the background so boot never blocks on Elasticsearch.
	if a.cfg.ReindexOnStartup {
		go func() {
			if _, err := a.catalog.Reindex(ctx); err != nil {
				a.logger.Error("startup reindex failed", slog.String("error", err.Error()))
			}
		}()
	}

	errCh := make(chan error, 2)

	go func() {
		if err := a.consumer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("kafka consumer: %w", err)
		}
	}()

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.consumer.Close(); err != nil {
		a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}
	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dlq producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
