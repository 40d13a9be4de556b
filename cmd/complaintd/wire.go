package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/events"
	"github.com/spec-kit/complaint-service/internal/llm"
	"github.com/spec-kit/complaint-service/internal/lock"
	"github.com/spec-kit/complaint-service/internal/mailbox"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/persistence"
	"github.com/spec-kit/complaint-service/internal/repository"
	"github.com/spec-kit/complaint-service/internal/seed"
	"github.com/spec-kit/complaint-service/internal/service"
	"github.com/spec-kit/complaint-service/internal/worker"
)

// daemon holds everything a command may need. Fields for collaborators the
// command did not ask for stay nil.
type daemon struct {
	cfg        *config.Config
	logger     *zap.Logger
	metrics    *observability.Metrics
	postgres   *persistence.Postgres
	redis      *persistence.Redis
	store      repository.Store
	dispatcher events.Dispatcher
	auth       *service.AuthService
	llm        llm.Client
	engine     *service.Engine
	review     *service.ReviewService

	closers []func()
}

type wireOptions struct {
	// engine builds the polling engine and review path; both need the LLM.
	engine bool
}

func wire(ctx context.Context, opts wireOptions) (*daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	rt := &daemon{cfg: cfg, logger: logger, metrics: observability.NewMetrics()}
	rt.closers = append(rt.closers, func() { _ = logger.Sync() })

	rt.postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	rt.closers = append(rt.closers, rt.postgres.Close)
	if rt.postgres.Pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, rt.postgres.Pool, logger); err != nil {
			rt.close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	rt.redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	rt.closers = append(rt.closers, rt.redis.Close)

	rt.store = rt.postgres.Store(logger)
	rt.auth, err = service.NewAuthService(*cfg, rt.store.Operators())
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init auth: %w", err)
	}
	rt.dispatcher = events.NewInMemoryDispatcher(logger)

	if cfg.LLM.APIKey != "" {
		rt.llm, err = llm.New(llm.Config{
			APIKey:         cfg.LLM.APIKey,
			BaseURL:        cfg.LLM.BaseURL,
			Model:          cfg.LLM.Model,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		}, logger)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("init llm client: %w", err)
		}
	}

	if seedPath != "" {
		if err := rt.loadSeed(ctx, seedPath); err != nil {
			rt.close()
			return nil, err
		}
	}

	if !opts.engine {
		return rt, nil
	}
	if err := rt.wireEngine(); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

func (rt *daemon) wireEngine() error {
	cfg, logger := rt.cfg, rt.logger
	if rt.llm == nil {
		return errors.New("OPENAI_API_KEY is required to run the engine")
	}

	gateway, err := rt.gateway()
	if err != nil {
		return err
	}
	locker, err := rt.locker()
	if err != nil {
		return err
	}
	if err := rt.attachEventSink(); err != nil {
		return err
	}

	agent := llm.NewAgent(rt.llm)
	advisor := llm.NewAdvisor(rt.llm, rt.store.ResolutionCases(), cfg.LLM.SimilarCases, logger)
	resolver, err := service.BuildAutoResolver(cfg.Worker.AutoResolveStrategy, advisor, rt.store.Weather(), logger)
	if err != nil {
		return fmt.Errorf("auto-resolve strategy: %w", err)
	}

	ingestion := service.NewIngestionService(service.IngestionDependencies{
		Store:       rt.store,
		Classifier:  agent,
		Cache:       persistence.NewDiscardCache(rt.redis.Client, cfg.Worker.DiscardCacheTTL),
		Dispatcher:  rt.dispatcher,
		Metrics:     rt.metrics,
		Logger:      logger.Named("ingest"),
		CallTimeout: cfg.Worker.CallTimeout,
	})
	extraction := service.NewExtractionService(service.ExtractionDependencies{
		Store:       rt.store,
		Extractor:   agent,
		Resolver:    resolver,
		Locker:      locker,
		Dispatcher:  rt.dispatcher,
		Metrics:     rt.metrics,
		Logger:      logger.Named("extract"),
		Routing:     cfg.Routing,
		CallTimeout: cfg.Worker.CallTimeout,
		MaxAttempts: cfg.Worker.MaxExtractionAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
		BackoffMax:  cfg.Worker.BackoffMax,
	})
	resolution := service.NewResolutionService(service.ResolutionDependencies{
		Store:       rt.store,
		Evaluator:   agent,
		Extractor:   agent,
		Locker:      locker,
		Dispatcher:  rt.dispatcher,
		Metrics:     rt.metrics,
		Logger:      logger.Named("resolve"),
		Routing:     cfg.Routing,
		CallTimeout: cfg.Worker.CallTimeout,
		MaxAttempts: cfg.Worker.MaxResolutionAttempts,
		Transient:   llm.IsRetryable,
	})
	notification := service.NewNotificationService(service.NotificationDependencies{
		Outbound:    rt.store.Outbound(),
		Gateway:     gateway,
		Dispatcher:  rt.dispatcher,
		Metrics:     rt.metrics,
		Logger:      logger.Named("dispatch"),
		CallTimeout: cfg.Worker.CallTimeout,
		MaxAttempts: cfg.Worker.MaxDispatchAttempts,
		ClaimLease:  cfg.Worker.LockTTL,
	})
	worker.StartNotificationWorker(notification)

	rt.engine = service.NewEngine(service.EngineDependencies{
		Store:        rt.store,
		Gateway:      gateway,
		Ingestion:    ingestion,
		Extraction:   extraction,
		Resolution:   resolution,
		Notification: notification,
		Metrics:      rt.metrics,
		Logger:       logger.Named("engine"),
		Mailbox:      cfg.Mailbox,
		Worker:       cfg.Worker,
	})
	rt.review = service.NewReviewService(service.ReviewDependencies{
		Store:       rt.store,
		Drafter:     agent,
		Locker:      locker,
		Dispatcher:  rt.dispatcher,
		Logger:      logger.Named("review"),
		Routing:     cfg.Routing,
		CallTimeout: cfg.Worker.CallTimeout,
	})

	logger.Info("engine wired",
		zap.String("mailbox", cfg.Mailbox.Provider),
		zap.String("locker", cfg.Worker.Locker),
		zap.String("auto_resolve", resolver.Name()),
		zap.String("events_sink", cfg.Events.Sink),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)
	return nil
}

func (rt *daemon) gateway() (mailbox.Gateway, error) {
	switch rt.cfg.Mailbox.Provider {
	case "graph":
		return mailbox.NewGraphGateway(mailbox.GraphConfig{
			BaseURL:       rt.cfg.Mailbox.GraphBaseURL,
			AccessToken:   rt.cfg.Mailbox.AccessToken,
			TargetMailbox: rt.cfg.Mailbox.TargetMailbox,
			Timeout:       rt.cfg.Mailbox.HTTPTimeout,
		}, rt.logger.Named("graph")), nil
	case "memory":
		rt.logger.Warn("using in-memory mailbox; nothing is read from or sent to a real mailbox")
		return mailbox.NewMemoryGateway(), nil
	default:
		return nil, fmt.Errorf("unknown mailbox provider %q", rt.cfg.Mailbox.Provider)
	}
}

func (rt *daemon) locker() (lock.Locker, error) {
	if rt.cfg.Worker.Locker != "redis" {
		return lock.NewMutexMap(), nil
	}
	if !rt.redis.Enabled() {
		return nil, errors.New("redis locker requires REDIS_ADDR")
	}
	return lock.NewRedisLocker(rt.redis.Client, rt.cfg.Worker.LockTTL, rt.logger.Named("lock")), nil
}

func (rt *daemon) attachEventSink() error {
	switch rt.cfg.Events.Sink {
	case "kafka":
		pub := events.NewKafkaPublisher(rt.cfg.Events.KafkaBrokers, rt.cfg.Events.KafkaTopic, rt.logger.Named("kafka"))
		rt.closers = append(rt.closers, func() { _ = pub.Close() })
		worker.StartEventSink(rt.dispatcher, pub, rt.logger)
	case "redis":
		if !rt.redis.Enabled() {
			return errors.New("redis events sink requires REDIS_ADDR")
		}
		pub := events.NewRedisStreamPublisher(rt.redis.Client, rt.cfg.Events.RedisStream, rt.logger.Named("redis-stream"))
		worker.StartEventSink(rt.dispatcher, pub, rt.logger)
	}
	return nil
}

func (rt *daemon) loadSeed(ctx context.Context, path string) error {
	f, err := seed.ReadFile(path)
	if err != nil {
		return err
	}
	var embedder seed.Embedder
	if rt.llm != nil {
		embedder = rt.llm
	}
	sum, err := seed.NewLoader(rt.store, rt.auth, embedder, rt.logger).Load(ctx, f)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	rt.logger.Info("seed loaded", zap.String("file", path), zap.Stringer("summary", sum))
	return nil
}

func (rt *daemon) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
