package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/llm-gateway/config"
	"github.com/upb/llm-gateway/handlers"
	"github.com/upb/llm-gateway/middleware"
	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
	"github.com/upb/llm-gateway/repositories/memory"
	"github.com/upb/llm-gateway/repositories/postgres"
	"github.com/upb/llm-gateway/services/catalog"
	"github.com/upb/llm-gateway/services/health"
	"github.com/upb/llm-gateway/services/inference"
	"github.com/upb/llm-gateway/services/providers"
	"github.com/upb/llm-gateway/services/providers/anthropic"
	"github.com/upb/llm-gateway/services/providers/mock"
	"github.com/upb/llm-gateway/services/providers/openai"
	"github.com/upb/llm-gateway/services/routing"
	"github.com/upb/llm-gateway/services/usage"
)

// anonymousAuth is the caller identity used when no API keys are configured
// outside production
var anonymousAuth = models.AuthContext{
	APIKeyID:     "anonymous",
	TenantID:     "local",
	ProjectID:    "local",
	APIKeyPrefix: "anon",
}

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger
	DB     *postgres.DB // nil unless the catalog or usage sink uses Postgres
	Redis  *redis.Client

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Repositories *repositories.Repositories
	TxManager    repositories.TransactionManager

	// Services
	ProviderRegistry *providers.Registry
	Catalog          *catalog.Service
	HealthTracker    *health.Tracker
	Router           *routing.RoutingService
	Dispatcher       *inference.Dispatcher
	Usage            *usage.Service

	// HTTP
	AuthMiddleware   *middleware.AuthMiddleware
	InferenceHandler *handlers.InferenceHandler
	ModelsHandler    *handlers.ModelsHandler
	UsageHandler     *handlers.UsageHandler
	HealthHandler    *handlers.HealthHandler
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if cfg.NeedsDatabase() {
		if err := deps.initDatabase(ctx); err != nil {
			deps.closeQuietly()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	if err := deps.initRepositories(); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initHealth(ctx); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize health store: %w", err)
	}

	if err := deps.initProviders(); err != nil {
		deps.closeQuietly()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}

	deps.initServices()
	deps.initAuth()
	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.String("usage_sink", cfg.Usage.Sink),
		zap.String("health_store", cfg.Health.Store),
		zap.Strings("providers", deps.ProviderRegistry.ListProviders()))
	return deps, nil
}

// initDatabase opens the PostgreSQL pool and verifies it
func (d *Dependencies) initDatabase(ctx context.Context) error {
	factory, err := postgres.NewRepositoryFactory(d.Config.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}

	d.RepoFactory = factory
	d.DB = factory.GetDB()

	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", d.Config.Database.LogString()))
	return nil
}

// initRepositories picks the catalog source and the usage sink
func (d *Dependencies) initRepositories() error {
	var pg *repositories.Repositories
	if d.RepoFactory != nil {
		pg = d.RepoFactory.NewRepositories()
	}

	var catalogRepo repositories.CatalogRepository
	switch d.Config.Catalog.Source {
	case config.CatalogSourcePostgres:
		catalogRepo = pg.Catalog
	default:
		fileRepo, err := memory.LoadCatalogFile(d.Config.Catalog.Path)
		if err != nil {
			return err
		}
		catalogRepo = fileRepo
		d.Logger.Info("catalog loaded from file",
			zap.String("path", d.Config.Catalog.Path),
			zap.Int("models", fileRepo.Len()))
	}

	switch d.Config.Usage.Sink {
	case config.UsageSinkPostgres:
		d.Repositories = &repositories.Repositories{
			Catalog:       catalogRepo,
			Usage:         pg.Usage,
			RequestAudits: pg.RequestAudits,
		}
		d.TxManager = d.RepoFactory.GetTransactionManager()
	default:
		d.Repositories = memory.NewRepositories(catalogRepo)
		d.TxManager = memory.NewTransactionManager()
	}

	d.Logger.Info("repositories initialized")
	return nil
}

// initHealth builds the tracker over the in-process or Redis store
func (d *Dependencies) initHealth(ctx context.Context) error {
	var store health.Store = health.NewMemoryStore()

	if d.Config.Health.Store == config.HealthStoreRedis {
		opts, err := redis.ParseURL(d.Config.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis ping failed: %w", err)
		}
		d.Redis = client
		store = health.NewRedisStore(client)
		d.Logger.Info("redis health store connected", zap.String("addr", opts.Addr))
	}

	d.HealthTracker = health.NewTracker(store, d.Logger)
	return nil
}

// initProviders registers every configured adapter
func (d *Dependencies) initProviders() error {
	registry := providers.NewRegistry()
	cfg := d.Config.Providers

	if cfg.Mock.Enabled {
		if err := registry.RegisterProvider(mock.New()); err != nil {
			return err
		}
	}

	if cfg.OpenAI.APIKey != "" {
		pc := providers.DefaultProviderConfig()
		pc.APIKey = cfg.OpenAI.APIKey
		pc.BaseURL = cfg.OpenAI.BaseURL
		if cfg.OpenAI.Timeout > 0 {
			pc.Timeout = cfg.OpenAI.Timeout
		}
		if err := registry.RegisterProvider(openai.NewOpenAIAdapter(pc)); err != nil {
			return err
		}
	}

	if cfg.Anthropic.APIKey != "" {
		pc := providers.DefaultProviderConfig()
		pc.APIKey = cfg.Anthropic.APIKey
		pc.BaseURL = cfg.Anthropic.BaseURL
		if cfg.Anthropic.Timeout > 0 {
			pc.Timeout = cfg.Anthropic.Timeout
		}
		if err := registry.RegisterProvider(anthropic.NewAdapter(pc)); err != nil {
			return err
		}
	}

	if registry.GetProviderCount() == 0 {
		d.Logger.Warn("no LLM providers configured")
	}

	d.ProviderRegistry = registry
	return nil
}

func (d *Dependencies) initServices() {
	cfg := d.Config

	d.Catalog = catalog.NewService(d.Repositories.Catalog, cfg.Catalog.CacheTTL, d.Logger)

	d.Router = routing.NewRoutingService(routing.RoutingConfig{
		DefaultStrategy:     routing.Strategy(cfg.Routing.DefaultStrategy),
		MaxFallbacks:        cfg.Routing.MaxFallbacks,
		HealthWindowMinutes: cfg.Health.WindowMinutes,
	}, d.Catalog, d.HealthTracker, d.Logger)

	recorder := usage.NewRecorder(d.TxManager, d.Repositories.Usage, d.Repositories.RequestAudits, d.Logger)

	dispatch := inference.DefaultConfig()
	if cfg.Routing.AttemptTimeout > 0 {
		dispatch.AttemptTimeout = cfg.Routing.AttemptTimeout
	}
	if cfg.Routing.RateLimitBackoff > 0 {
		dispatch.RateLimitBackoff = cfg.Routing.RateLimitBackoff
	}
	d.Dispatcher = inference.NewDispatcher(dispatch, d.Router, d.ProviderRegistry, d.HealthTracker, recorder, d.Logger)

	d.Usage = usage.NewService(d.Repositories.Usage, d.Logger)
}

func (d *Dependencies) initAuth() {
	resolver := middleware.NewStaticKeyResolver(d.Config.Auth.APIKeys)
	d.AuthMiddleware = middleware.NewAuthMiddleware(resolver, d.Logger)

	if resolver.Len() == 0 {
		if d.Config.IsProduction() {
			d.Logger.Warn("no API keys configured, every /v1 request will be rejected")
			return
		}
		d.Logger.Warn("no API keys configured, serving /v1 anonymously",
			zap.String("tenant_id", anonymousAuth.TenantID))
		d.AuthMiddleware.AllowAnonymous(anonymousAuth)
	}
}

func (d *Dependencies) initHandlers() {
	checks := map[string]handlers.Checker{}
	if d.DB != nil {
		checks["database"] = handlers.DatabaseCheck(d.DB.DB)
	}
	if d.Redis != nil {
		checks["redis"] = handlers.RedisCheck(d.Redis)
	}

	d.InferenceHandler = handlers.NewInferenceHandler(d.Dispatcher, d.Logger)
	d.ModelsHandler = handlers.NewModelsHandler(d.Catalog, d.HealthTracker, d.Config.Health.WindowMinutes,
		routing.Strategy(d.Config.Routing.DefaultStrategy), d.Logger)
	d.UsageHandler = handlers.NewUsageHandler(d.Usage, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(checks, d.ProviderRegistry, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

func (d *Dependencies) closeQuietly() {
	if d.RepoFactory != nil {
		_ = d.RepoFactory.Close()
	}
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
}
