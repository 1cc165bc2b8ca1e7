// Package container provides dependency injection using Uber FX
package container

import (
	"context"

	appformula "github.com/formulab/v2/internal/application/formula"
	"github.com/formulab/v2/internal/domain/catalog"
	"github.com/formulab/v2/internal/domain/formula"
	"github.com/formulab/v2/internal/infrastructure/ai"
	"github.com/formulab/v2/internal/infrastructure/ai/anthropic"
	"github.com/formulab/v2/internal/infrastructure/ai/openai"
	"github.com/formulab/v2/internal/infrastructure/cache"
	"github.com/formulab/v2/internal/infrastructure/config"
	"github.com/formulab/v2/internal/infrastructure/http/handlers"
	"github.com/formulab/v2/internal/infrastructure/http/server"
	"github.com/formulab/v2/internal/infrastructure/persistence/migrations"
	"github.com/formulab/v2/internal/infrastructure/persistence/postgres"
	"github.com/formulab/v2/internal/ports/inbound"
	"github.com/formulab/v2/internal/ports/outbound"
	"github.com/formulab/v2/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides all dependency injection modules
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	DatabaseModule,
	CacheModule,
	RepositoryModule,
	DomainModule,
	AIModule,
	ServiceModule,
	HTTPModule,
	LifecycleModule,
)

// ConfigModule provides configuration
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load("")
	},
)

// LoggerModule provides logging
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// DatabaseModule provides the PostgreSQL pool with migrations applied
var DatabaseModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
		if cfg.Database.AutoMigrate {
			if err := migrations.Run(cfg.Database.DSN(), log); err != nil {
				return nil, err
			}
		}
		return postgres.NewPool(context.Background(), cfg.Database, log)
	},
)

// CacheModule provides the Redis client and the completion cache. A disabled
// or unreachable Redis leaves both nil: generation runs uncached and rate
// limiting is skipped.
var CacheModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *redis.Client {
		if !cfg.Redis.Enabled {
			log.Info("redis disabled")
			return nil
		}
		client, err := cache.NewRedisClient(context.Background(), cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, running without cache and rate limiting", zap.Error(err))
			return nil
		}
		return client
	},
	func(cfg *config.Config, client *redis.Client, log *zap.Logger) outbound.CompletionCache {
		if client == nil || !cfg.AI.EnableCache {
			log.Info("completion cache disabled")
			return nil
		}
		return cache.NewCompletionCache(client, log)
	},
)

// RepositoryModule provides repository implementations
var RepositoryModule = fx.Provide(
	fx.Annotate(
		postgres.NewFormulaRepository,
		fx.As(new(outbound.FormulaRepository)),
	),
	fx.Annotate(
		postgres.NewChangeLogRepository,
		fx.As(new(outbound.ChangeLog)),
	),
)

// DomainModule provides the catalog and validator
var DomainModule = fx.Provide(
	func() *catalog.Catalog {
		return catalog.Default()
	},
	func(cfg *config.Config, cat *catalog.Catalog) *formula.Validator {
		return formula.NewValidator(cat, formula.Options{
			CapsuleCapacityMg: cfg.Formula.CapsuleCapacityMg,
			MinIngredients:    cfg.Formula.MinIngredients,
			MaxIngredients:    cfg.Formula.MaxIngredients,
			MinDoseMg:         cfg.Formula.MinDoseMg,
			AllowedCounts:     cfg.Formula.AllowedCounts,
			DefaultCount:      cfg.Formula.DefaultCount,
		})
	},
)

// AIModule provides the configured LLM provider behind a circuit breaker
var AIModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) outbound.AIProvider {
		var provider outbound.AIProvider
		switch cfg.AI.Provider {
		case ai.ProviderAnthropic:
			provider = anthropic.NewClient(anthropic.Config{
				APIKey:  cfg.AI.AnthropicKey,
				BaseURL: cfg.AI.AnthropicBase,
				Model:   ai.NormalizeModel(ai.ProviderAnthropic, cfg.AI.AnthropicModel),
				Timeout: cfg.AI.Timeout,
			}, log)
		default:
			provider = openai.NewClient(openai.Config{
				APIKey:  cfg.AI.OpenAIKey,
				BaseURL: cfg.AI.OpenAIBaseURL,
				Model:   ai.NormalizeModel(ai.ProviderOpenAI, cfg.AI.OpenAIModel),
				Timeout: cfg.AI.Timeout,
			}, log)
		}
		return ai.WithBreaker(provider, ai.NewCircuitBreaker(provider.Name()))
	},
)

// ServiceModule provides application services
var ServiceModule = fx.Provide(
	func(
		provider outbound.AIProvider,
		cat *catalog.Catalog,
		validator *formula.Validator,
		formulaRepo outbound.FormulaRepository,
		changeLog outbound.ChangeLog,
		completionCache outbound.CompletionCache,
		cfg *config.Config,
		log *zap.Logger,
	) inbound.FormulaService {
		return appformula.NewFormulaService(
			provider, cat, validator, formulaRepo, changeLog, completionCache,
			appformula.Options{
				Temperature: cfg.AI.Temperature,
				MaxTokens:   cfg.AI.MaxTokens,
				CacheTTL:    cfg.AI.CacheTTL,
			},
			log,
		)
	},
)

// HTTPModule provides the API handlers and server
var HTTPModule = fx.Provide(
	handlers.NewFormulaAPI,
	server.NewServer,
)

// LifecycleModule ties server startup and shutdown to the fx lifecycle
var LifecycleModule = fx.Invoke(
	func(lc fx.Lifecycle, srv *server.Server, pool *pgxpool.Pool, redisClient *redis.Client, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(_ context.Context) error {
				go func() {
					if err := srv.Start(); err != nil {
						log.Error("http server failed", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				defer pool.Close()
				if redisClient != nil {
					defer redisClient.Close()
				}
				return srv.Shutdown(ctx)
			},
		})
	},
)
