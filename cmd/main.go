package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/vtuber-plan/purifly/internal/cache/memory"
	rediscache "github.com/vtuber-plan/purifly/internal/cache/redis"
	"github.com/vtuber-plan/purifly/internal/config"
	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/http"
	"github.com/vtuber-plan/purifly/internal/http/middleware"
	"github.com/vtuber-plan/purifly/internal/observability"
	"github.com/vtuber-plan/purifly/internal/provider/echo"
	"github.com/vtuber-plan/purifly/internal/provider/openai"
	"github.com/vtuber-plan/purifly/internal/provider/registry"
	"github.com/vtuber-plan/purifly/internal/resilience"
	"github.com/vtuber-plan/purifly/internal/routing"
)

func main() {
	container := buildContainer()

	err := container.Invoke(func(server *http.Server) {
		if err := server.Start(); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
}

func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor any) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide dependency: %v", err)
		}
	}

	// Configuration
	provide(config.Load)
	provide(config.ParseDependenciesConfig)

	// Observability
	provide(observability.InitLogger)
	provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	})

	// Provider Registry
	provide(func(cfg *config.HealthConfig) domain.ProviderRegistry {
		return registry.NewRegistry(registry.Config{
			DegradedThreshold:    cfg.DegradedThreshold,
			UnavailableThreshold: cfg.UnavailableThreshold,
			FailureWindow:        cfg.FailureWindow,
		})
	})

	// Router and Executor
	provide(func(reg domain.ProviderRegistry) domain.Router {
		return routing.NewRouter(reg)
	})
	provide(func(reg domain.ProviderRegistry, events domain.EventPublisher, retryCfg *config.RetryConfig, pipelineCfg *config.PipelineConfig) domain.Executor {
		return resilience.NewExecutor(reg, events, resilience.Config{
			MaxAttempts:     retryCfg.MaxAttempts,
			InitialInterval: retryCfg.InitialInterval,
			Multiplier:      retryCfg.Multiplier,
			MaxInterval:     retryCfg.MaxInterval,
			MaxElapsedTime:  retryCfg.MaxElapsedTime,
			AttemptTimeout:  retryCfg.AttemptTimeout,
			ReorderWindow:   pipelineCfg.ReorderWindow,
		})
	})

	// Response Cache
	provide(func(cfg *config.CacheConfig) (domain.ResponseCache, error) {
		if cfg.Backend == "redis" {
			client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
			return rediscache.NewCache(client, cfg.RedisPrefix)
		}
		return memory.New(cfg.MaxEntries)
	})

	// Register providers with registry (invoked for side effects)
	if err := container.Invoke(registerProviders); err != nil {
		log.Fatalf("Failed to register providers: %v", err)
	}

	// Domain Services
	provide(func(
		reg domain.ProviderRegistry,
		router domain.Router,
		executor domain.Executor,
		cache domain.ResponseCache,
		events domain.EventPublisher,
		pipelineCfg *config.PipelineConfig,
		cacheCfg *config.CacheConfig,
	) *domain.GatewayService {
		return domain.NewGatewayService(reg, router, executor, cache, events, domain.GatewayConfig{
			MaxFallbacks: pipelineCfg.MaxFallbacks,
			CacheTTL:     cacheCfg.DefaultTTL,
		})
	})

	// HTTP Layer
	provide(func(corsCfg *config.CORSConfig) middleware.Middleware {
		return middleware.BuildMiddlewareChain(corsCfg)
	})
	provide(http.NewHandler)
	provide(http.NewServer)

	return container
}

func registerProviders(reg domain.ProviderRegistry, cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Echo.Enabled {
		adapter := echo.NewAdapter()
		if err := reg.Register(ctx, descriptorFor(adapter), adapter); err != nil {
			return fmt.Errorf("failed to register echo provider: %w", err)
		}
	}

	if cfg.OpenAI.APIKey != "" {
		adapter, err := openai.NewAdapter(cfg.OpenAI)
		if err != nil {
			return fmt.Errorf("failed to build OpenAI provider: %w", err)
		}
		if err := reg.Register(ctx, descriptorFor(adapter), adapter); err != nil {
			return fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
	}

	if len(reg.List(ctx)) == 0 {
		return errors.New("no providers configured")
	}
	return nil
}

func descriptorFor(adapter domain.Adapter) domain.ProviderDescriptor {
	return domain.ProviderDescriptor{
		ID:           adapter.ID(),
		Capabilities: adapter.Capabilities(),
		Health:       domain.HealthHealthy,
	}
}
