package domain

import (
	"context"
	"errors"
	"time"

	"github.com/vtuber-plan/purifly/internal/observability"
)

// GatewayConfig bounds the gateway's fallback loop and caching.
type GatewayConfig struct {
	// MaxFallbacks is how many additional providers may be tried after the
	// first routed provider exhausts its attempts.
	MaxFallbacks int

	// CacheTTL is the lifetime of cached responses.
	CacheTTL time.Duration
}

// GatewayService orchestrates the pipeline: route, execute with retries,
// fall back to the next candidate on exhaustion, and serve or populate the
// response cache for non-streaming requests.
type GatewayService struct {
	registry ProviderRegistry
	router   Router
	executor Executor
	cache    ResponseCache
	events   EventPublisher
	cfg      GatewayConfig
}

// NewGatewayService creates a new gateway service (DI constructor). Cache
// and events may be nil.
func NewGatewayService(
	registry ProviderRegistry,
	router Router,
	executor Executor,
	cache ResponseCache,
	events EventPublisher,
	cfg GatewayConfig,
) *GatewayService {
	return &GatewayService{
		registry: registry,
		router:   router,
		executor: executor,
		cache:    cache,
		events:   events,
		cfg:      cfg,
	}
}

// Handle is the single entry point of the pipeline. Exactly one of the
// response or the stream is non-nil on success; streaming responses bypass
// the cache in both directions.
func (g *GatewayService) Handle(ctx context.Context, req *CanonicalRequest) (*CanonicalResponse, ChunkStream, error) {
	if req == nil {
		return nil, nil, errors.New("request cannot be nil")
	}
	if len(req.Parts) == 0 {
		return nil, nil, errors.New("request must contain at least one part")
	}

	logger := observability.FromContext(ctx)

	var fingerprint string
	if !req.Stream && g.cache != nil {
		fingerprint = req.Fingerprint()
		ctx = observability.WithFingerprint(ctx, fingerprint)

		cached, err := g.cache.Get(ctx, fingerprint)
		if err != nil && !errors.Is(err, ErrCacheMiss) {
			logger.Warn("cache get failed, continuing without cache",
				observability.Error(err))
		}
		if cached != nil {
			g.publish(ctx, "cache_hit", map[string]any{
				"fingerprint": fingerprint,
				"provider":    cached.Provider,
			})
			return cached, nil, nil
		}
	}

	var exhausted []string
	var lastErr error

	for fallback := 0; fallback <= g.cfg.MaxFallbacks; fallback++ {
		desc, err := g.router.Route(ctx, req, exhausted...)
		if err != nil {
			// A routing failure after an exhausted provider is less
			// informative than the exhaustion itself.
			if lastErr != nil {
				return nil, nil, lastErr
			}
			return nil, nil, err
		}

		adapter, ok := g.registry.Adapter(ctx, desc.ID)
		if !ok {
			return nil, nil, errors.New("no adapter registered for provider " + desc.ID)
		}

		ctx := observability.WithProvider(ctx, desc.ID)
		resp, stream, err := g.executor.Execute(ctx, req, desc, adapter)
		if err != nil {
			var allExhausted *AllAttemptsExhaustedError
			if errors.As(err, &allExhausted) {
				logger.Warn("provider exhausted, trying fallback",
					observability.String("provider", desc.ID),
					observability.Int("attempts", allExhausted.Attempts),
					observability.Error(allExhausted.Last))
				exhausted = append(exhausted, desc.ID)
				lastErr = err
				continue
			}
			return nil, nil, err
		}

		if stream != nil {
			return nil, stream, nil
		}

		if fingerprint != "" {
			if putErr := g.cache.Put(ctx, fingerprint, resp, g.cfg.CacheTTL); putErr != nil {
				logger.Warn("failed to store response in cache",
					observability.Error(putErr))
			}
		}
		g.publish(ctx, "request_completed", map[string]any{
			"provider":     resp.Provider,
			"latency_ms":   resp.LatencyMS,
			"total_tokens": resp.Usage.TotalTokens,
		})
		return resp, nil, nil
	}

	return nil, nil, lastErr
}

func (g *GatewayService) publish(ctx context.Context, eventType string, data map[string]any) {
	if g.events == nil {
		return
	}
	g.events.Publish(ctx, eventType, data)
}
