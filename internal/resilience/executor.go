// Package resilience wraps a single adapter invocation with per-attempt
// timeouts, exponential backoff with jitter and health outcome reporting.
// The executor never re-routes: once every attempt against the chosen
// provider has failed it surfaces AllAttemptsExhausted and leaves fallback
// to its caller.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/observability"
	"github.com/vtuber-plan/purifly/internal/stream"
)

const (
	defaultMaxAttempts     = 3
	defaultInitialInterval = 100 * time.Millisecond
	defaultMultiplier      = 2.0
	defaultMaxInterval     = 5 * time.Second
	defaultMaxElapsedTime  = 30 * time.Second
)

// Config holds the retry and timeout policy.
type Config struct {
	// MaxAttempts bounds the attempt count per Execute call (first try
	// included).
	MaxAttempts uint

	// InitialInterval, Multiplier and MaxInterval shape the exponential
	// backoff between attempts; jitter is applied by the backoff policy.
	InitialInterval time.Duration
	Multiplier      float64
	MaxInterval     time.Duration

	// MaxElapsedTime bounds the total time spent across attempts and
	// backoff waits.
	MaxElapsedTime time.Duration

	// AttemptTimeout bounds each non-streaming attempt; zero disables it.
	// Streaming attempts are bounded by the caller's context, since an
	// attempt deadline would cut the stream off mid-flight.
	AttemptTimeout time.Duration

	// ReorderWindow is the stream multiplexer's pending-chunk bound.
	ReorderWindow int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.Multiplier <= 0 {
		c.Multiplier = defaultMultiplier
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = defaultMaxElapsedTime
	}
	return c
}

// Executor implements domain.Executor.
type Executor struct {
	registry domain.ProviderRegistry
	events   domain.EventPublisher
	cfg      Config
}

// NewExecutor creates a new resilience executor. Events may be nil.
func NewExecutor(registry domain.ProviderRegistry, events domain.EventPublisher, cfg Config) *Executor {
	return &Executor{
		registry: registry,
		events:   events,
		cfg:      cfg.withDefaults(),
	}
}

// Execute runs one adapter invocation under the retry policy. Retries apply
// only to classified-transient failures; each attempt's outcome is reported
// to the registry for the provider used. For streaming requests retries
// apply until a stream handle is obtained; mid-stream failures surface on
// the stream itself and are never retried.
func (e *Executor) Execute(
	ctx context.Context,
	req *domain.CanonicalRequest,
	desc domain.ProviderDescriptor,
	adapter domain.Adapter,
) (*domain.CanonicalResponse, domain.ChunkStream, error) {
	if req == nil {
		return nil, nil, errors.New("request cannot be nil")
	}
	if adapter == nil {
		return nil, nil, errors.New("adapter cannot be nil")
	}

	logger := observability.FromContext(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.InitialInterval
	policy.Multiplier = e.cfg.Multiplier
	policy.MaxInterval = e.cfg.MaxInterval
	policy.MaxElapsedTime = e.cfg.MaxElapsedTime

	var (
		resp     *domain.CanonicalResponse
		chunks   domain.ChunkStream
		attempts int
	)

	operation := func() error {
		attempts++
		start := time.Now()

		var err error
		if req.Stream {
			chunks, err = adapter.Stream(ctx, req)
		} else {
			resp, err = e.completeAttempt(ctx, req, adapter)
		}

		if err != nil {
			e.registry.ReportOutcome(ctx, desc.ID, false)
			logger.Warn("attempt failed",
				observability.String("provider", desc.ID),
				observability.Int("attempt", attempts),
				observability.Duration("elapsed", time.Since(start)),
				observability.Error(err))
			e.publish(ctx, "attempt_failed", map[string]any{
				"provider": desc.ID,
				"attempt":  attempts,
			})

			if ctx.Err() != nil || !domain.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		e.registry.ReportOutcome(ctx, desc.ID, true)
		if resp != nil {
			resp.LatencyMS = time.Since(start).Milliseconds()
		}
		return nil
	}

	// backoff counts retries after the first try; waits are non-blocking
	// for other goroutines and abort when ctx is canceled.
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.cfg.MaxAttempts-1)), ctx))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, nil, ctxErr
		}
		if !domain.IsRetryable(err) {
			return nil, nil, err
		}
		return nil, nil, &domain.AllAttemptsExhaustedError{
			Provider: desc.ID,
			Attempts: attempts,
			Last:     err,
		}
	}

	if chunks != nil {
		return nil, stream.Reorder(ctx, chunks, e.cfg.ReorderWindow), nil
	}
	return resp, nil, nil
}

// completeAttempt bounds one non-streaming attempt by the configured
// timeout and normalizes deadline expiry into a TimeoutError.
func (e *Executor) completeAttempt(
	ctx context.Context,
	req *domain.CanonicalRequest,
	adapter domain.Adapter,
) (*domain.CanonicalResponse, error) {
	attemptCtx := ctx
	if e.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		defer cancel()
	}

	resp, err := adapter.Complete(attemptCtx, req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			var timeout *domain.TimeoutError
			if !errors.As(err, &timeout) {
				return nil, &domain.TimeoutError{Cause: err}
			}
		}
		return nil, err
	}
	return resp, nil
}

func (e *Executor) publish(ctx context.Context, eventType string, data map[string]any) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, eventType, data)
}
