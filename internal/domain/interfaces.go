package domain

import (
	"context"
	"time"
)

// Adapter translates canonical requests into one backend's wire format and
// translates the backend's responses back into canonical form. Each adapter
// runs encode, send and decode phases internally; the observable contract is
// the error classification: encode fails with UnsupportedModalityError, send
// with TransportError, TimeoutError or ProviderError, decode with
// MalformedResponseError. Side effects are confined to the network call.
type Adapter interface {
	// ID returns the provider identifier.
	ID() string

	// Capabilities returns the modalities this provider accepts.
	Capabilities() []Modality

	// Complete sends a request and returns the full response.
	Complete(ctx context.Context, req *CanonicalRequest) (*CanonicalResponse, error)

	// Stream sends a request and returns a lazy chunk sequence.
	Stream(ctx context.Context, req *CanonicalRequest) (ChunkStream, error)
}

// ProviderRegistry holds the configured adapters plus per-provider health
// state. Health transitions happen only through ReportOutcome.
type ProviderRegistry interface {
	// Register adds a provider and its adapter to the registry.
	Register(ctx context.Context, desc ProviderDescriptor, adapter Adapter) error

	// Get returns a snapshot of the descriptor for the given provider.
	Get(ctx context.Context, id string) (ProviderDescriptor, bool)

	// Adapter returns the adapter registered for the given provider.
	Adapter(ctx context.Context, id string) (Adapter, bool)

	// List returns snapshots of all registered descriptors, ordered by ID.
	List(ctx context.Context) []ProviderDescriptor

	// Candidates returns providers whose capability set is a superset of the
	// requirement and whose health is not unavailable, ordered healthy-first
	// then by ascending recent failure count.
	Candidates(ctx context.Context, require []Modality) []ProviderDescriptor

	// ReportOutcome records one attempt outcome for a provider and applies
	// the health transition rules.
	ReportOutcome(ctx context.Context, id string, success bool)
}

// Router selects a provider for a canonical request. The exclude list names
// providers already exhausted during the caller's fallback loop.
type Router interface {
	Route(ctx context.Context, req *CanonicalRequest, exclude ...string) (ProviderDescriptor, error)
}

// Executor wraps a single adapter invocation with timeout, retry/backoff and
// health outcome reporting. Exactly one of the response or the stream is
// non-nil on success.
type Executor interface {
	Execute(ctx context.Context, req *CanonicalRequest, desc ProviderDescriptor, adapter Adapter) (*CanonicalResponse, ChunkStream, error)
}

// ResponseCache memoizes completed non-streaming responses keyed by request
// fingerprint. Get returns ErrCacheMiss when no live entry exists.
type ResponseCache interface {
	Get(ctx context.Context, fingerprint string) (*CanonicalResponse, error)
	Put(ctx context.Context, fingerprint string, resp *CanonicalResponse, ttl time.Duration) error
}

// EventPublisher publishes pipeline events for observability.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data map[string]any)
}
