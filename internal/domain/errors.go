package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for routing, caching and streaming outcomes.
var (
	// ErrCacheMiss indicates no cached entry was found.
	ErrCacheMiss = errors.New("cache miss")

	// ErrNoCapableProvider indicates no registered provider covers the
	// request's capability requirement.
	ErrNoCapableProvider = errors.New("no capable provider")

	// ErrProviderUnavailable indicates an explicit provider override points
	// at an unknown or unavailable provider.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrStreamInterrupted indicates a stream terminated before its final
	// chunk was delivered.
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrStreamReorderOverflow indicates the reorder window was exceeded
	// while waiting for a missing chunk.
	ErrStreamReorderOverflow = errors.New("stream reorder window exceeded")
)

// UnsupportedModalityError is returned by an adapter's encode phase when the
// request contains a part the provider cannot accept. Never retried.
type UnsupportedModalityError struct {
	Provider string
	Modality Modality
}

func (e *UnsupportedModalityError) Error() string {
	return fmt.Sprintf("provider %s does not accept %s parts", e.Provider, e.Modality)
}

// MalformedResponseError is returned by an adapter's decode phase when the
// provider's payload cannot be parsed into canonical shape. Never retried.
type MalformedResponseError struct {
	Provider string
	Cause    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from provider %s: %v", e.Provider, e.Cause)
}

func (e *MalformedResponseError) Unwrap() error { return e.Cause }

// TransportError wraps a network-level failure of an adapter's send phase.
// Always retryable.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// TimeoutError indicates a single attempt exceeded its time budget.
// Always retryable.
type TimeoutError struct {
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("attempt timed out: %v", e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

// ProviderError carries a backend's error status and body. Retryable only
// for rate-limit and server-error statuses.
type ProviderError struct {
	Provider string
	Status   int
	Body     string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s returned status %d: %s", e.Provider, e.Status, e.Body)
}

// Retryable reports whether the status is classified transient.
func (e *ProviderError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// AllAttemptsExhaustedError is surfaced by the executor once every attempt
// against a single provider has failed. The caller may re-route to a
// fallback candidate.
type AllAttemptsExhaustedError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *AllAttemptsExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts against provider %s exhausted: %v", e.Attempts, e.Provider, e.Last)
}

func (e *AllAttemptsExhaustedError) Unwrap() error { return e.Last }

// CacheError marks a cache backend failure. Callers treat it as a miss;
// it never aborts a request.
type CacheError struct {
	Op    string
	Cause error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Cause)
}

func (e *CacheError) Unwrap() error { return e.Cause }

// IsRetryable classifies an error as transient for the resilience executor.
// Transport and timeout failures always qualify; provider errors qualify
// only for rate-limit and server-error statuses.
func IsRetryable(err error) bool {
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var timeout *TimeoutError
	if errors.As(err, &timeout) {
		return true
	}
	var provider *ProviderError
	if errors.As(err, &provider) {
		return provider.Retryable()
	}
	return false
}
