// Package registry implements the health-aware provider registry. It owns
// every ProviderDescriptor: health and failure counters change only through
// ReportOutcome, so routing decisions stay reproducible per registry
// instance.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/observability"
)

const (
	defaultDegradedThreshold    = 3
	defaultUnavailableThreshold = 2
	defaultFailureWindow        = time.Minute
)

// Config holds the health transition thresholds.
type Config struct {
	// DegradedThreshold is the consecutive-failure count that moves a
	// provider healthy -> degraded.
	DegradedThreshold int

	// UnavailableThreshold is how many further consecutive failures move a
	// degraded provider to unavailable.
	UnavailableThreshold int

	// FailureWindow is the sliding window for counting consecutive
	// failures; a failure older than the window restarts the count.
	FailureWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = defaultDegradedThreshold
	}
	if c.UnavailableThreshold <= 0 {
		c.UnavailableThreshold = defaultUnavailableThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = defaultFailureWindow
	}
	return c
}

type entry struct {
	desc    domain.ProviderDescriptor
	adapter domain.Adapter
}

// Registry implements domain.ProviderRegistry.
type Registry struct {
	mu      sync.RWMutex
	cfg     Config
	entries map[string]*entry
	now     func() time.Time
}

// NewRegistry creates a new provider registry. Zero-value thresholds fall
// back to defaults.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		cfg:     cfg.withDefaults(),
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Register adds a provider and its adapter to the registry. The descriptor's
// health starts healthy unless explicitly set.
func (r *Registry) Register(_ context.Context, desc domain.ProviderDescriptor, adapter domain.Adapter) error {
	if adapter == nil {
		return errors.New("adapter cannot be nil")
	}
	if desc.ID == "" {
		return errors.New("provider id cannot be empty")
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("provider %s declares no capabilities", desc.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[desc.ID]; exists {
		return fmt.Errorf("provider %s already registered", desc.ID)
	}

	if desc.Health == "" {
		desc.Health = domain.HealthHealthy
	}
	r.entries[desc.ID] = &entry{desc: desc, adapter: adapter}

	return nil
}

// Get returns a snapshot of the descriptor for the given provider.
func (r *Registry) Get(_ context.Context, id string) (domain.ProviderDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.ProviderDescriptor{}, false
	}
	return e.desc, true
}

// Adapter returns the adapter registered for the given provider.
func (r *Registry) Adapter(_ context.Context, id string) (domain.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.adapter, true
}

// List returns snapshots of all registered descriptors, ordered by ID.
func (r *Registry) List(_ context.Context) []domain.ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProviderDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Candidates returns providers able to serve the capability requirement,
// excluding unavailable ones, ordered healthy-first then by ascending
// consecutive failure count then by ID. The ID tie-break keeps routing
// deterministic for identical registry state.
func (r *Registry) Candidates(_ context.Context, require []domain.Modality) []domain.ProviderDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ProviderDescriptor, 0, len(r.entries))
	for _, e := range r.entries {
		if e.desc.Health == domain.HealthUnavailable {
			continue
		}
		if !e.desc.Supports(require) {
			continue
		}
		out = append(out, e.desc)
	}

	sort.Slice(out, func(i, j int) bool {
		if ri, rj := healthRank(out[i].Health), healthRank(out[j].Health); ri != rj {
			return ri < rj
		}
		if out[i].ConsecutiveFailures != out[j].ConsecutiveFailures {
			return out[i].ConsecutiveFailures < out[j].ConsecutiveFailures
		}
		return out[i].ID < out[j].ID
	})

	return out
}

// ReportOutcome records one attempt outcome and applies the health
// transition rules: DegradedThreshold consecutive failures inside the
// sliding window move healthy -> degraded, UnavailableThreshold further
// failures move degraded -> unavailable, any success resets the counter and
// restores healthy.
func (r *Registry) ReportOutcome(ctx context.Context, id string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}

	if success {
		e.desc.ConsecutiveFailures = 0
		if e.desc.Health != domain.HealthHealthy {
			r.logTransition(ctx, &e.desc, domain.HealthHealthy)
			e.desc.Health = domain.HealthHealthy
		}
		return
	}

	now := r.now()
	if !e.desc.LastFailure.IsZero() && now.Sub(e.desc.LastFailure) > r.cfg.FailureWindow {
		e.desc.ConsecutiveFailures = 0
	}
	e.desc.ConsecutiveFailures++
	e.desc.LastFailure = now

	switch {
	case e.desc.Health == domain.HealthHealthy && e.desc.ConsecutiveFailures >= r.cfg.DegradedThreshold:
		r.logTransition(ctx, &e.desc, domain.HealthDegraded)
		e.desc.Health = domain.HealthDegraded
	case e.desc.Health == domain.HealthDegraded &&
		e.desc.ConsecutiveFailures >= r.cfg.DegradedThreshold+r.cfg.UnavailableThreshold:
		r.logTransition(ctx, &e.desc, domain.HealthUnavailable)
		e.desc.Health = domain.HealthUnavailable
	}
}

func (r *Registry) logTransition(ctx context.Context, desc *domain.ProviderDescriptor, to domain.HealthStatus) {
	observability.FromContext(ctx).Info("provider health transition",
		observability.String("provider", desc.ID),
		observability.String("from", string(desc.Health)),
		observability.String("to", string(to)),
		observability.Int("consecutive_failures", desc.ConsecutiveFailures),
	)
}

func healthRank(h domain.HealthStatus) int {
	switch h {
	case domain.HealthHealthy:
		return 0
	case domain.HealthDegraded:
		return 1
	default:
		return 2
	}
}
