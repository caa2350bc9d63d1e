// Package routing selects a provider for each canonical request. Routing is
// deterministic given identical registry state: an explicit override wins,
// otherwise the healthiest, least-recently-failed capable candidate does.
package routing

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/vtuber-plan/purifly/internal/domain"
)

// PolicyRouter implements domain.Router against a provider registry.
type PolicyRouter struct {
	registry domain.ProviderRegistry
}

// NewRouter creates a new router.
func NewRouter(registry domain.ProviderRegistry) *PolicyRouter {
	return &PolicyRouter{
		registry: registry,
	}
}

// Route selects a provider for the request. Policy, in order: honor an
// explicit provider override unless that provider is unknown, unavailable or
// excluded (ErrProviderUnavailable); otherwise derive the capability
// requirement from the request and return the first registry candidate not
// in the exclude list (ErrNoCapableProvider when none remains).
func (r *PolicyRouter) Route(ctx context.Context, req *domain.CanonicalRequest, exclude ...string) (domain.ProviderDescriptor, error) {
	if req == nil {
		return domain.ProviderDescriptor{}, errors.New("request cannot be nil")
	}
	if len(req.Parts) == 0 {
		return domain.ProviderDescriptor{}, errors.New("request must contain at least one part")
	}

	if req.Provider != "" {
		if slices.Contains(exclude, req.Provider) {
			return domain.ProviderDescriptor{}, fmt.Errorf("provider %s exhausted: %w", req.Provider, domain.ErrProviderUnavailable)
		}
		desc, ok := r.registry.Get(ctx, req.Provider)
		if !ok || desc.Health == domain.HealthUnavailable {
			return domain.ProviderDescriptor{}, fmt.Errorf("provider %s: %w", req.Provider, domain.ErrProviderUnavailable)
		}
		return desc, nil
	}

	require := req.Modalities()
	for _, candidate := range r.registry.Candidates(ctx, require) {
		if slices.Contains(exclude, candidate.ID) {
			continue
		}
		return candidate, nil
	}

	return domain.ProviderDescriptor{}, fmt.Errorf("no provider for capabilities %v: %w", require, domain.ErrNoCapableProvider)
}
