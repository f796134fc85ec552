// Package registry implements the Expert Registry (C1, §4.1): resolving an
// expert_id to its ExpertConfig, validating config integrity at load time,
// and enumerating the active set for a run in deterministic order.
package registry

import (
	"fmt"
	"sort"

	"github.com/ashita-ai/council/internal/model"
)

// Registry holds the fifteen (or however many configured) expert
// personalities for a run. Built once at deploy time; config is immutable
// per run_id except via an explicit reconfiguration event.
type Registry struct {
	byID map[string]model.ExpertConfig
}

// New validates every config and builds a Registry. Fails closed: if any
// single expert's config is invalid, the whole registry fails to construct,
// matching §7's ConfigInvalid ("fatal to the run; no partial boot").
func New(configs []model.ExpertConfig) (*Registry, error) {
	byID := make(map[string]model.ExpertConfig, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("registry: load %s: %w", c.ExpertID, err)
		}
		if _, dup := byID[c.ExpertID]; dup {
			return nil, model.NewFieldError(model.KindConfigInvalid, "registry", "expert_id",
				fmt.Errorf("duplicate expert_id %q", c.ExpertID))
		}
		byID[c.ExpertID] = c
	}
	return &Registry{byID: byID}, nil
}

// Get resolves expert_id to its config, failing with UnknownExpert if absent (§4.1).
func (r *Registry) Get(expertID string) (model.ExpertConfig, error) {
	c, ok := r.byID[expertID]
	if !ok {
		return model.ExpertConfig{}, model.NewError(model.KindUnknownExpert, "registry", fmt.Errorf("expert_id %q", expertID))
	}
	return c, nil
}

// List returns every registered expert, ordered by expert_id for determinism (§4.1).
func (r *Registry) List() []model.ExpertConfig {
	out := make([]model.ExpertConfig, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpertID < out[j].ExpertID })
	return out
}

// Len returns the number of registered experts.
func (r *Registry) Len() int { return len(r.byID) }
