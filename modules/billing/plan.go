package billing

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultPlanSlug is the tier assumed when an event carries no plan reference.
const DefaultPlanSlug = "basis"

// PlanSource loads the plan catalog. The catalog is immutable reference data:
// it is loaded once at service construction and never written by the engine.
type PlanSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

type staticSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewStaticSource returns an in-memory PlanSource holding a deep copy of the
// given plans, keyed by slug. Panics when no plans are provided: a service
// without a catalog cannot resolve anything.
func NewStaticSource(plans ...Plan) PlanSource {
	if len(plans) == 0 {
		panic("billing: at least one plan is required")
	}
	copied := make(map[string]Plan, len(plans))
	for _, plan := range plans {
		copied[plan.Slug] = clonePlan(plan)
	}
	return &staticSource{plans: copied}
}

func (s *staticSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Plan, len(s.plans))
	for slug, plan := range s.plans {
		out[slug] = clonePlan(plan)
	}
	return out, nil
}

type yamlSource struct {
	path string
}

// NewYAMLSource returns a PlanSource reading the catalog from a YAML file
// containing a list of plans.
func NewYAMLSource(path string) PlanSource {
	return &yamlSource{path: path}
}

func (s *yamlSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var list []Plan
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(list))
	for _, plan := range list {
		if _, dup := plans[plan.Slug]; dup {
			return nil, errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("duplicate plan slug %q in %s", plan.Slug, s.path))
		}
		plans[plan.Slug] = plan
	}
	return plans, nil
}

func clonePlan(p Plan) Plan {
	p.Limits = maps.Clone(p.Limits)
	p.Features = slices.Clone(p.Features)
	return p
}

// validatePlans catches catalog misconfiguration at startup rather than at
// first webhook.
func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.Join(ErrInvalidPlanConfiguration, errors.New("empty plan catalog"))
	}
	for slug, plan := range plans {
		if slug == "" || plan.Slug != slug {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("plan slug mismatch: key %q != slug %q", slug, plan.Slug))
		}
		for resource, limit := range plan.Limits {
			if limit < Unlimited {
				return errors.Join(ErrInvalidPlanConfiguration,
					fmt.Errorf("plan %s has invalid limit %d for %s", slug, limit, resource))
			}
		}
		if !plan.IsFree() && plan.PriceID == "" {
			return errors.Join(ErrInvalidPlanConfiguration,
				fmt.Errorf("paid plan %s has no price reference", slug))
		}
	}
	return nil
}
