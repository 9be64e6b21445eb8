package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// planFor resolves the plan governing an account's entitlements. An account
// without a subscription, or with one that no longer grants access (past_due,
// cancelled, pending), is held to the default tier.
func (s *Service) planFor(ctx context.Context, accountID uuid.UUID) (Plan, error) {
	sub, err := s.store.FindSubscriptionByAccount(ctx, accountID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
		return s.plans[s.defaultPlan], nil
	case err != nil:
		return Plan{}, err
	case !sub.IsActive():
		return s.plans[s.defaultPlan], nil
	}

	plan, ok := s.plans[sub.PlanSlug]
	if !ok {
		// A row pointing at a slug removed from the catalog; degrade to the
		// default tier rather than erroring every entitlement check.
		return s.plans[s.defaultPlan], nil
	}
	return plan, nil
}

// HasFeature reports whether a feature is available on the account's current
// plan. Returns false on any error to fail closed.
func (s *Service) HasFeature(ctx context.Context, accountID uuid.UUID, feature Feature) bool {
	plan, err := s.planFor(ctx, accountID)
	if err != nil {
		return false
	}
	return plan.HasFeature(feature)
}

// CanCreate checks whether the account may create one more instance of the
// resource under its plan limits.
func (s *Service) CanCreate(ctx context.Context, accountID uuid.UUID, res Resource) error {
	plan, err := s.planFor(ctx, accountID)
	if err != nil {
		return err
	}

	limit, ok := plan.Limits[res]
	if !ok {
		return ErrInvalidResource
	}
	if limit == Unlimited {
		return nil
	}

	counter, ok := s.counters[res]
	if !ok {
		return ErrNoCounterRegistered
	}

	current, err := counter(ctx, accountID)
	if err != nil {
		return fmt.Errorf("count %s usage: %w", res, err)
	}
	if current >= limit {
		return ErrLimitExceeded
	}
	return nil
}

// GetUsage returns current usage and limit for a resource on the account's plan.
func (s *Service) GetUsage(ctx context.Context, accountID uuid.UUID, res Resource) (used, limit int64, err error) {
	plan, err := s.planFor(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}

	limit, ok := plan.Limits[res]
	if !ok {
		return 0, 0, ErrInvalidResource
	}

	counter, ok := s.counters[res]
	if !ok {
		return 0, 0, ErrNoCounterRegistered
	}

	used, err = counter(ctx, accountID)
	if err != nil {
		return 0, 0, fmt.Errorf("count %s usage: %w", res, err)
	}
	return used, limit, nil
}
