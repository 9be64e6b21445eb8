package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckoutOptions contains redirect targets for a checkout session.
type CheckoutOptions struct {
	SuccessURL string
	CancelURL  string
}

// CreateCheckout starts the subscription purchase flow for an account. For
// paid plans it returns the processor's hosted checkout URL; the resulting
// subscription lands later through the webhook pipeline (or the checkout
// bridge's eager fetch, whichever comes first). Free plans bypass the
// processor and activate immediately.
func (s *Service) CreateCheckout(ctx context.Context, accountID uuid.UUID, planSlug string, opts CheckoutOptions) (*CheckoutSession, error) {
	plan, ok := s.plans[planSlug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planSlug)
	}

	account, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	// A live subscription must be changed through the portal, not by piling a
	// second checkout on top of it. A cancelled row does not block.
	existing, err := s.store.FindSubscriptionByAccount(ctx, accountID)
	switch {
	case err == nil && !existing.IsCancelled():
		return nil, ErrSubscriptionExists
	case err != nil && !errors.Is(err, ErrSubscriptionNotFound):
		return nil, err
	}

	if plan.IsFree() {
		now := time.Now().UTC()
		sub := &Subscription{
			AccountID:          accountID,
			PlanSlug:           plan.Slug,
			Status:             StatusActive,
			CurrentPeriodStart: now,
		}
		if err := s.store.UpsertSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("activate free plan: %w", err)
		}
		// No payment step; send the caller straight to the success page.
		return &CheckoutSession{URL: opts.SuccessURL}, nil
	}

	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		AccountID:  accountID,
		PlanSlug:   plan.Slug,
		PriceID:    plan.PriceID,
		Email:      account.Email,
		CustomerID: account.ExternalCustomerID,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	})
}

// PortalLink returns a customer portal session for an account that already has
// billing contact with the processor.
func (s *Service) PortalLink(ctx context.Context, accountID uuid.UUID, returnURL string) (*PortalSession, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	account, err := s.store.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account.ExternalCustomerID == "" {
		return nil, ErrNoExternalCustomer
	}

	return s.provider.CreatePortalSession(ctx, account.ExternalCustomerID, returnURL)
}

// GetSubscription returns the account's current subscription row.
func (s *Service) GetSubscription(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	return s.store.FindSubscriptionByAccount(ctx, accountID)
}

// Plans returns the public part of the catalog, for plan-selection surfaces.
func (s *Service) Plans() []Plan {
	out := make([]Plan, 0, len(s.plans))
	for _, plan := range s.plans {
		if plan.Public {
			out = append(out, clonePlan(plan))
		}
	}
	return out
}
