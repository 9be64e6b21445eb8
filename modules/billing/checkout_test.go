package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planorahq/planora/modules/billing"
)

func TestCreateCheckout(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	opts := billing.CheckoutOptions{
		SuccessURL: "https://app.example.com/billing/success",
		CancelURL:  "https://app.example.com/billing/cancel",
	}

	t.Run("free plan activates immediately", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		provider := &fakeProvider{}
		svc := newTestService(t, store, billing.WithProvider(provider))

		sess, err := svc.CreateCheckout(ctx, accountID, "basis", opts)
		require.NoError(t, err)
		assert.Equal(t, opts.SuccessURL, sess.URL)
		assert.Empty(t, provider.checkoutCalls)

		sub, err := svc.GetSubscription(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Equal(t, "basis", sub.PlanSlug)
	})

	t.Run("paid plan goes through the provider", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{
			ID:                 accountID,
			Email:              "owner@example.com",
			ExternalCustomerID: "cus_1",
		})
		provider := &fakeProvider{}
		svc := newTestService(t, store, billing.WithProvider(provider))

		sess, err := svc.CreateCheckout(ctx, accountID, "pro", opts)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.example.com/cs_fake", sess.URL)

		require.Len(t, provider.checkoutCalls, 1)
		req := provider.checkoutCalls[0]
		assert.Equal(t, accountID, req.AccountID)
		assert.Equal(t, "pro", req.PlanSlug)
		assert.Equal(t, "price_pro_monthly", req.PriceID)
		assert.Equal(t, "owner@example.com", req.Email)
		assert.Equal(t, "cus_1", req.CustomerID)
		assert.Equal(t, opts.SuccessURL, req.SuccessURL)
		assert.Equal(t, opts.CancelURL, req.CancelURL)

		// No local row until the webhook (or eager fetch) arrives.
		_, err = svc.GetSubscription(ctx, accountID)
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		svc := newTestService(t, store)

		_, err := svc.CreateCheckout(ctx, accountID, "enterprise", opts)
		assert.ErrorIs(t, err, billing.ErrPlanNotFound)
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, billing.NewMemStore())
		_, err := svc.CreateCheckout(ctx, uuid.New(), "pro", opts)
		assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	})

	t.Run("live subscription blocks a second checkout", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID: accountID,
			PlanSlug:  "pro",
			Status:    billing.StatusActive,
		}))
		svc := newTestService(t, store, billing.WithProvider(&fakeProvider{}))

		_, err := svc.CreateCheckout(ctx, accountID, "premium", opts)
		assert.ErrorIs(t, err, billing.ErrSubscriptionExists)
	})

	t.Run("cancelled subscription does not block", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID:          accountID,
			PlanSlug:           "pro",
			Status:             billing.StatusCancelled,
			CurrentPeriodStart: time.Now().UTC(),
		}))
		provider := &fakeProvider{}
		svc := newTestService(t, store, billing.WithProvider(provider))

		_, err := svc.CreateCheckout(ctx, accountID, "pro", opts)
		require.NoError(t, err)
		assert.Len(t, provider.checkoutCalls, 1)
	})

	t.Run("paid plan without provider", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		svc := newTestService(t, store)

		_, err := svc.CreateCheckout(ctx, accountID, "pro", opts)
		assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)
	})
}

func TestPortalLink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	const returnURL = "https://app.example.com/settings/billing"

	t.Run("returns portal session", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID, ExternalCustomerID: "cus_1"})
		provider := &fakeProvider{}
		svc := newTestService(t, store, billing.WithProvider(provider))

		sess, err := svc.PortalLink(ctx, accountID, returnURL)
		require.NoError(t, err)
		assert.Equal(t, "https://portal.example.com/session", sess.URL)
		assert.Equal(t, []string{"cus_1"}, provider.portalCustomers)
	})

	t.Run("no billing contact yet", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})
		svc := newTestService(t, store, billing.WithProvider(&fakeProvider{}))

		_, err := svc.PortalLink(ctx, accountID, returnURL)
		assert.ErrorIs(t, err, billing.ErrNoExternalCustomer)
	})

	t.Run("no provider configured", func(t *testing.T) {
		t.Parallel()

		svc := newTestService(t, billing.NewMemStore())
		_, err := svc.PortalLink(ctx, uuid.New(), returnURL)
		assert.ErrorIs(t, err, billing.ErrProviderNotConfigured)
	})
}

func TestPlansListsPublicOnly(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, billing.NewMemStore())

	plans := svc.Plans()
	slugs := make([]string, 0, len(plans))
	for _, plan := range plans {
		slugs = append(slugs, plan.Slug)
	}
	assert.ElementsMatch(t, []string{"basis", "pro"}, slugs)
}
