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

func TestMemStoreExternalCustomerID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("first set wins, same value converges", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID})

		require.NoError(t, store.SetExternalCustomerID(ctx, accountID, "cus_1"))
		require.NoError(t, store.SetExternalCustomerID(ctx, accountID, "cus_1"))

		account, err := store.FindAccountByExternalCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, accountID, account.ID)
	})

	t.Run("different value conflicts", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		store.AddAccount(billing.Account{ID: accountID, ExternalCustomerID: "cus_1"})

		err := store.SetExternalCustomerID(ctx, accountID, "cus_2")
		assert.ErrorIs(t, err, billing.ErrExternalCustomerIDConflict)
	})

	t.Run("value already owned by another account conflicts", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		first := uuid.New()
		second := uuid.New()
		store.AddAccount(billing.Account{ID: first, ExternalCustomerID: "cus_1"})
		store.AddAccount(billing.Account{ID: second})

		err := store.SetExternalCustomerID(ctx, second, "cus_1")
		assert.ErrorIs(t, err, billing.ErrExternalCustomerIDConflict)
	})

	t.Run("unknown account", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		err := store.SetExternalCustomerID(ctx, uuid.New(), "cus_1")
		assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	})
}

func TestMemStoreSubscriptions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("upsert preserves created_at", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()

		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID: accountID,
			PlanSlug:  "basis",
			Status:    billing.StatusActive,
		}))
		first, err := store.FindSubscriptionByAccount(ctx, accountID)
		require.NoError(t, err)

		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID: accountID,
			PlanSlug:  "pro",
			Status:    billing.StatusActive,
		}))
		second, err := store.FindSubscriptionByAccount(ctx, accountID)
		require.NoError(t, err)

		assert.Equal(t, first.CreatedAt, second.CreatedAt)
		assert.Equal(t, "pro", second.PlanSlug)
	})

	t.Run("lookup by external id", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID:  accountID,
			ExternalID: "sub_1",
			Status:     billing.StatusActive,
		}))

		sub, err := store.FindSubscriptionByExternalID(ctx, "sub_1")
		require.NoError(t, err)
		assert.Equal(t, accountID, sub.AccountID)

		_, err = store.FindSubscriptionByExternalID(ctx, "sub_other")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

		_, err = store.FindSubscriptionByExternalID(ctx, "")
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("past_due mark skips missing and cancelled rows", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		require.NoError(t, store.MarkSubscriptionPastDueByExternalID(ctx, "sub_missing"))

		accountID := uuid.New()
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID:  accountID,
			ExternalID: "sub_1",
			Status:     billing.StatusCancelled,
		}))
		require.NoError(t, store.MarkSubscriptionPastDueByExternalID(ctx, "sub_1"))

		sub, err := store.FindSubscriptionByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, sub.Status)
	})

	t.Run("cancelled mark collapses the row in place", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID:         accountID,
			ExternalID:        "sub_1",
			PlanSlug:          "pro",
			Status:            billing.StatusActive,
			CancelAtPeriodEnd: true,
		}))
		require.NoError(t, store.MarkSubscriptionCancelledByExternalID(ctx, "sub_1"))

		sub, err := store.FindSubscriptionByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, sub.Status)
		assert.False(t, sub.CancelAtPeriodEnd)
		// The row itself survives, with its plan reference intact.
		assert.Equal(t, "pro", sub.PlanSlug)
		assert.Equal(t, 1, store.SubscriptionCount())
	})

	t.Run("cancelled mark for a missing row is a no-op", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		require.NoError(t, store.MarkSubscriptionCancelledByExternalID(ctx, "sub_missing"))
		assert.Equal(t, 0, store.SubscriptionCount())
	})

	t.Run("past_due mark flips active rows", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()
		require.NoError(t, store.UpsertSubscription(ctx, &billing.Subscription{
			AccountID:  accountID,
			ExternalID: "sub_1",
			Status:     billing.StatusActive,
		}))
		require.NoError(t, store.MarkSubscriptionPastDueByExternalID(ctx, "sub_1"))

		sub, err := store.FindSubscriptionByAccount(ctx, accountID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, sub.Status)
	})
}

func TestMemStorePayments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("amount and currency are write-once", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemStore()
		accountID := uuid.New()

		require.NoError(t, store.UpsertPayment(ctx, &billing.Payment{
			AccountID:         accountID,
			ExternalInvoiceID: "in_1",
			Amount:            1900,
			Currency:          "eur",
			Status:            billing.PaymentPending,
		}))

		paidAt := time.Now().UTC()
		require.NoError(t, store.UpsertPayment(ctx, &billing.Payment{
			AccountID:         accountID,
			ExternalInvoiceID: "in_1",
			Amount:            9999,
			Currency:          "usd",
			Status:            billing.PaymentSucceeded,
			PaidAt:            &paidAt,
		}))

		payment, ok := store.FindPaymentByInvoiceID("in_1")
		require.True(t, ok)
		assert.Equal(t, int64(1900), payment.Amount)
		assert.Equal(t, "eur", payment.Currency)
		assert.Equal(t, billing.PaymentSucceeded, payment.Status)
		require.NotNil(t, payment.PaidAt)
		assert.Equal(t, 1, store.PaymentCount())
	})
}
