package billing

import (
	"context"

	"github.com/google/uuid"
)

// Store is the data-access surface the reconciliation engine consumes from the
// surrounding application. Every write is a key-based upsert, never a blind
// insert: at-least-once webhook delivery means any write may run twice, and
// concurrent redeliveries for one account must converge instead of clobbering
// each other. Implementations close the lookup-then-write race with a
// transactional conditional write (unique constraint plus ON CONFLICT or an
// equivalent).
type Store interface {
	// FindAccountByID returns ErrAccountNotFound when the account is unknown.
	FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error)

	// FindAccountByExternalCustomerID resolves the processor's customer id to
	// an account. Returns ErrAccountNotFound when no account holds the mapping.
	FindAccountByExternalCustomerID(ctx context.Context, externalID string) (*Account, error)

	// SetExternalCustomerID attaches the processor customer id to an account.
	// The mapping is monotonic: setting the already-stored value is a no-op,
	// setting a different value returns ErrExternalCustomerIDConflict and
	// leaves the stored mapping untouched.
	SetExternalCustomerID(ctx context.Context, accountID uuid.UUID, externalID string) error

	// FindSubscriptionByAccount returns ErrSubscriptionNotFound when the
	// account has no subscription row.
	FindSubscriptionByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error)

	// FindSubscriptionByExternalID returns ErrSubscriptionNotFound when no row
	// carries the processor subscription id.
	FindSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)

	// UpsertSubscription inserts or updates the account's single subscription
	// row, keyed by AccountID. Replaying the same write converges to the same
	// row content; no duplicate rows are ever created for one account.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// MarkSubscriptionPastDueByExternalID flags the subscription matching the
	// processor id as past_due. A missing row, or one already cancelled, is a
	// no-op: cancellation is terminal.
	MarkSubscriptionPastDueByExternalID(ctx context.Context, externalID string) error

	// MarkSubscriptionCancelledByExternalID collapses the subscription
	// matching the processor id to its terminal status and clears the
	// pending-cancel flag. The row is retained for billing history; a missing
	// row means the deletion already converged and is a no-op.
	MarkSubscriptionCancelledByExternalID(ctx context.Context, externalID string) error

	// UpsertPayment inserts or updates the payment row keyed by
	// ExternalInvoiceID. On update only status, paid-at, and description
	// change; amount and currency of a given invoice are write-once.
	UpsertPayment(ctx context.Context, payment *Payment) error
}
