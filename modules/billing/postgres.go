package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planorahq/planora/pkg/pg"
)

// PostgresStore implements Store on pgx. Both upserts are single conditional
// statements guarded by unique constraints (account_id for subscriptions,
// external_invoice_id for payments), so concurrent redeliveries converge in
// the database instead of racing through a read-then-write pair. Errors that
// are not mapped to a billing sentinel propagate as-is and surface to the
// processor as a retryable 500.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the given connection pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	const q = `
		SELECT id, email, name, COALESCE(external_customer_id, '')
		FROM accounts WHERE id = $1`

	var account Account
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&account.ID, &account.Email, &account.Name, &account.ExternalCustomerID)
	if pg.IsNotFoundError(err) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: find account: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) FindAccountByExternalCustomerID(ctx context.Context, externalID string) (*Account, error) {
	const q = `
		SELECT id, email, name, external_customer_id
		FROM accounts WHERE external_customer_id = $1`

	var account Account
	err := s.pool.QueryRow(ctx, q, externalID).Scan(
		&account.ID, &account.Email, &account.Name, &account.ExternalCustomerID)
	if pg.IsNotFoundError(err) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: find account by customer: %w", err)
	}
	return &account, nil
}

func (s *PostgresStore) SetExternalCustomerID(ctx context.Context, accountID uuid.UUID, externalID string) error {
	// Monotonic set in one statement: only a NULL or identical mapping is
	// writable. Zero rows affected means either the account is unknown or the
	// mapping conflicts; one follow-up read tells which.
	const q = `
		UPDATE accounts SET external_customer_id = $2
		WHERE id = $1
		  AND (external_customer_id IS NULL OR external_customer_id = $2)`

	tag, err := s.pool.Exec(ctx, q, accountID, externalID)
	if pg.IsDuplicateKeyError(err) {
		// Another account already holds this customer id.
		return ErrExternalCustomerIDConflict
	}
	if err != nil {
		return fmt.Errorf("billing: set external customer id: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
		return fmt.Errorf("billing: set external customer id: %w", err)
	}
	if !exists {
		return ErrAccountNotFound
	}
	return ErrExternalCustomerIDConflict
}

func scanSubscription(row interface{ Scan(dest ...any) error }) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.AccountID, &sub.ExternalID, &sub.PlanSlug, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.CancelAtPeriodEnd,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionColumns = `
	account_id, COALESCE(external_id, ''), plan_slug, status,
	current_period_start, current_period_end, cancel_at_period_end,
	created_at, updated_at`

func (s *PostgresStore) FindSubscriptionByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE account_id = $1`

	sub, err := scanSubscription(s.pool.QueryRow(ctx, q, accountID))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: find subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) FindSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE external_id = $1`

	sub, err := scanSubscription(s.pool.QueryRow(ctx, q, externalID))
	if pg.IsNotFoundError(err) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: find subscription by external id: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	const q = `
		INSERT INTO subscriptions (
			account_id, external_id, plan_slug, status,
			current_period_start, current_period_end, cancel_at_period_end,
			created_at, updated_at
		) VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (account_id) DO UPDATE SET
			external_id          = EXCLUDED.external_id,
			plan_slug            = EXCLUDED.plan_slug,
			status               = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end   = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at           = now()`

	if _, err := s.pool.Exec(ctx, q,
		sub.AccountID, sub.ExternalID, sub.PlanSlug, sub.Status,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.CancelAtPeriodEnd,
	); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			// The account vanished between resolution and write.
			return ErrAccountNotFound
		}
		return fmt.Errorf("billing: upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubscriptionPastDueByExternalID(ctx context.Context, externalID string) error {
	// Cancellation is terminal; a late failure event does not revive it.
	// Zero rows affected is fine: the deletion already converged elsewhere.
	const q = `
		UPDATE subscriptions SET status = $2, updated_at = now()
		WHERE external_id = $1 AND status <> $3`

	if _, err := s.pool.Exec(ctx, q, externalID, StatusPastDue, StatusCancelled); err != nil {
		return fmt.Errorf("billing: mark subscription past due: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSubscriptionCancelledByExternalID(ctx context.Context, externalID string) error {
	// One conditional statement: a concurrent subscription-updated upsert can
	// land before or after, but never gets clobbered by a stale row snapshot.
	// Zero rows affected means the deletion already converged.
	const q = `
		UPDATE subscriptions
		SET status = $2, cancel_at_period_end = false, updated_at = now()
		WHERE external_id = $1`

	if _, err := s.pool.Exec(ctx, q, externalID, StatusCancelled); err != nil {
		return fmt.Errorf("billing: mark subscription cancelled: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertPayment(ctx context.Context, payment *Payment) error {
	// The conflict arm rewrites only the mutable half of the row: amount,
	// currency, and account are write-once per invoice id.
	const q = `
		INSERT INTO payments (
			external_invoice_id, account_id, amount, currency,
			status, description, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		ON CONFLICT (external_invoice_id) DO UPDATE SET
			status      = EXCLUDED.status,
			description = EXCLUDED.description,
			paid_at     = EXCLUDED.paid_at,
			updated_at  = now()`

	if _, err := s.pool.Exec(ctx, q,
		payment.ExternalInvoiceID, payment.AccountID, payment.Amount, payment.Currency,
		payment.Status, payment.Description, payment.PaidAt,
	); err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("billing: upsert payment: %w", err)
	}
	return nil
}
