package billing

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store. It implements the full store contract,
// including the monotonic customer mapping and write-once payment fields, and
// serves tests and local development.
type MemStore struct {
	mu            sync.Mutex
	accounts      map[uuid.UUID]Account
	byCustomer    map[string]uuid.UUID
	subscriptions map[uuid.UUID]Subscription
	payments      map[string]Payment
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		accounts:      make(map[uuid.UUID]Account),
		byCustomer:    make(map[string]uuid.UUID),
		subscriptions: make(map[uuid.UUID]Subscription),
		payments:      make(map[string]Payment),
	}
}

// AddAccount seeds an account. Signup lives outside the engine; this is how
// the surrounding application (or a test) makes accounts visible to it.
func (s *MemStore) AddAccount(account Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	if account.ExternalCustomerID != "" {
		s.byCustomer[account.ExternalCustomerID] = account.ID
	}
}

func (s *MemStore) FindAccountByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (s *MemStore) FindAccountByExternalCustomerID(ctx context.Context, externalID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byCustomer[externalID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	account := s.accounts[id]
	return &account, nil
}

func (s *MemStore) SetExternalCustomerID(ctx context.Context, accountID uuid.UUID, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if account.ExternalCustomerID == externalID {
		return nil
	}
	if account.ExternalCustomerID != "" {
		return ErrExternalCustomerIDConflict
	}
	if owner, taken := s.byCustomer[externalID]; taken && owner != accountID {
		return ErrExternalCustomerIDConflict
	}

	account.ExternalCustomerID = externalID
	s.accounts[accountID] = account
	s.byCustomer[externalID] = accountID
	return nil
}

func (s *MemStore) FindSubscriptionByAccount(ctx context.Context, accountID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[accountID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return &sub, nil
}

func (s *MemStore) FindSubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if externalID != "" {
		for _, sub := range s.subscriptions {
			if sub.ExternalID == externalID {
				return &sub, nil
			}
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemStore) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	row := *sub
	row.UpdatedAt = now

	if existing, ok := s.subscriptions[sub.AccountID]; ok {
		row.CreatedAt = existing.CreatedAt
	} else {
		row.CreatedAt = now
	}
	s.subscriptions[sub.AccountID] = row
	return nil
}

func (s *MemStore) MarkSubscriptionPastDueByExternalID(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if externalID == "" {
		return nil
	}
	for accountID, sub := range s.subscriptions {
		if sub.ExternalID != externalID {
			continue
		}
		// Cancellation is terminal; a late failure event does not revive it.
		if sub.Status == StatusCancelled {
			return nil
		}
		sub.Status = StatusPastDue
		sub.UpdatedAt = time.Now().UTC()
		s.subscriptions[accountID] = sub
		return nil
	}
	return nil
}

func (s *MemStore) MarkSubscriptionCancelledByExternalID(ctx context.Context, externalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if externalID == "" {
		return nil
	}
	for accountID, sub := range s.subscriptions {
		if sub.ExternalID != externalID {
			continue
		}
		sub.Status = StatusCancelled
		sub.CancelAtPeriodEnd = false
		sub.UpdatedAt = time.Now().UTC()
		s.subscriptions[accountID] = sub
		return nil
	}
	return nil
}

func (s *MemStore) UpsertPayment(ctx context.Context, payment *Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	row := *payment
	row.UpdatedAt = now

	if existing, ok := s.payments[payment.ExternalInvoiceID]; ok {
		// Amount and currency of a given invoice never change: write-once.
		row.Amount = existing.Amount
		row.Currency = existing.Currency
		row.AccountID = existing.AccountID
		row.CreatedAt = existing.CreatedAt
	} else {
		row.CreatedAt = now
	}
	s.payments[payment.ExternalInvoiceID] = row
	return nil
}

// FindPaymentByInvoiceID is a read helper for tests and history surfaces.
func (s *MemStore) FindPaymentByInvoiceID(externalInvoiceID string) (*Payment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[externalInvoiceID]
	if !ok {
		return nil, false
	}
	return &payment, true
}

// SubscriptionCount reports the number of subscription rows held.
func (s *MemStore) SubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscriptions)
}

// PaymentCount reports the number of payment rows held.
func (s *MemStore) PaymentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.payments)
}
