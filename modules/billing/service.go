package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// UsageCounter returns the current usage of one resource for an account. Must
// be fast; counters run on every resource-creation attempt. Database
// aggregates or cached values are the expected implementations.
type UsageCounter func(ctx context.Context, accountID uuid.UUID) (int64, error)

// Service is the billing reconciliation engine. It folds the processor's
// asynchronous, possibly-duplicated, possibly-out-of-order webhook events into
// the internal account/subscription/payment state, and serves the
// account-initiated checkout and portal flows that race the first webhook.
type Service struct {
	store        Store
	plans        map[string]Plan
	provider     Provider
	guard        EventGuard
	log          *slog.Logger
	secret       string
	tolerance    time.Duration
	fetchTimeout time.Duration
	defaultPlan  string
	counters     map[Resource]UsageCounter
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithProvider wires the outbound processor client. Without it, checkout and
// portal flows and the eager fetch are disabled; webhook processing is not.
func WithProvider(p Provider) ServiceOption {
	return func(s *Service) { s.provider = p }
}

// WithGuard wires an event-id dedup guard in front of webhook dispatch.
func WithGuard(g EventGuard) ServiceOption {
	return func(s *Service) { s.guard = g }
}

// WithWebhookSecret sets the shared secret used to verify inbound signatures.
func WithWebhookSecret(secret string) ServiceOption {
	return func(s *Service) { s.secret = secret }
}

// WithSignatureTolerance overrides the replay window.
func WithSignatureTolerance(d time.Duration) ServiceOption {
	return func(s *Service) { s.tolerance = d }
}

// WithFetchTimeout bounds the checkout bridge's eager subscription fetch.
func WithFetchTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.fetchTimeout = d }
}

// WithDefaultPlan overrides the slug assumed when events carry no plan reference.
func WithDefaultPlan(slug string) ServiceOption {
	return func(s *Service) { s.defaultPlan = slug }
}

// WithLogger supplies the structured logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// WithUsageCounter registers the usage counter for a resource.
func WithUsageCounter(res Resource, counter UsageCounter) ServiceOption {
	return func(s *Service) { s.counters[res] = counter }
}

// NewService constructs the engine. Panics on nil src or store to fail fast
// during initialization; returns an error when the catalog cannot be loaded or
// is inconsistent, or when the default plan is missing from it.
func NewService(ctx context.Context, src PlanSource, store Store, opts ...ServiceOption) (*Service, error) {
	if src == nil {
		panic("billing: PlanSource is required")
	}
	if store == nil {
		panic("billing: Store is required")
	}

	plans, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	s := &Service{
		store:        store,
		plans:        plans,
		log:          slog.New(slog.DiscardHandler),
		tolerance:    SignatureTolerance,
		fetchTimeout: 10 * time.Second,
		defaultPlan:  DefaultPlanSlug,
		counters:     make(map[Resource]UsageCounter),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, ok := s.plans[s.defaultPlan]; !ok {
		return nil, errors.Join(ErrInvalidPlanConfiguration,
			fmt.Errorf("default plan %q not in catalog", s.defaultPlan))
	}

	return s, nil
}

// HandleWebhook runs the full inbound pipeline on one delivery:
// verify → decode → dedup → dispatch.
//
// Returned errors map onto the HTTP contract: ErrInvalidSignature and
// ErrDecode mean 400 (the processor does not retry malformed payloads),
// anything else means 500 (the processor retries with backoff). Data and
// configuration problems a retry cannot fix, like an unresolvable account or an
// unknown plan, are logged and absorbed here, so the processor sees success.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if err := VerifySignature(s.secret, payload, sigHeader, s.tolerance); err != nil {
		return err
	}

	event, err := DecodeEvent(payload)
	if err != nil {
		return err
	}

	marked := false
	if s.guard != nil && event.ID != "" {
		seen, err := s.guard.CheckAndMark(ctx, event.ID)
		switch {
		case err != nil:
			// Guard outage degrades to upsert-level idempotency, never to a 5xx.
			s.log.WarnContext(ctx, "event dedup guard unavailable",
				"event_id", event.ID, "error", err)
		case seen:
			s.log.DebugContext(ctx, "duplicate event delivery skipped",
				"event_id", event.ID, "event_type", event.Type)
			return nil
		default:
			marked = true
		}
	}

	if err := s.HandleEvent(ctx, event); err != nil {
		if errors.Is(err, ErrUnresolvedAccount) || errors.Is(err, ErrUnknownPlan) {
			s.log.WarnContext(ctx, "event acknowledged without state change",
				"event_id", event.ID, "event_type", event.Type, "error", err)
			return nil
		}
		// The 500 tells the processor to redeliver this event id; the mark
		// must not survive, or the retry would be skipped as a duplicate.
		if marked {
			if unmarkErr := s.guard.Unmark(ctx, event.ID); unmarkErr != nil {
				s.log.ErrorContext(ctx, "failed to release event mark",
					"event_id", event.ID, "error", unmarkErr)
			}
		}
		s.log.ErrorContext(ctx, "event processing failed",
			"event_id", event.ID, "event_type", event.Type, "error", err)
		return err
	}

	return nil
}

// HandleEvent routes a decoded event to its handler. Event types outside the
// consumed set are acknowledged without side effects so the processor never
// retries future event types indefinitely.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChange(ctx, event)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid, EventInvoicePaymentFailed:
		return s.handleInvoice(ctx, event)
	case EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventCustomerCreated, EventCustomerUpdated:
		return s.handleCustomerIdentity(ctx, event)
	default:
		s.log.InfoContext(ctx, "ignoring unhandled event type",
			"event_id", event.ID, "event_type", event.Type)
		return nil
	}
}

func (s *Service) handleSubscriptionChange(ctx context.Context, event *Event) error {
	obj, err := event.Subscription()
	if err != nil {
		return err
	}
	return s.applySubscription(ctx, event.ID, obj, "")
}

// applySubscription is the core state machine: resolve account and plan, map
// status, and upsert the account's single subscription row. It is shared by
// the webhook path and the checkout bridge's eager fetch. fallbackAccountID
// supplements the object's own metadata when the caller has better identity
// context (a checkout session's client reference).
func (s *Service) applySubscription(ctx context.Context, eventID string, obj *SubscriptionObject, fallbackAccountID string) error {
	metaAccountID := obj.AccountID()
	if metaAccountID == "" {
		metaAccountID = fallbackAccountID
	}

	account, err := s.resolveAccount(ctx, metaAccountID, obj.Customer)
	if err != nil {
		return err
	}

	plan, err := s.resolvePlan(obj.PlanSlug(), obj.PriceID())
	if err != nil {
		return err
	}

	// Lazily attach the customer mapping when the subscription is the first
	// billing contact for this account. A conflict is an anomaly, not a
	// failure: the stored mapping wins.
	if obj.Customer != "" && account.ExternalCustomerID == "" {
		if err := s.store.SetExternalCustomerID(ctx, account.ID, obj.Customer); err != nil {
			if !errors.Is(err, ErrExternalCustomerIDConflict) {
				return fmt.Errorf("attach customer id: %w", err)
			}
			s.log.WarnContext(ctx, "customer id conflicts with stored mapping",
				"event_id", eventID, "account_id", account.ID, "customer_id", obj.Customer)
		}
	}

	sub := &Subscription{
		AccountID:          account.ID,
		ExternalID:         obj.ID,
		PlanSlug:           plan.Slug,
		Status:             MapStatus(obj.Status),
		CurrentPeriodStart: obj.PeriodStart(),
		CurrentPeriodEnd:   obj.PeriodEnd(),
		CancelAtPeriodEnd:  obj.CancelAtPeriodEnd,
	}
	if err := s.store.UpsertSubscription(ctx, sub); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}

	s.log.InfoContext(ctx, "subscription reconciled",
		"event_id", eventID,
		"account_id", account.ID,
		"external_id", obj.ID,
		"plan", plan.Slug,
		"status", sub.Status)
	return nil
}

// handleSubscriptionDeleted collapses the subscription to its terminal status
// in a single conditional write, touching only the status columns so a racing
// subscription-updated upsert is never overwritten with a stale row snapshot.
// The row is retained for billing audit; a missing row means the deletion
// already converged and is a no-op.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *Event) error {
	obj, err := event.Subscription()
	if err != nil {
		return err
	}

	if err := s.store.MarkSubscriptionCancelledByExternalID(ctx, obj.ID); err != nil {
		return fmt.Errorf("cancel subscription %s: %w", obj.ID, err)
	}

	s.log.InfoContext(ctx, "subscription cancelled",
		"event_id", event.ID, "external_id", obj.ID)
	return nil
}

// handleInvoice records payment history keyed by the processor's invoice id.
// Payment failure additionally marks the referenced subscription past_due
// immediately: failure visibility must not wait for the subscription-updated
// event that may or may not follow.
func (s *Service) handleInvoice(ctx context.Context, event *Event) error {
	inv, err := event.Invoice()
	if err != nil {
		return err
	}

	account, err := s.store.FindAccountByExternalCustomerID(ctx, inv.Customer)
	if errors.Is(err, ErrAccountNotFound) {
		// Backfilled or ancient events may reference customers this deployment
		// never stored; acknowledge without state changes.
		s.log.WarnContext(ctx, "invoice for unknown customer ignored",
			"event_id", event.ID, "invoice_id", inv.ID, "customer_id", inv.Customer)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve invoice customer %s: %w", inv.Customer, err)
	}

	status := PaymentFailed
	if event.Type == EventInvoicePaid {
		status = PaymentSucceeded
		if !inv.Paid {
			status = PaymentPending
		}
	}

	payment := &Payment{
		AccountID:         account.ID,
		ExternalInvoiceID: inv.ID,
		Amount:            inv.Amount(),
		Currency:          inv.Currency,
		Status:            status,
		Description:       inv.Description(),
		PaidAt:            inv.PaidTime(),
	}
	if err := s.store.UpsertPayment(ctx, payment); err != nil {
		return fmt.Errorf("upsert payment %s: %w", inv.ID, err)
	}

	if event.Type == EventInvoicePaymentFailed && inv.Subscription != "" {
		if err := s.store.MarkSubscriptionPastDueByExternalID(ctx, inv.Subscription); err != nil {
			return fmt.Errorf("mark subscription past due: %w", err)
		}
	}

	s.log.InfoContext(ctx, "payment recorded",
		"event_id", event.ID,
		"invoice_id", inv.ID,
		"account_id", account.ID,
		"status", status)
	return nil
}

// handleCheckoutCompleted is the bridge for the notification that can precede
// the subscription-created event. It makes at most observational updates
// (attaching the customer mapping) and optionally shortens the user-visible
// "not yet upgraded" window by eagerly fetching the referenced subscription
// and reconciling it now instead of waiting for the webhook. The fetch is
// bounded and fails soft: the webhook remains the source of truth.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *Event) error {
	sess, err := event.CheckoutSession()
	if err != nil {
		return err
	}

	if rawID := sess.AccountID(); rawID != "" && sess.Customer != "" {
		accountID, err := uuid.Parse(rawID)
		if err != nil {
			s.log.WarnContext(ctx, "checkout session carries malformed account id",
				"event_id", event.ID, "account_id", rawID)
		} else if err := s.store.SetExternalCustomerID(ctx, accountID, sess.Customer); err != nil {
			switch {
			case errors.Is(err, ErrExternalCustomerIDConflict):
				s.log.WarnContext(ctx, "customer id conflicts with stored mapping",
					"event_id", event.ID, "account_id", accountID, "customer_id", sess.Customer)
			case errors.Is(err, ErrAccountNotFound):
				s.log.WarnContext(ctx, "checkout session for unknown account",
					"event_id", event.ID, "account_id", accountID)
			default:
				return fmt.Errorf("attach customer id: %w", err)
			}
		}
	}

	if sess.Subscription == "" || s.provider == nil {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	obj, err := s.provider.FetchSubscription(fetchCtx, sess.Subscription)
	if err != nil {
		s.log.WarnContext(ctx, "eager subscription fetch failed, waiting for webhook",
			"event_id", event.ID, "subscription_id", sess.Subscription, "error", err)
		return nil
	}

	if err := s.applySubscription(ctx, event.ID, obj, sess.AccountID()); err != nil {
		if errors.Is(err, ErrUnresolvedAccount) || errors.Is(err, ErrUnknownPlan) {
			s.log.WarnContext(ctx, "eager reconciliation skipped",
				"event_id", event.ID, "subscription_id", sess.Subscription, "error", err)
			return nil
		}
		return err
	}
	return nil
}

// handleCustomerIdentity performs the monotonic set of an account's external
// customer id from customer created/updated events.
func (s *Service) handleCustomerIdentity(ctx context.Context, event *Event) error {
	cust, err := event.Customer()
	if err != nil {
		return err
	}

	rawID := cust.AccountID()
	if rawID == "" {
		s.log.DebugContext(ctx, "customer event without account metadata ignored",
			"event_id", event.ID, "customer_id", cust.ID)
		return nil
	}

	accountID, err := uuid.Parse(rawID)
	if err != nil {
		s.log.WarnContext(ctx, "customer event carries malformed account id",
			"event_id", event.ID, "account_id", rawID)
		return nil
	}

	err = s.store.SetExternalCustomerID(ctx, accountID, cust.ID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrExternalCustomerIDConflict):
		s.log.WarnContext(ctx, "customer id conflicts with stored mapping",
			"event_id", event.ID, "account_id", accountID, "customer_id", cust.ID)
		return nil
	case errors.Is(err, ErrAccountNotFound):
		s.log.WarnContext(ctx, "customer event for unknown account",
			"event_id", event.ID, "account_id", accountID)
		return nil
	default:
		return fmt.Errorf("set external customer id: %w", err)
	}
}

// resolveAccount maps the processor's identity onto an internal account.
// Embedded metadata is authoritative when present (it was stamped at checkout
// or customer creation); the stored customer mapping is the fallback.
func (s *Service) resolveAccount(ctx context.Context, metaAccountID, customerID string) (*Account, error) {
	if metaAccountID != "" {
		if id, err := uuid.Parse(metaAccountID); err == nil {
			account, err := s.store.FindAccountByID(ctx, id)
			if err == nil {
				return account, nil
			}
			if !errors.Is(err, ErrAccountNotFound) {
				return nil, fmt.Errorf("find account %s: %w", id, err)
			}
		}
	}

	if customerID != "" {
		account, err := s.store.FindAccountByExternalCustomerID(ctx, customerID)
		if err == nil {
			return account, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return nil, fmt.Errorf("find account by customer %s: %w", customerID, err)
		}
	}

	return nil, fmt.Errorf("%w: account_id=%q customer=%q", ErrUnresolvedAccount, metaAccountID, customerID)
}

// resolvePlan maps a plan reference onto the catalog: metadata slug first,
// then the processor's price reference, then the default tier.
func (s *Service) resolvePlan(slug, priceID string) (Plan, error) {
	if slug == "" && priceID != "" {
		for _, plan := range s.plans {
			if plan.PriceID == priceID {
				return plan, nil
			}
		}
	}
	if slug == "" {
		slug = s.defaultPlan
	}

	plan, ok := s.plans[slug]
	if !ok {
		return Plan{}, fmt.Errorf("%w: slug=%q price=%q", ErrUnknownPlan, slug, priceID)
	}
	return plan, nil
}
