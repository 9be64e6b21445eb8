package billing

import (
	"context"

	"github.com/google/uuid"
)

// Provider is the outbound surface of the payment processor. It is used only
// off the webhook hot path: checkout and portal session creation by the
// account-initiated flows, and the checkout bridge's eager subscription fetch.
// The webhook pipeline itself never calls out.
type Provider interface {
	// FetchSubscription retrieves the processor's current view of a
	// subscription, decoded into the same object shape the webhook decoder
	// produces so both feed one reconciliation path.
	FetchSubscription(ctx context.Context, externalID string) (*SubscriptionObject, error)

	// CreateCheckoutSession creates a hosted checkout session. The internal
	// account id and plan slug are stamped into subscription metadata so the
	// first webhook for the new subscription is self-identifying.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CreatePortalSession returns a temporary customer-portal session where the
	// account owner can change payment methods, cancel, or switch plans.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
}

// CheckoutRequest contains the data needed to create a checkout session.
type CheckoutRequest struct {
	AccountID  uuid.UUID
	PlanSlug   string
	PriceID    string // processor's price reference for the plan
	Email      string // pre-fill billing email when known
	CustomerID string // existing processor customer, empty on first contact
	SuccessURL string
	CancelURL  string
}

// CheckoutSession represents a hosted checkout session.
type CheckoutSession struct {
	ID  string `json:"session_id"`
	URL string `json:"url"`
}

// PortalSession represents a customer portal session.
type PortalSession struct {
	URL string `json:"url"`
}
