package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// StripeConfig holds Stripe provider settings, loaded from the environment.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeProvider implements Provider on top of the official Stripe SDK.
// Webhook verification and decoding are NOT routed through the SDK: the
// inbound pipeline owns the raw payload end to end (see VerifySignature and
// DecodeEvent); the SDK serves only the outbound calls.
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a Stripe-backed billing provider.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("billing: stripe API key is required")
	}
	return &StripeProvider{api: client.New(cfg.APIKey, nil)}, nil
}

// FetchSubscription retrieves a subscription and decodes the raw API response
// into the local object shape, so eager fetches and webhook payloads flow
// through the identical reconciliation path.
func (p *StripeProvider) FetchSubscription(ctx context.Context, externalID string) (*SubscriptionObject, error) {
	sub, err := p.api.Subscriptions.Get(externalID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("billing: fetch subscription %s: %w", externalID, err)
	}

	var obj SubscriptionObject
	if err := json.Unmarshal(sub.LastResponse.RawJSON, &obj); err != nil {
		return nil, fmt.Errorf("billing: decode fetched subscription %s: %w", externalID, err)
	}
	return &obj, nil
}

// CreateCheckoutSession creates a hosted checkout session in subscription
// mode. Account id and plan slug are stamped on both the session and the
// subscription-to-be, which is what makes the first webhook self-identifying.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.PriceID == "" {
		return nil, errors.New("billing: price reference is required")
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(req.AccountID.String()),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"account_id": req.AccountID.String(),
				"plan_slug":  req.PlanSlug,
			},
		},
	}
	params.AddMetadata("account_id", req.AccountID.String())
	params.AddMetadata("plan_slug", req.PlanSlug)

	switch {
	case req.CustomerID != "":
		params.Customer = stripe.String(req.CustomerID)
	case req.Email != "":
		params.CustomerEmail = stripe.String(req.Email)
	}

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create checkout session: %w", err)
	}
	if sess.URL == "" {
		return nil, errors.New("billing: no checkout URL returned")
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// CreatePortalSession returns a customer portal session for an account that
// already has a processor customer id.
func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	if customerID == "" {
		return nil, ErrNoExternalCustomer
	}

	params := &stripe.BillingPortalSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(customerID),
	}
	if returnURL != "" {
		params.ReturnURL = stripe.String(returnURL)
	}

	sess, err := p.api.BillingPortalSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("billing: create portal session: %w", err)
	}
	if sess.URL == "" {
		return nil, errors.New("billing: no portal URL returned")
	}

	return &PortalSession{URL: sess.URL}, nil
}
