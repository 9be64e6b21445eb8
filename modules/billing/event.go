package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types consumed from the payment processor. Everything else is
// acknowledged without side effects: the protocol requires tolerating future
// event types rather than erroring.
const (
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
	EventCheckoutCompleted    = "checkout.session.completed"
	EventCustomerCreated      = "customer.created"
	EventCustomerUpdated      = "customer.updated"
)

// Event is the decoded webhook envelope. The nested object stays raw until a
// typed extractor is asked for it, keeping the envelope decoupled from the
// processor SDK and the per-type object shapes.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Created int64     `json:"created"`
	Data    eventData `json:"data"`
}

type eventData struct {
	Object json.RawMessage `json:"object"`
}

// DecodeEvent parses a verified raw body into an event envelope. The body must
// already have passed signature verification; decoding never runs on
// unverified input.
func DecodeEvent(payload []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if event.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrDecode)
	}
	return &event, nil
}

// OccurredAt returns the event's creation time as reported by the processor.
func (e *Event) OccurredAt() time.Time {
	return time.Unix(e.Created, 0).UTC()
}

// SubscriptionObject is the minimal view of the processor's subscription
// object consumed by the reconciler.
type SubscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// AccountID returns the internal account id stamped into metadata at checkout
// time, or empty when absent.
func (o *SubscriptionObject) AccountID() string {
	return o.Metadata["account_id"]
}

// PlanSlug returns the internal plan slug stamped into metadata, or empty.
func (o *SubscriptionObject) PlanSlug() string {
	return o.Metadata["plan_slug"]
}

// PriceID returns the processor's price reference from the first line item.
func (o *SubscriptionObject) PriceID() string {
	if len(o.Items.Data) == 0 {
		return ""
	}
	return o.Items.Data[0].Price.ID
}

// PeriodStart returns the current period start as a UTC time.
func (o *SubscriptionObject) PeriodStart() time.Time {
	return time.Unix(o.CurrentPeriodStart, 0).UTC()
}

// PeriodEnd returns the current period end as a UTC time.
func (o *SubscriptionObject) PeriodEnd() time.Time {
	return time.Unix(o.CurrentPeriodEnd, 0).UTC()
}

// InvoiceObject is the minimal view of the processor's invoice object.
type InvoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Paid         bool   `json:"paid"`
	Lines        struct {
		Data []struct {
			Description string `json:"description"`
		} `json:"data"`
	} `json:"lines"`
	StatusTransitions struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

// Amount returns the settled amount for paid invoices and the amount owed
// otherwise.
func (o *InvoiceObject) Amount() int64 {
	if o.Paid {
		return o.AmountPaid
	}
	return o.AmountDue
}

// Description returns the first non-empty line-item description.
func (o *InvoiceObject) Description() string {
	for _, line := range o.Lines.Data {
		if line.Description != "" {
			return line.Description
		}
	}
	return ""
}

// PaidTime returns the settlement time, or nil for unpaid invoices.
func (o *InvoiceObject) PaidTime() *time.Time {
	if o.StatusTransitions.PaidAt == 0 {
		return nil
	}
	t := time.Unix(o.StatusTransitions.PaidAt, 0).UTC()
	return &t
}

// CheckoutSessionObject is the minimal view of a completed checkout session.
type CheckoutSessionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// AccountID returns the internal account id from session metadata, falling
// back to the client reference id set at session creation.
func (o *CheckoutSessionObject) AccountID() string {
	if id := o.Metadata["account_id"]; id != "" {
		return id
	}
	return o.ClientReferenceID
}

// CustomerObject is the minimal view of the processor's customer object.
type CustomerObject struct {
	ID       string            `json:"id"`
	Email    string            `json:"email"`
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// AccountID returns the internal account id from customer metadata, or empty.
func (o *CustomerObject) AccountID() string {
	return o.Metadata["account_id"]
}

// Subscription decodes the envelope's nested object as a subscription.
func (e *Event) Subscription() (*SubscriptionObject, error) {
	var obj SubscriptionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: subscription object: %v", ErrDecode, err)
	}
	return &obj, nil
}

// Invoice decodes the envelope's nested object as an invoice.
func (e *Event) Invoice() (*InvoiceObject, error) {
	var obj InvoiceObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: invoice object: %v", ErrDecode, err)
	}
	return &obj, nil
}

// CheckoutSession decodes the envelope's nested object as a checkout session.
func (e *Event) CheckoutSession() (*CheckoutSessionObject, error) {
	var obj CheckoutSessionObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: checkout session object: %v", ErrDecode, err)
	}
	return &obj, nil
}

// Customer decodes the envelope's nested object as a customer.
func (e *Event) Customer() (*CustomerObject, error) {
	var obj CustomerObject
	if err := json.Unmarshal(e.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("%w: customer object: %v", ErrDecode, err)
	}
	return &obj, nil
}
