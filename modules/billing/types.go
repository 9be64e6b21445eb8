package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical subscription status. The processor's richer
// vocabulary is collapsed into these four values by MapStatus; nothing outside
// the mapper should ever see a raw processor status string.
type Status string

const (
	StatusActive    Status = "active"
	StatusPastDue   Status = "past_due"
	StatusCancelled Status = "cancelled"
	StatusPending   Status = "pending"
)

// PaymentStatus is the status of a single payment record.
type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentPending   PaymentStatus = "pending"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Resource represents a countable per-account resource governed by plan limits.
type Resource string

const (
	ResourceGuests     Resource = "guests"
	ResourceEvents     Resource = "events"
	ResourceChecklists Resource = "checklists"
	ResourceMenus      Resource = "menus"
)

// Unlimited indicates no limit for a resource (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// Feature represents a plan-specific capability that can be enabled per tier.
type Feature string

const (
	FeatureSeatingChart  Feature = "seating_chart"
	FeatureMarketplace   Feature = "marketplace"
	FeatureRSVPReminders Feature = "rsvp_reminders"
	FeatureGuestExport   Feature = "guest_export"
	FeatureCustomDomain  Feature = "custom_domain"
)

// Money represents a monetary amount in the smallest currency unit.
type Money struct {
	Amount   int64  `yaml:"amount" json:"amount"`
	Currency string `yaml:"currency" json:"currency"`
}

// BillingInterval represents the billing frequency for a plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // free tiers with no billing
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Account is a tenant of the platform. ExternalCustomerID is the processor's
// customer identifier; it is empty until first billing contact and, once set,
// must never silently change to a different value.
type Account struct {
	ID                 uuid.UUID
	Email              string
	Name               string
	ExternalCustomerID string
}

// Plan is a priced tier, uniquely identified by its slug. Plans are immutable
// reference data: the reconciliation engine only ever looks them up.
type Plan struct {
	Slug     string             `yaml:"slug" json:"slug"`
	Name     string             `yaml:"name" json:"name"`
	PriceID  string             `yaml:"price_id" json:"price_id"` // processor's price reference
	Price    Money              `yaml:"price" json:"price"`
	Interval BillingInterval    `yaml:"interval" json:"interval"`
	Limits   map[Resource]int64 `yaml:"limits" json:"limits"`
	Features []Feature          `yaml:"features" json:"features"`
	Public   bool               `yaml:"public" json:"public"`
}

// HasFeature reports whether the plan enables the given feature.
func (p Plan) HasFeature(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// IsFree reports whether the plan bypasses the payment processor entirely.
func (p Plan) IsFree() bool {
	return p.Interval == BillingIntervalNone
}

// Subscription is the billing relationship between exactly one account and one
// plan. AccountID is the natural key: an account never has more than one row,
// even when the processor-side subscription object is replaced (plan swap).
type Subscription struct {
	AccountID          uuid.UUID `json:"account_id"`
	ExternalID         string    `json:"external_id"`
	PlanSlug           string    `json:"plan_slug"`
	Status             Status    `json:"status"`
	CurrentPeriodStart time.Time `json:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end"`
	CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// IsActive reports whether the subscription currently grants plan entitlements.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// IsCancelled reports whether the subscription reached its terminal status.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// Payment is one entry of the payment history, keyed by the processor's
// invoice id. Redelivery of the same invoice updates status and paid-at on the
// existing row; amount and currency are write-once.
type Payment struct {
	AccountID         uuid.UUID     `json:"account_id"`
	ExternalInvoiceID string        `json:"external_invoice_id"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	Description       string        `json:"description"`
	PaidAt            *time.Time    `json:"paid_at,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}
