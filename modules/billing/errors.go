package billing

import "errors"

var (
	// ErrInvalidSignature rejects a webhook whose signature header is missing,
	// malformed, forged, or outside the replay window. Callers respond 400 and
	// must not process the payload.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrDecode rejects a verified payload that is not valid structured data or
	// lacks an event type. Callers respond 400.
	ErrDecode = errors.New("undecodable webhook payload")

	// ErrUnresolvedAccount marks an event whose customer identity maps to no
	// known account. Logged and acknowledged without state changes; retrying
	// the same payload cannot fix it.
	ErrUnresolvedAccount = errors.New("event references an unknown account")

	// ErrUnknownPlan marks an event whose plan reference is not in the catalog.
	// A processor-side misconfiguration: logged and acknowledged, needs a human.
	ErrUnknownPlan = errors.New("event references an unknown plan")

	// ErrExternalCustomerIDConflict reports an attempt to point an account at a
	// different processor customer than the one already stored. The mapping is
	// monotonic; conflicts are logged as anomalies and never overwrite.
	ErrExternalCustomerIDConflict = errors.New("external customer id conflicts with stored mapping")

	ErrAccountNotFound      = errors.New("account not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrPlanNotFound         = errors.New("plan not found")

	// ErrSubscriptionExists prevents checkout initiation for an account that
	// already has a non-cancelled subscription.
	ErrSubscriptionExists = errors.New("subscription already exists")

	// ErrNoExternalCustomer is returned when a portal session is requested for
	// an account that has never had billing contact.
	ErrNoExternalCustomer = errors.New("account has no external customer id")

	ErrProviderNotConfigured = errors.New("billing provider not configured")

	ErrFailedToLoadPlans        = errors.New("failed to load plan catalog")
	ErrInvalidPlanConfiguration = errors.New("invalid plan configuration")

	ErrLimitExceeded       = errors.New("plan limit exceeded")
	ErrInvalidResource     = errors.New("resource not covered by plan")
	ErrNoCounterRegistered = errors.New("no usage counter registered for resource")
)
