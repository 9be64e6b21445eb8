// Package billing reconciles the payment processor's asynchronous webhook
// stream into the platform's internal billing state: which plan an account is
// on, whether it is paid up, and its payment history.
//
// The processor delivers events at least once, in no guaranteed order, and
// possibly concurrently. The engine is built so that none of that matters for
// final state:
//
//   - every write is an upsert keyed by a stable natural key (account for
//     subscriptions, invoice id for payments), performed as a transactional
//     conditional write rather than a read-then-write pair;
//   - every handler is re-entrant, and replaying any event converges to the
//     same row content;
//   - an optional redis guard short-circuits exact redeliveries by event id,
//     purely as an optimization.
//
// Inbound pipeline: signature verification over the raw body (the
// `t=<unix>,v1=<hex>` HMAC-SHA256 scheme with a five-minute replay window)
// runs before any JSON parsing; the decoded envelope is then dispatched by
// event type. Unknown event types are acknowledged without side effects.
// Failures that a retry can fix surface as errors (the HTTP layer answers
// 500 and the processor retries); data and configuration problems are logged
// and absorbed so the processor never retries a payload that cannot succeed.
//
// Outbound, the Provider interface covers the account-initiated checkout and
// portal flows plus the checkout bridge's eager subscription fetch, with a
// Stripe-backed implementation.
//
// Basic wiring:
//
//	store := billing.NewPostgresStore(pool)
//	svc, err := billing.NewService(ctx, billing.NewYAMLSource("plans.yaml"), store,
//		billing.WithProvider(provider),
//		billing.WithGuard(billing.NewRedisGuard(redisClient, 24*time.Hour)),
//		billing.WithWebhookSecret(secret),
//		billing.WithLogger(log),
//	)
//	r.Mount("/", billing.Router(svc, log))
package billing
