package billing

// MapStatus translates the processor's subscription status vocabulary into the
// canonical Status. Trialing counts as active for entitlement purposes. Any
// status this deployment does not recognize degrades to pending rather than
// failing or granting access.
func MapStatus(external string) Status {
	switch external {
	case "active", "trialing":
		return StatusActive
	case "past_due", "unpaid":
		return StatusPastDue
	case "canceled", "incomplete_expired":
		return StatusCancelled
	case "incomplete":
		return StatusPending
	default:
		return StatusPending
	}
}
