package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/planorahq/planora/modules/billing"
)

func TestMapStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]billing.Status{
		"active":             billing.StatusActive,
		"trialing":           billing.StatusActive,
		"past_due":           billing.StatusPastDue,
		"unpaid":             billing.StatusPastDue,
		"canceled":           billing.StatusCancelled,
		"incomplete_expired": billing.StatusCancelled,
		"incomplete":         billing.StatusPending,
		"paused":             billing.StatusPending,
		"something_new":      billing.StatusPending,
		"":                   billing.StatusPending,
	}

	for external, want := range cases {
		assert.Equal(t, want, billing.MapStatus(external), "external status %q", external)
	}
}
