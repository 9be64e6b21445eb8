package billing_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planorahq/planora/modules/billing"
)

func TestYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("loads catalog", func(t *testing.T) {
		t.Parallel()

		src := billing.NewYAMLSource(filepath.Join("testdata", "plans.yaml"))
		plans, err := src.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, plans, 2)

		basis := plans["basis"]
		assert.Equal(t, "Basis", basis.Name)
		assert.True(t, basis.IsFree())
		assert.EqualValues(t, 50, basis.Limits[billing.ResourceGuests])
		assert.False(t, basis.HasFeature(billing.FeatureSeatingChart))

		pro := plans["pro"]
		assert.Equal(t, "price_pro_monthly", pro.PriceID)
		assert.Equal(t, billing.BillingIntervalMonthly, pro.Interval)
		assert.EqualValues(t, 1900, pro.Price.Amount)
		assert.True(t, pro.HasFeature(billing.FeatureGuestExport))
		assert.Equal(t, billing.Unlimited, pro.Limits[billing.ResourceChecklists])
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		src := billing.NewYAMLSource(filepath.Join("testdata", "nope.yaml"))
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, billing.ErrFailedToLoadPlans)
	})

	t.Run("duplicate slug", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "plans.yaml")
		require.NoError(t, os.WriteFile(path, []byte(
			"- slug: basis\n  name: Basis\n  interval: none\n"+
				"- slug: basis\n  name: Basis again\n  interval: none\n"), 0o600))

		src := billing.NewYAMLSource(path)
		_, err := src.Load(context.Background())
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})
}

func TestStaticSource(t *testing.T) {
	t.Parallel()

	t.Run("panics without plans", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() { billing.NewStaticSource() })
	})

	t.Run("returns isolated copies", func(t *testing.T) {
		t.Parallel()

		src := billing.NewStaticSource(billing.Plan{
			Slug:     "basis",
			Name:     "Basis",
			Interval: billing.BillingIntervalNone,
			Limits:   map[billing.Resource]int64{billing.ResourceGuests: 50},
		})

		first, err := src.Load(context.Background())
		require.NoError(t, err)
		first["basis"].Limits[billing.ResourceGuests] = 9999

		second, err := src.Load(context.Background())
		require.NoError(t, err)
		assert.EqualValues(t, 50, second["basis"].Limits[billing.ResourceGuests])
	})
}

func TestNewServiceCatalogValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("paid plan without price reference", func(t *testing.T) {
		t.Parallel()

		src := billing.NewStaticSource(
			billing.Plan{Slug: "basis", Interval: billing.BillingIntervalNone},
			billing.Plan{Slug: "pro", Interval: billing.BillingIntervalMonthly},
		)
		_, err := billing.NewService(ctx, src, billing.NewMemStore())
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})

	t.Run("invalid limit", func(t *testing.T) {
		t.Parallel()

		src := billing.NewStaticSource(billing.Plan{
			Slug:     "basis",
			Interval: billing.BillingIntervalNone,
			Limits:   map[billing.Resource]int64{billing.ResourceGuests: -2},
		})
		_, err := billing.NewService(ctx, src, billing.NewMemStore())
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})

	t.Run("default plan missing from catalog", func(t *testing.T) {
		t.Parallel()

		src := billing.NewStaticSource(billing.Plan{
			Slug:     "starter",
			Interval: billing.BillingIntervalNone,
		})
		_, err := billing.NewService(ctx, src, billing.NewMemStore())
		assert.ErrorIs(t, err, billing.ErrInvalidPlanConfiguration)
	})

	t.Run("nil dependencies panic", func(t *testing.T) {
		t.Parallel()

		assert.Panics(t, func() {
			_, _ = billing.NewService(ctx, nil, billing.NewMemStore())
		})
		assert.Panics(t, func() {
			src := billing.NewStaticSource(billing.Plan{Slug: "basis", Interval: billing.BillingIntervalNone})
			_, _ = billing.NewService(ctx, src, nil)
		})
	})
}
