package refdata

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

func mustClock(t *testing.T, hhmm string) time.Time {
	t.Helper()
	parsed, err := time.Parse("15:04", hhmm)
	require.NoError(t, err)
	return parsed
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)
	return r
}

// ─── Amount tiers ────────────────────────────────────────────────────────────

func TestSnapshot_AmountTierBoundariesAreHalfOpen(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	// A tier's max belongs to the next tier.
	assert.Equal(t, "TIER_1", snap.AmountTierFor(decimal.RequireFromString("9999.99")).ID)
	assert.Equal(t, "TIER_2", snap.AmountTierFor(decimal.NewFromInt(10000)).ID)
	assert.Equal(t, "TIER_3", snap.AmountTierFor(decimal.NewFromInt(50000)).ID)
	assert.Equal(t, "TIER_4", snap.AmountTierFor(decimal.NewFromInt(100000)).ID)
	assert.Equal(t, "TIER_6", snap.AmountTierFor(decimal.NewFromInt(1000000)).ID)
	assert.Equal(t, "TIER_6", snap.AmountTierFor(decimal.NewFromInt(500000000)).ID)
}

// ─── Currency classification ─────────────────────────────────────────────────

func TestSnapshot_PairCategoryUsesLessLiquidSide(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	assert.Equal(t, CategoryG10, snap.PairCategory("USD", "EUR"))
	assert.Equal(t, CategoryRestricted, snap.PairCategory("USD", "INR"))
	assert.Equal(t, CategoryExotic, snap.PairCategory("EUR", "TRY"))
	// Unknown codes default to MINOR.
	assert.Equal(t, CategoryMinor, snap.PairCategory("USD", "XOF"))
}

func TestSnapshot_RailClassificationIsTotal(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	assert.Equal(t, model.RailCBDC, snap.RailTypeOf("e-INR"))
	assert.Equal(t, model.RailStablecoin, snap.RailTypeOf("USDC"))
	assert.Equal(t, model.RailFiat, snap.RailTypeOf("USD"))
	assert.Equal(t, model.RailFiat, snap.RailTypeOf("ZZZ"))
}

func TestSnapshot_FiatAnchors(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	assert.Equal(t, "INR", snap.FiatOf("e-INR"))
	assert.Equal(t, "USD", snap.FiatOf("USDC"))
	assert.Equal(t, "SGD", snap.FiatOf("XSGD"))
	assert.Equal(t, "GBP", snap.FiatOf("gbp"))
}

func TestSnapshot_MBridgeMembership(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	assert.True(t, snap.MBridgePair("e-CNY", "e-AED"))
	assert.False(t, snap.MBridgePair("e-INR", "e-CNY"))
	assert.False(t, snap.MBridgePair("e-CNY", "e-XYZ"))
}

// ─── Category markups ────────────────────────────────────────────────────────

func TestSnapshot_CategoryMarkupPerSegment(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	assert.Equal(t, 2, snap.CategoryMarkupFor(CategoryG10, "INSTITUTIONAL"))
	assert.Equal(t, 100, snap.CategoryMarkupFor(CategoryRestricted, "MID_MARKET"))
	assert.Equal(t, 300, snap.CategoryMarkupFor(CategoryRestricted, "RETAIL"))
	assert.Equal(t, 200, snap.CategoryMarkupFor(CategoryExotic, "SMALL_BUSINESS"))
}

// ─── Operating hours ─────────────────────────────────────────────────────────

func TestOperatingHours(t *testing.T) {
	always := OperatingHours{}
	window := OperatingHours{Open: "03:30", Close: "12:30"}
	overnight := OperatingHours{Open: "22:00", Close: "06:00"}

	assert.True(t, always.Contains(mustClock(t, "00:00")))
	assert.True(t, window.Contains(mustClock(t, "03:30")))
	assert.True(t, window.Contains(mustClock(t, "10:00")))
	assert.False(t, window.Contains(mustClock(t, "12:30")), "close bound is exclusive")
	assert.False(t, window.Contains(mustClock(t, "23:00")))
	assert.True(t, overnight.Contains(mustClock(t, "23:00")))
	assert.True(t, overnight.Contains(mustClock(t, "05:59")))
	assert.False(t, overnight.Contains(mustClock(t, "12:00")))
}

// ─── Admin mutations ─────────────────────────────────────────────────────────

func TestRegistry_CreateProviderConflict(t *testing.T) {
	r := newTestRegistry(t)

	err := r.CreateProvider(Provider{ID: "WISE", Name: "Duplicate"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegistry_DeleteProviderInUse(t *testing.T) {
	r := newTestRegistry(t)

	tier := r.Snapshot().Tiers["GOLD"]
	tier.ProvidersAllowed = []string{"WISE"}
	require.NoError(t, r.UpdateTier(tier))

	err := r.DeleteProvider("WISE")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestRegistry_MutationsDoNotDisturbHeldSnapshots(t *testing.T) {
	r := newTestRegistry(t)

	held := r.Snapshot()
	before := len(held.Providers)

	require.NoError(t, r.CreateProvider(Provider{ID: "NEW_LP", Name: "New LP", Type: ProviderDealer, IsActive: true}))

	assert.Len(t, held.Providers, before, "a held snapshot must not observe later mutations")
	assert.Len(t, r.Snapshot().Providers, before+1)
}

func TestRegistry_CheapestRampPrefersLowestFee(t *testing.T) {
	snap := newTestRegistry(t).Snapshot()

	ramp, ok := snap.CheapestRamp("USDC", RampOn)
	require.True(t, ok)
	assert.Equal(t, "CIRCLE", ramp.ID)

	ramp, ok = snap.CheapestRamp("USDT", RampOn)
	require.True(t, ok)
	assert.Equal(t, "KRAKEN_OTC", ramp.ID)
}
