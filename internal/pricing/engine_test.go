package pricing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/rules"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

func newTestEngine(t *testing.T, negotiated string) *Engine {
	t.Helper()

	registry, err := refdata.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)

	ruleEngine, err := rules.NewEngine(filepath.Join(t.TempDir(), "rules.json"), "UTC", nil)
	require.NoError(t, err)

	cached := rates.NewCached(rates.NewStaticSource(), nil, time.Second, 30*time.Second, nil)

	path := ""
	if negotiated != "" {
		path = filepath.Join(t.TempDir(), "negotiated.json")
		require.NoError(t, os.WriteFile(path, []byte(negotiated), 0o644))
	}

	e, err := NewEngine(registry, cached, ruleEngine, path, 60*time.Second, nil)
	require.NoError(t, err)
	return e
}

// ─── Margin composition ──────────────────────────────────────────────────────

func TestQuote_ClampsToSegmentMax(t *testing.T) {
	e := newTestEngine(t, "")

	// MID_MARKET on a restricted pair at retail size composes
	// 75 + 50 + 100 = 225 bps, above the 150 bps segment ceiling.
	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(1000),
		CustomerID:     "CUST-1",
		Segment:        "MID_MARKET",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)

	assert.Equal(t, "150", q.MarginBps.String())
	assert.Equal(t, "TIER_1", q.AmountTier)
	assert.Equal(t, refdata.CategoryRestricted, q.CurrencyCategory)
	assert.Equal(t, model.RateFirm, q.RateType)
}

func TestQuote_CustomerRateDiffersFromMidByMargin(t *testing.T) {
	e := newTestEngine(t, "")

	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(250000),
		CustomerID:     "CUST-1",
		Segment:        "LARGE_CORPORATE",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)

	// 25 base − 15 tier (TIER_4) + 100 restricted corporate = 110, clamped to the 75 ceiling.
	assert.Equal(t, "75", q.MarginBps.String())

	expected := q.MidRate.Mul(decimal.NewFromInt(1).Sub(q.MarginBps.Div(decimal.NewFromInt(10000)))).Round(6)
	assert.True(t, q.CustomerRate.Sub(expected).Abs().LessThanOrEqual(decimal.RequireFromString("0.000001")),
		"customer rate must differ from mid by exactly the composed margin")
}

func TestQuote_BuyDirectionAddsMargin(t *testing.T) {
	e := newTestEngine(t, "")

	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(250000),
		CustomerID:     "CUST-1",
		Segment:        "LARGE_CORPORATE",
		Direction:      model.SideBuy,
	})
	require.NoError(t, err)

	assert.True(t, q.CustomerRate.GreaterThan(q.MidRate), "BUY margin must worsen the rate for the customer")
}

func TestQuote_TargetAmountRoundTrip(t *testing.T) {
	e := newTestEngine(t, "")

	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(100000),
		CustomerID:     "CUST-1",
		Segment:        "INSTITUTIONAL",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)

	recomputed := q.Amount.Mul(q.CustomerRate).Round(2)
	assert.True(t, q.TargetAmount.Sub(recomputed).Abs().LessThanOrEqual(decimal.RequireFromString("0.01")))
}

// ─── Eligibility gating ──────────────────────────────────────────────────────

func TestQuote_TierAdjustmentOnlyWhenEligible(t *testing.T) {
	e := newTestEngine(t, "")

	// SMALL_BUSINESS is not volume-discount eligible: TIER_6 (−40)
	// must not apply.
	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		Amount:         decimal.NewFromInt(2000000),
		CustomerID:     "CUST-1",
		Segment:        "SMALL_BUSINESS",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)
	assert.True(t, q.MarginBreakdown.TierAdjustmentBps.IsZero())
}

func TestQuote_NegotiatedDiscountGating(t *testing.T) {
	doc := `{"discounts": {"CUST-NEG": 10}}`

	e := newTestEngine(t, doc)

	// INSTITUTIONAL allows negotiated rates.
	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		Amount:         decimal.NewFromInt(75000),
		CustomerID:     "CUST-NEG",
		Segment:        "INSTITUTIONAL",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)
	assert.Equal(t, "10", q.MarginBreakdown.NegotiatedDiscountBps.String())

	// SMALL_BUSINESS does not.
	q, err = e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "EUR",
		Amount:         decimal.NewFromInt(75000),
		CustomerID:     "CUST-NEG",
		Segment:        "SMALL_BUSINESS",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)
	assert.True(t, q.MarginBreakdown.NegotiatedDiscountBps.IsZero())
}

// ─── Rule overrides ──────────────────────────────────────────────────────────

func TestQuote_MarginRuleOverridesClampBounds(t *testing.T) {
	registry, err := refdata.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)
	ruleEngine, err := rules.NewEngine(filepath.Join(t.TempDir(), "rules.json"), "UTC", nil)
	require.NoError(t, err)
	cached := rates.NewCached(rates.NewStaticSource(), nil, time.Second, 30*time.Second, nil)
	e, err := NewEngine(registry, cached, ruleEngine, "", 60*time.Second, nil)
	require.NoError(t, err)

	maxBps := 200.0
	require.NoError(t, ruleEngine.Add(rules.Rule{
		RuleID: "RAISE_CAP", RuleName: "raise mid-market cap", RuleType: rules.TypeMarginAdjustment,
		Priority: 80, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
		Conditions: rules.Conditions{Operator: rules.OpAnd, Criteria: []rules.Criterion{
			{Field: "customer_segment", Operator: rules.CritEquals, Value: "MID_MARKET"},
		}},
		Margin: &rules.MarginAdjustmentAction{MaxMarginBps: &maxBps},
	}))

	q, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(1000),
		CustomerID:     "CUST-1",
		Segment:        "MID_MARKET",
		Direction:      model.SideSell,
	})
	require.NoError(t, err)
	// Raw composition is 225; the rule lifts the ceiling from 150 to 200.
	assert.Equal(t, "200", q.MarginBps.String())
	assert.Contains(t, q.AppliedRules, "RAISE_CAP")
}

func TestQuote_UnknownSegmentRejected(t *testing.T) {
	e := newTestEngine(t, "")

	_, err := e.Quote(context.Background(), Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(1000),
		Segment:        "WHALE",
		Direction:      model.SideSell,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownSegment)
}

func TestQuote_IDsAreMonotonic(t *testing.T) {
	e := newTestEngine(t, "")

	req := Request{
		SourceCurrency: "USD", TargetCurrency: "EUR",
		Amount: decimal.NewFromInt(1000), CustomerID: "CUST-1",
		Segment: "RETAIL", Direction: model.SideSell,
	}
	q1, err := e.Quote(context.Background(), req)
	require.NoError(t, err)
	q2, err := e.Quote(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, q1.QuoteID, q2.QuoteID)
	assert.True(t, q2.QuoteID > q1.QuoteID, "quote IDs are monotonic")
}
