package routing

import (
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

func newTestEngine(t *testing.T) (*Engine, *rules.Engine) {
	t.Helper()
	registry, err := refdata.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)
	ruleEngine, err := rules.NewEngine(filepath.Join(t.TempDir(), "rules.json"), "UTC", nil)
	require.NoError(t, err)
	return NewEngine(registry, ruleEngine, nil), ruleEngine
}

func usdinrSnapshot() rates.Result {
	bid := decimal.RequireFromString("84.42")
	ask := decimal.RequireFromString("84.58")
	return rates.Result{Rate: model.TreasuryRate{
		Pair:            "USDINR",
		Bid:             bid,
		Ask:             ask,
		Mid:             bid.Add(ask).Div(decimal.NewFromInt(2)),
		Position:        model.PositionLong,
		MaxExposure:     decimal.NewFromInt(50_000_000),
		CurrentExposure: decimal.NewFromInt(18_000_000),
		ValidUntil:      time.Now().Add(time.Hour),
	}}
}

func baseRequest() Request {
	return Request{
		SourceCurrency: "USD",
		TargetCurrency: "INR",
		Amount:         decimal.NewFromInt(100000),
		Side:           model.SideSell,
		Objective:      model.ObjectiveBestRate,
		CustomerID:     "CUST-1",
		Tier:           "GOLD",
		Segment:        "MID_MARKET",
		Timestamp:      time.Date(2026, 8, 6, 10, 0, 0, 0, time.UTC),
	}
}

// ─── Ranking ─────────────────────────────────────────────────────────────────

func TestRecommend_InternalDeskWinsBestRate(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	require.NotEmpty(t, resp.Recommendations)

	top := resp.Recommendations[0]
	assert.Equal(t, "TREASURY_INTERNAL", top.ProviderID)

	// GOLD: markup 15 × 0.7 = 10.5 bps; rate_score = 1 − 10.5/100.
	assert.InDelta(t, 0.895, top.RateScore, 0.0001)

	// Effective rate: ask with LONG/SELL bias −3, markup 10.5,
	// spread reduction −5 → 2.5 bps off the ask.
	expected := decimal.RequireFromString("84.58").
		Mul(decimal.NewFromInt(1).Sub(decimal.RequireFromString("0.00025"))).Round(6)
	assert.True(t, top.EffectiveRate.Equal(expected),
		"effective rate %s, expected %s", top.EffectiveRate, expected)
}

func TestRecommend_Deterministic(t *testing.T) {
	engine, _ := newTestEngine(t)

	first, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	second, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)

	require.Len(t, second.Recommendations, len(first.Recommendations))
	for i := range first.Recommendations {
		assert.Equal(t, first.Recommendations[i].ProviderID, second.Recommendations[i].ProviderID)
		assert.Equal(t, first.Recommendations[i].Score, second.Recommendations[i].Score)
	}
}

func TestRecommend_FastestExecutionReordersRanking(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := baseRequest()
	req.Objective = model.ObjectiveFastestExecution
	resp, err := engine.Recommend(req, usdinrSnapshot())
	require.NoError(t, err)

	assert.Equal(t, model.ObjectiveFastestExecution, resp.Objective)
	// The treasury desk has the lowest latency and still wins.
	assert.Equal(t, "TREASURY_INTERNAL", resp.Recommendations[0].ProviderID)
}

// ─── Eligibility ─────────────────────────────────────────────────────────────

func TestRecommend_OutsideOperatingHoursExcluded(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := baseRequest()
	req.Timestamp = time.Date(2026, 8, 6, 23, 0, 0, 0, time.UTC) // HDFC closed

	resp, err := engine.Recommend(req, usdinrSnapshot())
	require.NoError(t, err)
	for _, rec := range resp.Recommendations {
		assert.NotEqual(t, "HDFC_LOCAL", rec.ProviderID)
	}
}

func TestRecommend_NoEligibleProvidersDiagnostics(t *testing.T) {
	engine, _ := newTestEngine(t)

	req := baseRequest()
	req.Amount = decimal.NewFromInt(500_000_000) // beyond every limit

	_, err := engine.Recommend(req, usdinrSnapshot())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoEligibleProvider)

	var detail *NoEligibleProviderError
	require.ErrorAs(t, err, &detail)
	assert.NotEmpty(t, detail.Exclusions)
	for provider, reason := range detail.Exclusions {
		assert.NotEmpty(t, reason, "exclusion reason for %s", provider)
	}
}

func TestRecommend_MarketDataProviderNeverRoutes(t *testing.T) {
	engine, _ := newTestEngine(t)

	resp, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	for _, rec := range resp.Recommendations {
		assert.NotEqual(t, refdata.ProviderMarketData, rec.ProviderType)
	}
}

// ─── Rule injection ──────────────────────────────────────────────────────────

func TestRecommend_PreferredProviderBonusFlipsRanking(t *testing.T) {
	engine, ruleEngine := newTestEngine(t)

	require.NoError(t, ruleEngine.Add(rules.Rule{
		RuleID: "PREFER_WISE", RuleName: "prefer wise for small business", RuleType: rules.TypeProviderSelection,
		Priority: 90, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
		Conditions: rules.Conditions{Operator: rules.OpAnd, Criteria: []rules.Criterion{
			{Field: "customer_segment", Operator: rules.CritEquals, Value: "SMALL_BUSINESS"},
			{Field: "routing_objective", Operator: rules.CritEquals, Value: "BEST_RATE"},
		}},
		Provider: &rules.ProviderSelectionAction{PreferredProviders: []string{"WISE"}},
	}))

	req := baseRequest()
	req.Segment = "SMALL_BUSINESS"

	resp, err := engine.Recommend(req, usdinrSnapshot())
	require.NoError(t, err)

	top := resp.Recommendations[0]
	assert.Equal(t, "WISE", top.ProviderID, "the +0.05 bonus closes the gap to the internal desk")
	assert.InDelta(t, 0.05, top.RuleBonus, 0.0001)
	assert.Contains(t, resp.AppliedRules, "PREFER_WISE")
}

func TestRecommend_ExcludedProviderRemoved(t *testing.T) {
	engine, ruleEngine := newTestEngine(t)

	require.NoError(t, ruleEngine.Add(rules.Rule{
		RuleID: "BLOCK_INTERNAL", RuleName: "block internal desk", RuleType: rules.TypeProviderSelection,
		Priority: 90, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
		Conditions: rules.Conditions{Operator: rules.OpAnd, Criteria: []rules.Criterion{
			{Field: "currency_pair", Operator: rules.CritEquals, Value: "USDINR"},
		}},
		Provider: &rules.ProviderSelectionAction{ExcludedProviders: []string{"TREASURY_INTERNAL"}},
	}))

	resp, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	for _, rec := range resp.Recommendations {
		assert.NotEqual(t, "TREASURY_INTERNAL", rec.ProviderID)
	}
}

func TestRecommend_ForceProviderShortCircuits(t *testing.T) {
	engine, ruleEngine := newTestEngine(t)

	require.NoError(t, ruleEngine.Add(rules.Rule{
		RuleID: "FORCE_JPM", RuleName: "force correspondent", RuleType: rules.TypeProviderSelection,
		Priority: 95, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
		Conditions: rules.Conditions{Operator: rules.OpAnd, Criteria: []rules.Criterion{
			{Field: "currency_pair", Operator: rules.CritEquals, Value: "USDINR"},
		}},
		Provider: &rules.ProviderSelectionAction{ForceProvider: "JPM_CORRESPONDENT"},
	}))

	resp, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	require.Len(t, resp.Recommendations, 1)
	assert.Equal(t, "JPM_CORRESPONDENT", resp.Recommendations[0].ProviderID)
}

func TestRecommend_ObjectiveOverrideByRule(t *testing.T) {
	engine, ruleEngine := newTestEngine(t)

	require.NoError(t, ruleEngine.Add(rules.Rule{
		RuleID: "SPEED_FIRST", RuleName: "speed first for big tickets", RuleType: rules.TypeProviderSelection,
		Priority: 80, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
		Conditions: rules.Conditions{Operator: rules.OpAnd, Criteria: []rules.Criterion{
			{Field: "amount", Operator: rules.CritGE, Value: 100000.0},
		}},
		Provider: &rules.ProviderSelectionAction{RoutingObjectiveOverride: "FASTEST_EXECUTION"},
	}))

	resp, err := engine.Recommend(baseRequest(), usdinrSnapshot())
	require.NoError(t, err)
	assert.Equal(t, model.ObjectiveFastestExecution, resp.Objective)
}

// ─── Treasury adjustments ────────────────────────────────────────────────────

func TestAdjustedTreasuryRate(t *testing.T) {
	registry, err := refdata.NewRegistry(t.TempDir(), nil)
	require.NoError(t, err)
	tier := registry.Snapshot().Tiers["GOLD"]

	rate := usdinrSnapshot().Rate
	adjusted := AdjustedTreasuryRate(rate, model.SideSell, tier, true)

	// LONG/SELL bias −3 and spread reduction −5: 8 bps back to the customer.
	expected := rate.Ask.Mul(decimal.NewFromInt(1).Add(decimal.RequireFromString("0.0008"))).Round(6)
	assert.True(t, adjusted.Equal(expected), "adjusted %s, expected %s", adjusted, expected)
}

func TestRecommend_StaleRateMarksIndicative(t *testing.T) {
	engine, _ := newTestEngine(t)

	res := usdinrSnapshot()
	res.Stale = true
	resp, err := engine.Recommend(baseRequest(), res)
	require.NoError(t, err)
	assert.Equal(t, model.RateIndicative, resp.RateType)
}
