package rules

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(filepath.Join(t.TempDir(), "rules.json"), "UTC", nil)
	require.NoError(t, err)
	return e
}

func providerRule(id string, priority int, preferred ...string) Rule {
	return Rule{
		RuleID:    id,
		RuleName:  id,
		RuleType:  TypeProviderSelection,
		Priority:  priority,
		Enabled:   true,
		ValidFrom: time.Now().Add(-time.Hour),
		Conditions: Conditions{
			Operator: OpAnd,
			Criteria: []Criterion{{Field: "customer_segment", Operator: CritEquals, Value: "SMALL_BUSINESS"}},
		},
		Provider: &ProviderSelectionAction{PreferredProviders: preferred},
	}
}

// ─── Loading ─────────────────────────────────────────────────────────────────

func TestEngine_RejectsUnknownActionFields(t *testing.T) {
	doc := `{"rules":[{
		"rule_id": "R1", "rule_name": "bad", "rule_type": "MARGIN_ADJUSTMENT",
		"priority": 10, "enabled": true, "valid_from": "2025-01-01T00:00:00Z",
		"conditions": {"operator": "AND", "criteria": [{"field": "amount", "operator": "GT", "value": 0}]},
		"actions": {"additional_margin_bps": 10, "surprise_field": true}
	}]}`

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := NewEngine(path, "UTC", nil)
	require.Error(t, err)
}

func TestEngine_RejectsUnknownRuleType(t *testing.T) {
	doc := `{"rules":[{
		"rule_id": "R1", "rule_name": "bad", "rule_type": "SETTLEMENT_PREFERENCE",
		"priority": 10, "enabled": true, "valid_from": "2025-01-01T00:00:00Z",
		"conditions": {"operator": "AND", "criteria": [{"field": "amount", "operator": "GT", "value": 0}]},
		"actions": {}
	}]}`

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := NewEngine(path, "UTC", nil)
	require.Error(t, err)
}

func TestEngine_ReloadIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Add(providerRule("R1", 50, "WISE")))

	ctx := Context{"customer_segment": "SMALL_BUSINESS"}
	first := e.Match(TypeProviderSelection, ctx, time.Now())

	require.NoError(t, e.Reload())
	require.NoError(t, e.Reload())

	second := e.Match(TypeProviderSelection, Context{"customer_segment": "SMALL_BUSINESS"}, time.Now())
	require.Len(t, second, len(first))
	assert.Equal(t, first[0].RuleID, second[0].RuleID)
}

// ─── Matching ────────────────────────────────────────────────────────────────

func TestEngine_MatchSortsByPriorityDesc(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Add(providerRule("LOW", 10, "A")))
	require.NoError(t, e.Add(providerRule("HIGH", 90, "B")))

	matched := e.Match(TypeProviderSelection, Context{"customer_segment": "SMALL_BUSINESS"}, time.Now())
	require.Len(t, matched, 2)
	assert.Equal(t, "HIGH", matched[0].RuleID)
	assert.Equal(t, "LOW", matched[1].RuleID)
}

func TestEngine_ValidityWindowFiltered(t *testing.T) {
	e := newTestEngine(t)

	expired := providerRule("EXPIRED", 50, "A")
	until := time.Now().Add(-time.Minute)
	expired.ValidFrom = time.Now().Add(-time.Hour)
	expired.ValidUntil = &until
	require.NoError(t, e.Add(expired))

	matched := e.Match(TypeProviderSelection, Context{"customer_segment": "SMALL_BUSINESS"}, time.Now())
	assert.Empty(t, matched)
}

func TestEngine_DisabledRulesSkipped(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Add(providerRule("R1", 50, "A")))

	enabled, err := e.Toggle("R1")
	require.NoError(t, err)
	assert.False(t, enabled)

	matched := e.Match(TypeProviderSelection, Context{"customer_segment": "SMALL_BUSINESS"}, time.Now())
	assert.Empty(t, matched)
}

// ─── Decision folding ────────────────────────────────────────────────────────

func TestEngine_ProviderDecisionFolds(t *testing.T) {
	e := newTestEngine(t)

	r1 := providerRule("R1", 90, "WISE")
	r1.Provider.ExcludedProviders = []string{"XE_DEALER"}
	require.NoError(t, e.Add(r1))

	r2 := providerRule("R2", 50, "WISE", "HDFC_LOCAL")
	r2.Provider.RoutingObjectiveOverride = "BEST_RATE"
	require.NoError(t, e.Add(r2))

	d := e.ProviderDecision(Context{"customer_segment": "SMALL_BUSINESS"}, time.Now())
	assert.Equal(t, 2, d.PreferredCounts["WISE"], "bonus accumulates per rule listing the provider")
	assert.Equal(t, 1, d.PreferredCounts["HDFC_LOCAL"])
	assert.True(t, d.Excluded["XE_DEALER"])
	assert.Equal(t, "BEST_RATE", d.ObjectiveOverride)
}

func TestEngine_MarginDecisionFolds(t *testing.T) {
	e := newTestEngine(t)

	mk := func(id string, priority int, act MarginAdjustmentAction) Rule {
		return Rule{
			RuleID: id, RuleName: id, RuleType: TypeMarginAdjustment,
			Priority: priority, Enabled: true, ValidFrom: time.Now().Add(-time.Hour),
			Conditions: Conditions{Operator: OpAnd, Criteria: []Criterion{
				{Field: "currency_pair", Operator: CritEquals, Value: "USDINR"},
			}},
			Margin: &act,
		}
	}

	base := 40.0
	require.NoError(t, e.Add(mk("HIGH", 90, MarginAdjustmentAction{BaseMarginOverride: &base, AdditionalMarginBps: 5})))
	require.NoError(t, e.Add(mk("LOW", 10, MarginAdjustmentAction{AdditionalMarginBps: 10})))

	d := e.MarginDecision(Context{"currency_pair": "USDINR"}, time.Now())
	require.NotNil(t, d.BaseOverride)
	assert.Equal(t, 40.0, *d.BaseOverride)
	assert.Equal(t, 15.0, d.AdditionalBps, "additional margins accumulate across rules")
}

// ─── CRUD ────────────────────────────────────────────────────────────────────

func TestEngine_AddDuplicateFails(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Add(providerRule("R1", 50, "A")))

	err := e.Add(providerRule("R1", 60, "B"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestEngine_DeleteUnknownFails(t *testing.T) {
	e := newTestEngine(t)
	err := e.Delete("NOPE")
	require.Error(t, err)
}

func TestEngine_PersistSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	e, err := NewEngine(path, "UTC", nil)
	require.NoError(t, err)
	require.NoError(t, e.Add(providerRule("R1", 50, "WISE")))

	reopened, err := NewEngine(path, "UTC", nil)
	require.NoError(t, err)
	assert.Len(t, reopened.List(TypeProviderSelection), 1)
}
