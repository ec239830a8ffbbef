package rules

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func leafCrit(field string, op CriterionOperator, value any) Criterion {
	return Criterion{Field: field, Operator: op, Value: value}
}

func listCrit(field string, op CriterionOperator, values ...any) Criterion {
	return Criterion{Field: field, Operator: op, Values: values}
}

// ─── Comparison operators ────────────────────────────────────────────────────

func TestEvaluator_Equals(t *testing.T) {
	ctx := Context{"customer_segment": "SMALL_BUSINESS", "amount": 50000.0}

	assert.True(t, evalCriterion(leafCrit("customer_segment", CritEquals, "SMALL_BUSINESS"), ctx))
	assert.False(t, evalCriterion(leafCrit("customer_segment", CritEquals, "RETAIL"), ctx))
	// Numeric equality crosses JSON/decimal type boundaries.
	assert.True(t, evalCriterion(leafCrit("amount", CritEquals, 50000), ctx))
}

func TestEvaluator_NumericComparisons(t *testing.T) {
	ctx := Context{"amount": decimal.NewFromInt(75000)}

	assert.True(t, evalCriterion(leafCrit("amount", CritGT, 50000.0), ctx))
	assert.True(t, evalCriterion(leafCrit("amount", CritGE, 75000.0), ctx))
	assert.False(t, evalCriterion(leafCrit("amount", CritLT, 75000.0), ctx))
	assert.True(t, evalCriterion(leafCrit("amount", CritLE, 75000.0), ctx))
}

func TestEvaluator_Between(t *testing.T) {
	ctx := Context{"amount": 50000.0}

	assert.True(t, evalCriterion(listCrit("amount", CritBetween, 10000.0, 100000.0), ctx))
	// BETWEEN is inclusive on both ends.
	assert.True(t, evalCriterion(listCrit("amount", CritBetween, 50000.0, 100000.0), ctx))
	assert.True(t, evalCriterion(listCrit("amount", CritBetween, 10000.0, 50000.0), ctx))
	assert.False(t, evalCriterion(listCrit("amount", CritBetween, 60000.0, 100000.0), ctx))
	// Malformed bounds never match.
	assert.False(t, evalCriterion(listCrit("amount", CritBetween, 10000.0), ctx))
}

func TestEvaluator_SetOperators(t *testing.T) {
	ctx := Context{"currency_pair": "USDINR"}

	assert.True(t, evalCriterion(listCrit("currency_pair", CritIn, "USDINR", "EURINR"), ctx))
	assert.False(t, evalCriterion(listCrit("currency_pair", CritIn, "EURUSD"), ctx))
	assert.True(t, evalCriterion(listCrit("currency_pair", CritNotIn, "EURUSD"), ctx))
	assert.False(t, evalCriterion(listCrit("currency_pair", CritNotIn, "USDINR"), ctx))
}

func TestEvaluator_StringOperators(t *testing.T) {
	ctx := Context{"currency_pair": "USDINR"}

	assert.True(t, evalCriterion(leafCrit("currency_pair", CritContains, "DIN"), ctx))
	assert.True(t, evalCriterion(leafCrit("currency_pair", CritStartsWith, "USD"), ctx))
	assert.True(t, evalCriterion(leafCrit("currency_pair", CritEndsWith, "INR"), ctx))
	assert.False(t, evalCriterion(leafCrit("currency_pair", CritStartsWith, "INR"), ctx))
}

// ─── Missing-field semantics ─────────────────────────────────────────────────

func TestEvaluator_MissingFieldCollapsedThreeValuedLogic(t *testing.T) {
	ctx := Context{}

	// Missing fields are false for every operator...
	assert.False(t, evalCriterion(leafCrit("office", CritEquals, "LONDON"), ctx))
	assert.False(t, evalCriterion(leafCrit("amount", CritGT, 0.0), ctx))
	assert.False(t, evalCriterion(listCrit("office", CritIn, "LONDON"), ctx))
	// ...except the negative ones, which hold vacuously.
	assert.True(t, evalCriterion(leafCrit("office", CritNotEquals, "LONDON"), ctx))
	assert.True(t, evalCriterion(listCrit("office", CritNotIn, "LONDON"), ctx))
}

// ─── Temporal operator ───────────────────────────────────────────────────────

func TestEvaluator_OutsideHours(t *testing.T) {
	inside := Context{"time_of_day": "10:30"}
	outside := Context{"time_of_day": "22:15"}
	boundary := Context{"time_of_day": "17:00"}

	crit := listCrit("time_of_day", CritOutsideHours, "09:00", "17:00")
	assert.False(t, evalCriterion(crit, inside))
	assert.True(t, evalCriterion(crit, outside))
	// Half-open window: the end bound is already outside.
	assert.True(t, evalCriterion(crit, boundary))
}

// ─── Condition groups ────────────────────────────────────────────────────────

func TestEvaluator_NestedGroups(t *testing.T) {
	ctx := Context{"customer_segment": "SMALL_BUSINESS", "amount": 5000.0, "office": "MUMBAI"}

	conditions := Conditions{
		Operator: OpAnd,
		Criteria: []Criterion{
			leafCrit("customer_segment", CritEquals, "SMALL_BUSINESS"),
			{Group: &Conditions{
				Operator: OpOr,
				Criteria: []Criterion{
					leafCrit("amount", CritGT, 100000.0),
					leafCrit("office", CritEquals, "MUMBAI"),
				},
			}},
		},
	}

	assert.True(t, evalConditions(conditions, ctx))

	ctx["office"] = "LONDON"
	assert.False(t, evalConditions(conditions, ctx))
}
