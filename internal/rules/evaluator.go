package rules

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Context is the flat request context rules evaluate against. Typical
// keys: customer_segment, customer_tier, currency_pair, currency_category,
// amount, amount_tier, office, time_of_day, routing_objective, direction.
type Context map[string]any

// evalConditions evaluates a condition group against a context. A missing
// field makes a criterion false, except NOT_EQUALS and NOT_IN which hold
// vacuously (three-valued logic collapsed to two).
func evalConditions(c Conditions, ctx Context) bool {
	switch c.Operator {
	case OpAnd:
		for _, crit := range c.Criteria {
			if !evalCriterion(crit, ctx) {
				return false
			}
		}
		return true
	case OpOr:
		for _, crit := range c.Criteria {
			if evalCriterion(crit, ctx) {
				return true
			}
		}
		return false
	}
	return false
}

func evalCriterion(c Criterion, ctx Context) bool {
	if c.Group != nil {
		return evalConditions(*c.Group, ctx)
	}

	val, present := ctx[c.Field]
	if !present || val == nil {
		return c.Operator == CritNotEquals || c.Operator == CritNotIn
	}

	switch c.Operator {
	case CritEquals:
		return looseEqual(val, c.Value)
	case CritNotEquals:
		return !looseEqual(val, c.Value)
	case CritIn:
		for _, v := range c.Values {
			if looseEqual(val, v) {
				return true
			}
		}
		return false
	case CritNotIn:
		for _, v := range c.Values {
			if looseEqual(val, v) {
				return false
			}
		}
		return true
	case CritGT:
		return compareNumeric(val, c.Value, func(a, b float64) bool { return a > b })
	case CritGE:
		return compareNumeric(val, c.Value, func(a, b float64) bool { return a >= b })
	case CritLT:
		return compareNumeric(val, c.Value, func(a, b float64) bool { return a < b })
	case CritLE:
		return compareNumeric(val, c.Value, func(a, b float64) bool { return a <= b })
	case CritBetween:
		if len(c.Values) != 2 {
			return false
		}
		return compareNumeric(val, c.Values[0], func(a, b float64) bool { return a >= b }) &&
			compareNumeric(val, c.Values[1], func(a, b float64) bool { return a <= b })
	case CritContains:
		return strings.Contains(asString(val), asString(c.Value))
	case CritStartsWith:
		return strings.HasPrefix(asString(val), asString(c.Value))
	case CritEndsWith:
		return strings.HasSuffix(asString(val), asString(c.Value))
	case CritOutsideHours:
		return outsideHours(val, c.Values)
	}
	return false
}

// outsideHours returns true when the context time-of-day falls outside the
// half-open [start, end) window given as values ["hh:mm", "hh:mm"].
func outsideHours(val any, values []any) bool {
	if len(values) != 2 {
		return false
	}
	current, ok := minutesOfDay(val)
	if !ok {
		return false
	}
	start, okS := minutesOfDay(values[0])
	end, okE := minutesOfDay(values[1])
	if !okS || !okE {
		return false
	}

	var inside bool
	if start <= end {
		inside = current >= start && current < end
	} else {
		// Overnight window, e.g. 22:00 → 06:00.
		inside = current >= start || current < end
	}
	return !inside
}

func minutesOfDay(v any) (int, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.Hour()*60 + t.Minute(), true
	case string:
		parsed, err := time.Parse("15:04", t)
		if err != nil {
			return 0, false
		}
		return parsed.Hour()*60 + parsed.Minute(), true
	}
	return 0, false
}

// looseEqual compares a context value against a rule value, tolerating the
// numeric-type mismatches that JSON decoding introduces.
func looseEqual(a, b any) bool {
	if fa, okA := toFloat(a); okA {
		if fb, okB := toFloat(b); okB {
			return fa == fb
		}
	}
	return asString(a) == asString(b)
}

func compareNumeric(a, b any, cmp func(float64, float64) bool) bool {
	fa, okA := toFloat(a)
	fb, okB := toFloat(b)
	if !okA || !okB {
		return false
	}
	return cmp(fa, fb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	case decimal.Decimal:
		return s.String()
	case nil:
		return ""
	}
	return ""
}
