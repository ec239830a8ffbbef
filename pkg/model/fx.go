package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the transaction direction from the customer's perspective.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string, defaulting to SELL.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL", "":
		return SideSell, nil
	}
	return "", fmt.Errorf("side must be BUY or SELL, got %q", s)
}

// RailType classifies a currency onto its settlement rail.
type RailType string

const (
	RailFiat       RailType = "FIAT"
	RailCBDC       RailType = "CBDC"
	RailStablecoin RailType = "STABLECOIN"
)

// Objective names a weight vector over (rate, reliability, speed, stp).
type Objective string

const (
	ObjectiveBestRate         Objective = "BEST_RATE"
	ObjectiveOptimum          Objective = "OPTIMUM"
	ObjectiveFastestExecution Objective = "FASTEST_EXECUTION"
	ObjectiveMaxSTP           Objective = "MAX_STP"
)

// Weights is the scoring weight vector for an objective.
type Weights struct {
	Rate        float64
	Reliability float64
	Speed       float64
	STP         float64
}

// ObjectiveWeights returns the weight vector for an objective.
// Unknown objectives fall back to OPTIMUM.
func ObjectiveWeights(o Objective) Weights {
	switch o {
	case ObjectiveBestRate:
		return Weights{Rate: 0.70, Reliability: 0.15, Speed: 0.10, STP: 0.05}
	case ObjectiveFastestExecution:
		return Weights{Rate: 0.20, Reliability: 0.25, Speed: 0.45, STP: 0.10}
	case ObjectiveMaxSTP:
		return Weights{Rate: 0.25, Reliability: 0.20, Speed: 0.15, STP: 0.40}
	default:
		return Weights{Rate: 0.40, Reliability: 0.25, Speed: 0.20, STP: 0.15}
	}
}

// ValidObjective reports whether o is one of the four known objectives.
func ValidObjective(o Objective) bool {
	switch o {
	case ObjectiveBestRate, ObjectiveOptimum, ObjectiveFastestExecution, ObjectiveMaxSTP:
		return true
	}
	return false
}

// TreasuryPosition is the desk's net position hint for a pair.
type TreasuryPosition string

const (
	PositionLong    TreasuryPosition = "LONG"
	PositionShort   TreasuryPosition = "SHORT"
	PositionNeutral TreasuryPosition = "NEUTRAL"
)

// PositionBiasBps returns the rate bias in basis points for a treasury
// position and side. Positive bps worsen the rate for the customer.
func PositionBiasBps(p TreasuryPosition, side Side) int {
	switch p {
	case PositionLong:
		if side == SideSell {
			return -3
		}
		return 3
	case PositionShort:
		if side == SideSell {
			return 3
		}
		return -3
	}
	return 0
}

// PairKey is the six-letter concatenated pair key, e.g. "USDINR".
// Both codes are upper-cased, so a digital code such as "e-INR" becomes "E-INR".
func PairKey(source, target string) string {
	return strings.ToUpper(strings.TrimSpace(source)) + strings.ToUpper(strings.TrimSpace(target))
}

// TreasuryRate is the desk's rate snapshot entry for one pair.
type TreasuryRate struct {
	Pair            string           `json:"pair"`
	Bid             decimal.Decimal  `json:"bid"`
	Ask             decimal.Decimal  `json:"ask"`
	Mid             decimal.Decimal  `json:"mid"`
	MinMarginBps    int              `json:"min_margin_bps"`
	TargetMarginBps int              `json:"target_margin_bps"`
	MaxExposure     decimal.Decimal  `json:"max_exposure"`
	CurrentExposure decimal.Decimal  `json:"current_exposure"`
	Position        TreasuryPosition `json:"position"`
	ValidUntil      time.Time        `json:"valid_until"`
}

// Invert returns the inverse-pair view of the rate: 1/rate with bid and
// ask swapped so bid <= mid <= ask still holds, and the position flipped.
func (r TreasuryRate) Invert(pair string) TreasuryRate {
	one := decimal.NewFromInt(1)
	inv := r
	inv.Pair = pair
	inv.Bid = one.Div(r.Ask)
	inv.Ask = one.Div(r.Bid)
	inv.Mid = one.Div(r.Mid)
	switch r.Position {
	case PositionLong:
		inv.Position = PositionShort
	case PositionShort:
		inv.Position = PositionLong
	}
	return inv
}

// ExposurePct returns the current exposure as a percentage of the limit.
func (r TreasuryRate) ExposurePct() float64 {
	if r.MaxExposure.IsZero() {
		return 0
	}
	pct, _ := r.CurrentExposure.Div(r.MaxExposure).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

// RateType distinguishes firm quotes from indicative ones (stale cache,
// defaulted inputs).
type RateType string

const (
	RateFirm       RateType = "FIRM"
	RateIndicative RateType = "INDICATIVE"
)

// ApplyBps folds total basis points into a base rate with the sign chosen
// to disadvantage the customer: SELL receives less, BUY pays more.
func ApplyBps(base decimal.Decimal, totalBps decimal.Decimal, side Side) decimal.Decimal {
	factor := totalBps.Div(decimal.NewFromInt(10000))
	one := decimal.NewFromInt(1)
	if side == SideSell {
		return base.Mul(one.Sub(factor))
	}
	return base.Mul(one.Add(factor))
}
