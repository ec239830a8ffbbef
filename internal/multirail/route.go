package multirail

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Leg is one hop of a multi-rail route.
type Leg struct {
	From              string  `json:"from"`
	To                string  `json:"to"`
	Mechanism         string  `json:"mechanism"`
	Ref               string  `json:"ref"` // provider, rail, ramp or registry reference
	FeeBps            int     `json:"fee_bps"`
	SettlementSeconds int     `json:"settlement_seconds"`
	STPCapable        bool    `json:"stp_capable"`
	Reliability       float64 `json:"-"`
	Regulated         bool    `json:"-"`
}

// Annotations carry route qualifiers surfaced to callers.
type Annotations struct {
	STPEligible  bool     `json:"stp_eligible"`
	MBridge      bool     `json:"mbridge,omitempty"`
	Experimental bool     `json:"experimental,omitempty"`
	Status       string   `json:"status,omitempty"`
	Benefits     []string `json:"benefits,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// Route is one materialised conversion path.
type Route struct {
	RouteID           string          `json:"route_id"`
	Template          string          `json:"template"`
	Rail              model.RailType  `json:"rail"`
	Legs              []Leg           `json:"legs"`
	Rate              decimal.Decimal `json:"rate"`
	EffectiveAmount   decimal.Decimal `json:"effective_amount"`
	FeeBps            int             `json:"fee_bps"`
	TotalCostBps      int             `json:"total_cost_bps"`
	SettlementSeconds int             `json:"settlement_seconds"`
	Regulated         bool            `json:"regulated"`
	RateScore         float64         `json:"rate_score"`
	ReliabilityScore  float64         `json:"reliability_score"`
	SpeedScore        float64         `json:"speed_score"`
	STPScore          float64         `json:"stp_score"`
	Score             float64         `json:"score"`
	Annotations       Annotations     `json:"annotations"`
}

// finalize derives the aggregate fields from the legs and computes the
// sub-scores. Settlement time is the maximum leg time: the engine does
// not model pipelining, and the slowest leg dominates.
func (r *Route) finalize(weights model.Weights) {
	fee := 0
	settle := 0
	reliability := 1.0
	allSTP := true
	regulated := true
	for _, leg := range r.Legs {
		fee += leg.FeeBps
		if leg.SettlementSeconds > settle {
			settle = leg.SettlementSeconds
		}
		reliability *= leg.Reliability
		if !leg.STPCapable {
			allSTP = false
		}
		if !leg.Regulated {
			regulated = false
		}
	}
	if settle <= 0 {
		settle = 1
	}

	r.FeeBps = fee
	r.TotalCostBps = fee
	r.SettlementSeconds = settle
	r.Regulated = regulated

	r.RateScore = 1 - math.Min(1, float64(fee)/100)
	r.ReliabilityScore = reliability
	r.SpeedScore = 1 - math.Min(1, float64(settle)/86400)
	r.STPScore = 0.3
	if allSTP {
		r.STPScore = 1
	}
	r.Annotations.STPEligible = allSTP

	r.Score = weights.Rate*r.RateScore +
		weights.Reliability*r.ReliabilityScore +
		weights.Speed*r.SpeedScore +
		weights.STP*r.STPScore
}

// scoreTolerance is the band inside which two routes are considered tied;
// the regulated route wins, and on a further tie the simpler one.
const scoreTolerance = 0.005

// better orders routes for ranking.
func better(a, b Route) bool {
	if math.Abs(a.Score-b.Score) <= scoreTolerance {
		if a.Regulated != b.Regulated {
			return a.Regulated
		}
		if len(a.Legs) != len(b.Legs) {
			return len(a.Legs) < len(b.Legs)
		}
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.RouteID < b.RouteID
}
