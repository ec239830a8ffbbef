package routing

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/rules"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// NoEligibleProviderError reports why every candidate was excluded.
type NoEligibleProviderError struct {
	Pair       string
	Exclusions map[string]string // provider_id → reason
}

func (e *NoEligibleProviderError) Error() string {
	return fmt.Sprintf("no eligible provider for %s (%d candidates excluded)", e.Pair, len(e.Exclusions))
}

// ErrNoEligibleProvider is the sentinel for errors.Is matching.
var ErrNoEligibleProvider = errors.New("no eligible provider")

func (e *NoEligibleProviderError) Is(target error) bool {
	return target == ErrNoEligibleProvider
}

// Request describes one fiat routing enquiry.
type Request struct {
	SourceCurrency string
	TargetCurrency string
	Amount         decimal.Decimal
	Side           model.Side
	Objective      model.Objective
	CustomerID     string
	Tier           string
	Segment        string
	Timestamp      time.Time // operating-hours and rule evaluation reference
}

// Recommendation is one scored provider route.
type Recommendation struct {
	ProviderID        string               `json:"provider_id"`
	ProviderName      string               `json:"provider_name"`
	ProviderType      refdata.ProviderType `json:"provider_type"`
	EffectiveRate     decimal.Decimal      `json:"effective_rate"`
	TargetAmount      decimal.Decimal      `json:"target_amount"`
	AdjustedMarkupBps decimal.Decimal      `json:"adjusted_markup_bps"`
	TotalBps          decimal.Decimal      `json:"total_bps"`
	RateScore         float64              `json:"rate_score"`
	ReliabilityScore  float64              `json:"reliability_score"`
	SpeedScore        float64              `json:"speed_score"`
	STPScore          float64              `json:"stp_score"`
	RuleBonus         float64              `json:"rule_bonus,omitempty"`
	Score             float64              `json:"score"`
	SettlementHours   int                  `json:"settlement_hours"`
	STPEnabled        bool                 `json:"stp_enabled"`
}

// TreasurySummary is the desk-position view attached to a response.
type TreasurySummary struct {
	Position             model.TreasuryPosition `json:"position"`
	ExposurePct          float64                `json:"exposure_pct"`
	PositionBiasBps      int                    `json:"position_bias_bps"`
	CanExecuteInternally bool                   `json:"can_execute_internally"`
}

// Response is a ranked provider recommendation.
type Response struct {
	RequestID        string           `json:"request_id"`
	Pair             string           `json:"pair"`
	Side             model.Side       `json:"side"`
	Objective        model.Objective  `json:"objective"`
	Recommendations  []Recommendation `json:"recommendations"` // head is the recommendation
	Treasury         TreasurySummary  `json:"treasury"`
	STPEligible      bool             `json:"stp_eligible"`
	RequiresApproval bool             `json:"requires_approval"`
	ApprovalReason   string           `json:"approval_reason,omitempty"`
	Warnings         []string         `json:"warnings,omitempty"`
	RateType         model.RateType   `json:"rate_type"`
	AppliedRules     []string         `json:"applied_rules,omitempty"`
}

// Engine scores eligible providers for a fiat pair under an objective.
type Engine struct {
	registry *refdata.Registry
	rules    *rules.Engine
	logger   *zap.Logger
}

// NewEngine creates a smart routing engine.
func NewEngine(registry *refdata.Registry, ruleEngine *rules.Engine, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{registry: registry, rules: ruleEngine, logger: logger}
}

// Recommend ranks the eligible providers for the request against the
// supplied rate snapshot entry. The ranking is deterministic for a given
// input and snapshot generation.
func (e *Engine) Recommend(req Request, res rates.Result) (*Response, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.EngineDuration, start, "routing")

	snap := e.registry.Snapshot()
	pair := model.PairKey(req.SourceCurrency, req.TargetCurrency)
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	tier, tierKnown := snap.Tiers[req.Tier]
	objective := req.Objective
	if !model.ValidObjective(objective) {
		objective = model.ObjectiveOptimum
		if tierKnown && model.ValidObjective(tier.DefaultObjective) {
			objective = tier.DefaultObjective
		}
	}

	// Provider-selection rules are consulted before scoring.
	var decision rules.ProviderDecision
	if e.rules != nil {
		decision = e.rules.ProviderDecision(rules.Context{
			"customer_id":       req.CustomerID,
			"customer_tier":     req.Tier,
			"customer_segment":  req.Segment,
			"currency_pair":     pair,
			"currency_category": string(snap.PairCategory(req.SourceCurrency, req.TargetCurrency)),
			"amount":            req.Amount,
			"amount_tier":       snap.AmountTierFor(req.Amount).ID,
			"routing_objective": string(objective),
			"direction":         string(req.Side),
			"time_of_day":       ts.Format("15:04"),
		}, ts)
		if decision.ObjectiveOverride != "" && model.ValidObjective(model.Objective(decision.ObjectiveOverride)) {
			objective = model.Objective(decision.ObjectiveOverride)
		}
	}

	eligible, exclusions := e.filterEligible(snap, req, pair, ts, tier, tierKnown, decision)

	if decision.ForceProvider != "" {
		for _, p := range eligible {
			if p.ID == decision.ForceProvider {
				eligible = []refdata.Provider{p}
				break
			}
		}
	}

	if len(eligible) == 0 {
		metrics.IncRouting(string(objective), "no_route")
		return nil, &NoEligibleProviderError{Pair: pair, Exclusions: exclusions}
	}

	// Priority tiers see internal liquidity first; the stable presort
	// fixes the order ties are resolved in.
	if tierKnown && tier.PriorityRouting {
		sort.SliceStable(eligible, func(i, j int) bool {
			iInternal := eligible[i].Type == refdata.ProviderInternal
			jInternal := eligible[j].Type == refdata.ProviderInternal
			if iInternal != jInternal {
				return iInternal
			}
			return eligible[i].Reliability > eligible[j].Reliability
		})
	}

	weights := model.ObjectiveWeights(objective)
	biasBps := model.PositionBiasBps(res.Rate.Position, req.Side)

	var recs []Recommendation
	var warnings []string
	for _, p := range eligible {
		rec, ok := e.score(p, req, res.Rate, tier, tierKnown, biasBps, weights, decision)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("provider %s dropped: non-finite score", p.ID))
			metrics.IncError("routing", "nan_score")
			e.logger.Warn("routing.provider_score_invalid", zap.String("provider", p.ID))
			continue
		}
		recs = append(recs, rec)
	}

	if len(recs) == 0 {
		metrics.IncRouting(string(objective), "no_route")
		return nil, &NoEligibleProviderError{Pair: pair, Exclusions: exclusions}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ReliabilityScore != b.ReliabilityScore {
			return a.ReliabilityScore > b.ReliabilityScore
		}
		if !a.AdjustedMarkupBps.Equal(b.AdjustedMarkupBps) {
			return a.AdjustedMarkupBps.LessThan(b.AdjustedMarkupBps)
		}
		if a.SettlementHours != b.SettlementHours {
			return a.SettlementHours < b.SettlementHours
		}
		return a.ProviderID < b.ProviderID
	})

	top := recs[0]
	stpEligible, requiresApproval, reason := e.checkSTP(top, req, tier, tierKnown)

	exposure := res.Rate.ExposurePct()
	if exposure > 70 {
		warnings = append(warnings, fmt.Sprintf("treasury exposure at %.1f%% - approaching limit", exposure))
	}
	if len(recs) < 2 {
		warnings = append(warnings, "limited provider options available for this currency pair")
	}
	if top.SettlementHours > 24 {
		warnings = append(warnings, fmt.Sprintf("settlement may take up to %d hours", top.SettlementHours))
	}

	rateType := model.RateFirm
	if res.Stale {
		rateType = model.RateIndicative
	}

	metrics.IncRouting(string(objective), "ok")
	return &Response{
		RequestID:       fmt.Sprintf("RT-%s", strings.ToUpper(uuid.NewString()[:12])),
		Pair:            pair,
		Side:            req.Side,
		Objective:       objective,
		Recommendations: recs,
		Treasury: TreasurySummary{
			Position:             res.Rate.Position,
			ExposurePct:          exposure,
			PositionBiasBps:      biasBps,
			CanExecuteInternally: exposure < 90,
		},
		STPEligible:      stpEligible,
		RequiresApproval: requiresApproval,
		ApprovalReason:   reason,
		Warnings:         warnings,
		RateType:         rateType,
		AppliedRules:     decision.MatchedIDs,
	}, nil
}

func (e *Engine) filterEligible(
	snap *refdata.Snapshot,
	req Request,
	pair string,
	ts time.Time,
	tier refdata.Tier,
	tierKnown bool,
	decision rules.ProviderDecision,
) ([]refdata.Provider, map[string]string) {
	exclusions := make(map[string]string)
	var eligible []refdata.Provider

	for _, p := range snap.ProviderList() {
		switch {
		case !p.IsActive:
			exclusions[p.ID] = "provider inactive"
		case p.Type == refdata.ProviderMarketData:
			exclusions[p.ID] = "market data only"
		case !p.SupportsPair(pair):
			exclusions[p.ID] = "pair not supported"
		case !p.OperatingHours.Contains(ts):
			exclusions[p.ID] = "outside operating hours"
		case req.Amount.LessThan(p.MinAmount):
			exclusions[p.ID] = "below provider minimum"
		case p.DailyLimit.GreaterThan(decimal.Zero) && req.Amount.GreaterThan(p.DailyLimit):
			exclusions[p.ID] = "above provider daily limit"
		case decision.Excluded[p.ID]:
			exclusions[p.ID] = "excluded by rule"
		case tierKnown && len(tier.ProvidersAllowed) > 0 && !contains(tier.ProvidersAllowed, p.ID):
			exclusions[p.ID] = "not in tier allowed list"
		case tierKnown && tier.MaxTransaction.GreaterThan(decimal.Zero) && req.Amount.GreaterThan(tier.MaxTransaction):
			exclusions[p.ID] = "above tier transaction limit"
		default:
			eligible = append(eligible, p)
		}
	}
	return eligible, exclusions
}

// score applies the effective-rate composition and the four sub-scores.
// Adjustment order: position bias, provider markup, tier spread
// reduction, tier markup discount on the markup component.
func (e *Engine) score(
	p refdata.Provider,
	req Request,
	rate model.TreasuryRate,
	tier refdata.Tier,
	tierKnown bool,
	biasBps int,
	weights model.Weights,
	decision rules.ProviderDecision,
) (Recommendation, bool) {
	base := rate.Ask
	if req.Side == model.SideBuy {
		base = rate.Bid
	}

	markup := decimal.NewFromInt(int64(p.MarkupBps))
	spreadReduction := decimal.Zero
	if tierKnown {
		markup = markup.Mul(decimal.NewFromFloat(1 - tier.MarkupDiscountPct/100))
		spreadReduction = decimal.NewFromInt(int64(tier.SpreadReductionBps))
	}

	totalBps := decimal.NewFromInt(int64(biasBps)).Add(markup).Sub(spreadReduction)
	effective := model.ApplyBps(base, totalBps, req.Side).Round(6)

	var targetAmount decimal.Decimal
	if req.Side == model.SideSell {
		targetAmount = req.Amount.Mul(effective).Round(2)
	} else {
		targetAmount = req.Amount.Div(effective).Round(2)
	}

	adjMarkup, _ := markup.Float64()
	rateScore := 1 - math.Min(1, adjMarkup/100)
	speedScore := 1 - math.Min(1, float64(p.AvgLatencyMS)/500)
	stpScore := 0.3
	if p.STPEnabled {
		stpScore = 1
	}

	score := weights.Rate*rateScore +
		weights.Reliability*p.Reliability +
		weights.Speed*speedScore +
		weights.STP*stpScore

	bonus := 0.05 * float64(decision.PreferredCounts[p.ID])
	score += bonus

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Recommendation{}, false
	}

	return Recommendation{
		ProviderID:        p.ID,
		ProviderName:      p.Name,
		ProviderType:      p.Type,
		EffectiveRate:     effective,
		TargetAmount:      targetAmount,
		AdjustedMarkupBps: markup,
		TotalBps:          totalBps,
		RateScore:         rateScore,
		ReliabilityScore:  p.Reliability,
		SpeedScore:        speedScore,
		STPScore:          stpScore,
		RuleBonus:         bonus,
		Score:             score,
		SettlementHours:   p.SettlementHours,
		STPEnabled:        p.STPEnabled,
	}, true
}

func (e *Engine) checkSTP(top Recommendation, req Request, tier refdata.Tier, tierKnown bool) (bool, bool, string) {
	if !top.STPEnabled {
		return false, true, fmt.Sprintf("provider %s does not support STP", top.ProviderName)
	}
	if tierKnown && tier.STPThreshold.GreaterThan(decimal.Zero) && req.Amount.GreaterThan(tier.STPThreshold) {
		return false, true, fmt.Sprintf("amount exceeds STP threshold of %s", tier.STPThreshold.StringFixed(0))
	}
	return true, false, ""
}

// AdjustedTreasuryRate applies the position bias and tier spread
// reduction to the raw treasury side rate. The deals service compares
// active deals against this adjusted rate.
func AdjustedTreasuryRate(rate model.TreasuryRate, side model.Side, tier refdata.Tier, tierKnown bool) decimal.Decimal {
	base := rate.Ask
	if side == model.SideBuy {
		base = rate.Bid
	}
	total := decimal.NewFromInt(int64(model.PositionBiasBps(rate.Position, side)))
	if tierKnown {
		total = total.Sub(decimal.NewFromInt(int64(tier.SpreadReductionBps)))
	}
	return model.ApplyBps(base, total, side).Round(6)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
