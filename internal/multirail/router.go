package multirail

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// ErrNoRoute is returned when no template materialises for the request.
var ErrNoRoute = errors.New("no route available")

// Request describes one cross-rail conversion enquiry.
type Request struct {
	SourceCurrency   string
	TargetCurrency   string
	Amount           decimal.Decimal
	Objective        model.Objective
	FilterRegulated  bool // suppress unregulated and experimental routes
	PreferredNetwork string
	MaxSlippageBps   int // 0 disables the slippage ceiling
}

// Response is the full cross-rail answer: the best route, the best route
// per rail, and every materialised alternative.
type Response struct {
	RequestID       string          `json:"request_id"`
	SourceCurrency  string          `json:"source_currency"`
	SourceRail      model.RailType  `json:"source_rail"`
	TargetCurrency  string          `json:"target_currency"`
	TargetRail      model.RailType  `json:"target_rail"`
	Amount          decimal.Decimal `json:"amount"`
	Objective       model.Objective `json:"objective"`
	BestRoute       *Route          `json:"best_route"`
	FiatRoute       *Route          `json:"fiat_route,omitempty"`
	CBDCRoute       *Route          `json:"cbdc_route,omitempty"`
	StablecoinRoute *Route          `json:"stablecoin_route,omitempty"`
	AllRoutes       []Route         `json:"all_routes"`
	Inapplicable    []Inapplicable  `json:"inapplicable,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	RateType        model.RateType  `json:"rate_type"`
}

// Router synthesises and ranks conversion routes across the fiat, CBDC
// and stablecoin rails.
type Router struct {
	registry *refdata.Registry
	rates    *rates.Cached
	logger   *zap.Logger
}

// NewRouter creates a multi-rail router.
func NewRouter(registry *refdata.Registry, cached *rates.Cached, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, rates: cached, logger: logger}
}

func (r *Router) newID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Route enumerates the templates for the request's rail-pair class,
// materialises each against the registries, folds fees into the fiat
// conversion rate and ranks the survivors.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.EngineDuration, start, "multirail")

	snap := r.registry.Snapshot()
	srcRail := snap.RailTypeOf(req.SourceCurrency)
	tgtRail := snap.RailTypeOf(req.TargetCurrency)

	objective := req.Objective
	if !model.ValidObjective(objective) {
		objective = model.ObjectiveOptimum
	}
	weights := model.ObjectiveWeights(objective)

	// One fiat conversion underlies every template of the class; a pair
	// missing from the snapshot and cache fails the whole request.
	srcFiat := snap.FiatOf(req.SourceCurrency)
	tgtFiat := snap.FiatOf(req.TargetCurrency)
	conv, stale, err := r.fiatMid(ctx, srcFiat, tgtFiat)
	if err != nil {
		return nil, err
	}

	var all []Route
	var skipped []Inapplicable
	for _, tpl := range TemplatesFor(srcRail, tgtRail) {
		route, inap := r.materialize(tpl, req, snap)
		if inap != nil {
			skipped = append(skipped, *inap)
			continue
		}

		route.finalize(weights)

		if req.FilterRegulated && (!route.Regulated || route.Annotations.Experimental) {
			skipped = append(skipped, Inapplicable{Template: route.Template, Reason: "suppressed by regulated-only filter"})
			continue
		}
		if req.MaxSlippageBps > 0 && tpl.SlippageBps > req.MaxSlippageBps {
			skipped = append(skipped, Inapplicable{Template: route.Template, Reason: "slippage above requested ceiling"})
			continue
		}

		route.Rate = model.ApplyBps(conv, decimal.NewFromInt(int64(route.TotalCostBps)), model.SideSell).Round(6)
		route.EffectiveAmount = req.Amount.Mul(route.Rate).Round(2)
		all = append(all, route)
	}

	if len(all) == 0 {
		metrics.IncRouting(string(objective), "no_route")
		return nil, fmt.Errorf("%w: %s → %s", ErrNoRoute, req.SourceCurrency, req.TargetCurrency)
	}

	sort.SliceStable(all, func(i, j int) bool { return better(all[i], all[j]) })

	resp := &Response{
		RequestID:      fmt.Sprintf("MR-%s", strings.ToUpper(uuid.NewString()[:12])),
		SourceCurrency: req.SourceCurrency,
		SourceRail:     srcRail,
		TargetCurrency: req.TargetCurrency,
		TargetRail:     tgtRail,
		Amount:         req.Amount,
		Objective:      objective,
		BestRoute:      &all[0],
		AllRoutes:      all,
		Inapplicable:   skipped,
		RateType:       model.RateFirm,
	}
	if stale {
		resp.RateType = model.RateIndicative
	}

	for i := range all {
		route := &all[i]
		switch route.Rail {
		case model.RailFiat:
			if resp.FiatRoute == nil {
				resp.FiatRoute = route
			}
		case model.RailCBDC:
			if resp.CBDCRoute == nil {
				resp.CBDCRoute = route
			}
		case model.RailStablecoin:
			if resp.StablecoinRoute == nil {
				resp.StablecoinRoute = route
			}
		}
	}

	resp.Warnings = r.warnings(all[0])

	metrics.IncRouting(string(objective), "ok")
	r.logger.Info("multirail.routed",
		zap.String("request_id", resp.RequestID),
		zap.String("source", req.SourceCurrency),
		zap.String("target", req.TargetCurrency),
		zap.Int("routes", len(all)),
		zap.String("best", all[0].Template),
	)
	return resp, nil
}

// fiatMid resolves the fiat-anchor conversion mid. Identical anchors
// convert 1:1.
func (r *Router) fiatMid(ctx context.Context, srcFiat, tgtFiat string) (decimal.Decimal, bool, error) {
	if srcFiat == tgtFiat {
		return decimal.NewFromInt(1), false, nil
	}
	res, err := r.rates.Fetch(ctx, model.PairKey(srcFiat, tgtFiat))
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return res.Rate.Mid, res.Stale, nil
}

func (r *Router) warnings(best Route) []string {
	var out []string
	if len(best.Legs) > 2 {
		out = append(out, fmt.Sprintf("route involves %d legs - higher operational complexity", len(best.Legs)))
	}
	if best.SettlementSeconds > 86400 {
		out = append(out, "settlement may take more than 24 hours")
	}
	if !best.Regulated {
		out = append(out, "route crosses unregulated venues - counterparty risk applies")
	}
	if best.Annotations.Experimental {
		out = append(out, "route uses an experimental corridor")
	}
	return out
}
