package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/internal/rates"
	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/internal/rules"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// ErrUnknownSegment is returned for quote requests against a segment the
// registry does not know.
var ErrUnknownSegment = errors.New("unknown pricing segment")

// MarginBreakdown decomposes the composed margin.
type MarginBreakdown struct {
	SegmentBaseBps        decimal.Decimal `json:"segment_base_bps"`
	TierAdjustmentBps     decimal.Decimal `json:"tier_adjustment_bps"`
	CurrencyFactorBps     decimal.Decimal `json:"currency_factor_bps"`
	NegotiatedDiscountBps decimal.Decimal `json:"negotiated_discount_bps"`
}

// Quote is a firm customer-facing quote. Quotes are immutable after
// issuance and are not persisted by the core.
type Quote struct {
	QuoteID          string                   `json:"quote_id"`
	SourceCurrency   string                   `json:"source_currency"`
	TargetCurrency   string                   `json:"target_currency"`
	Amount           decimal.Decimal          `json:"amount"`
	Direction        model.Side               `json:"direction"`
	MidRate          decimal.Decimal          `json:"mid_rate"`
	CustomerRate     decimal.Decimal          `json:"customer_rate"`
	TargetAmount     decimal.Decimal          `json:"target_amount"`
	MarginBps        decimal.Decimal          `json:"margin_bps"`
	MarginBreakdown  MarginBreakdown          `json:"margin_breakdown"`
	Segment          string                   `json:"segment"`
	AmountTier       string                   `json:"amount_tier"`
	CurrencyCategory refdata.CurrencyCategory `json:"currency_category"`
	ValidUntil       time.Time                `json:"valid_until"`
	RateType         model.RateType           `json:"rate_type"`
	AppliedRules     []string                 `json:"applied_rules,omitempty"`
}

// Request describes one pricing enquiry.
type Request struct {
	SourceCurrency string
	TargetCurrency string
	Amount         decimal.Decimal
	CustomerID     string
	Segment        string
	Direction      model.Side
}

// Engine composes customer rates from mid-market rate, segment base
// margin, amount-tier adjustment, currency-category factor and any
// negotiated discount, then applies margin-adjustment rules and the
// segment clamp.
type Engine struct {
	registry   *refdata.Registry
	rates      *rates.Cached
	rules      *rules.Engine
	negotiated map[string]int // customer_id → discount bps
	validity   time.Duration
	logger     *zap.Logger
	seq        atomic.Uint64
	now        func() time.Time
}

// NewEngine creates a pricing engine. negotiatedPath may point at a JSON
// document of per-customer discounts; a missing file means no discounts.
func NewEngine(
	registry *refdata.Registry,
	cached *rates.Cached,
	ruleEngine *rules.Engine,
	negotiatedPath string,
	validity time.Duration,
	logger *zap.Logger,
) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		registry:   registry,
		rates:      cached,
		rules:      ruleEngine,
		negotiated: make(map[string]int),
		validity:   validity,
		logger:     logger,
		now:        time.Now,
	}
	if negotiatedPath != "" {
		if err := e.loadNegotiated(negotiatedPath); err != nil {
			return nil, err
		}
	}
	return e, nil
}

type negotiatedDoc struct {
	Discounts map[string]int `json:"discounts"`
}

func (e *Engine) loadNegotiated(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read negotiated rates: %w", err)
	}
	var doc negotiatedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode negotiated rates: %w", err)
	}
	e.negotiated = doc.Discounts
	return nil
}

// NegotiatedDiscountBps returns the customer's pre-negotiated discount,
// zero when none exists.
func (e *Engine) NegotiatedDiscountBps(customerID string) int {
	return e.negotiated[customerID]
}

// Quote issues a firm quote for the request.
func (e *Engine) Quote(ctx context.Context, req Request) (*Quote, error) {
	start := time.Now()
	defer metrics.ObserveDuration(metrics.EngineDuration, start, "pricing")

	snap := e.registry.Snapshot()
	segment, ok := snap.Segments[req.Segment]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSegment, req.Segment)
	}

	pair := model.PairKey(req.SourceCurrency, req.TargetCurrency)
	res, err := e.rates.Fetch(ctx, pair)
	if err != nil {
		return nil, err
	}
	mid := res.Rate.Mid

	// Margin composition.
	baseBps := decimal.NewFromInt(int64(segment.BaseMarginBps))

	tier := snap.AmountTierFor(req.Amount)
	tierBps := decimal.Zero
	if segment.VolumeDiscountEligible {
		tierBps = decimal.NewFromInt(int64(tier.AdjustmentBps))
	}

	category := snap.PairCategory(req.SourceCurrency, req.TargetCurrency)
	currencyBps := decimal.NewFromInt(int64(snap.CategoryMarkupFor(category, segment.ID)))

	discountBps := decimal.Zero
	if segment.NegotiatedRatesAllowed {
		discountBps = decimal.NewFromInt(int64(e.NegotiatedDiscountBps(req.CustomerID)))
	}

	// Margin-adjustment rules fold into the composition before the clamp.
	minBps := decimal.NewFromInt(int64(segment.MinMarginBps))
	maxBps := decimal.NewFromInt(int64(segment.MaxMarginBps))

	var applied []string
	if e.rules != nil {
		decision := e.rules.MarginDecision(rules.Context{
			"customer_id":       req.CustomerID,
			"customer_segment":  segment.ID,
			"currency_pair":     pair,
			"currency_category": string(category),
			"amount":            req.Amount,
			"amount_tier":       tier.ID,
			"direction":         string(req.Direction),
		}, e.now())
		applied = decision.MatchedIDs

		if decision.BaseOverride != nil {
			baseBps = decimal.NewFromFloat(*decision.BaseOverride)
		}
		if decision.TierMultiplier != nil {
			tierBps = tierBps.Mul(decimal.NewFromFloat(*decision.TierMultiplier))
		}
		if decision.AdditionalBps != 0 {
			baseBps = baseBps.Add(decimal.NewFromFloat(decision.AdditionalBps))
		}
		if decision.MinBps != nil {
			minBps = decimal.NewFromFloat(*decision.MinBps)
		}
		if decision.MaxBps != nil {
			maxBps = decimal.NewFromFloat(*decision.MaxBps)
		}
	}

	totalBps := baseBps.Add(tierBps).Add(currencyBps).Sub(discountBps)
	if totalBps.LessThan(minBps) {
		totalBps = minBps
	}
	if totalBps.GreaterThan(maxBps) {
		totalBps = maxBps
	}

	customerRate := model.ApplyBps(mid, totalBps, req.Direction).Round(6)

	var targetAmount decimal.Decimal
	if req.Direction == model.SideSell {
		targetAmount = req.Amount.Mul(customerRate).Round(2)
	} else {
		targetAmount = req.Amount.Div(customerRate).Round(2)
	}

	rateType := model.RateFirm
	if res.Stale {
		rateType = model.RateIndicative
	}

	now := e.now().UTC()
	quote := &Quote{
		QuoteID:        e.nextQuoteID(now),
		SourceCurrency: req.SourceCurrency,
		TargetCurrency: req.TargetCurrency,
		Amount:         req.Amount,
		Direction:      req.Direction,
		MidRate:        mid,
		CustomerRate:   customerRate,
		TargetAmount:   targetAmount,
		MarginBps:      totalBps,
		MarginBreakdown: MarginBreakdown{
			SegmentBaseBps:        baseBps,
			TierAdjustmentBps:     tierBps,
			CurrencyFactorBps:     currencyBps,
			NegotiatedDiscountBps: discountBps,
		},
		Segment:          segment.ID,
		AmountTier:       tier.ID,
		CurrencyCategory: category,
		ValidUntil:       now.Add(e.validity),
		RateType:         rateType,
		AppliedRules:     applied,
	}

	metrics.IncQuote(segment.ID, string(rateType))
	e.logger.Info("pricing.quote_issued",
		zap.String("quote_id", quote.QuoteID),
		zap.String("customer", req.CustomerID),
		zap.String("segment", segment.ID),
		zap.String("pair", pair),
		zap.String("margin_bps", totalBps.String()),
		zap.String("rate", customerRate.String()),
	)

	return quote, nil
}

// nextQuoteID yields a monotonic opaque token.
func (e *Engine) nextQuoteID(now time.Time) string {
	return fmt.Sprintf("PQ-%s-%06d", now.Format("20060102150405"), e.seq.Add(1))
}
