package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecommendRequest is the fiat routing request body.
type RecommendRequest struct {
	SourceCurrency string          `json:"source_currency"`
	TargetCurrency string          `json:"target_currency"`
	Amount         decimal.Decimal `json:"amount"`
	Direction      string          `json:"direction"`
	Objective      string          `json:"objective"`
	CustomerID     string          `json:"customer_id"`
	CustomerTier   string          `json:"customer_tier"`
	Segment        string          `json:"segment"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
}

// MultiRailRequest is the cross-rail routing request body.
type MultiRailRequest struct {
	SourceCurrency   string          `json:"source_currency"`
	TargetCurrency   string          `json:"target_currency"`
	Amount           decimal.Decimal `json:"amount"`
	Objective        string          `json:"objective"`
	FilterRegulated  bool            `json:"filter_regulated"`
	PreferredNetwork string          `json:"preferred_network"`
	MaxSlippageBps   int             `json:"max_slippage_bps"`
}

// QuoteRequest is the pricing request body.
type QuoteRequest struct {
	SourceCurrency string          `json:"source_currency"`
	TargetCurrency string          `json:"target_currency"`
	Amount         decimal.Decimal `json:"amount"`
	Direction      string          `json:"direction"`
	CustomerID     string          `json:"customer_id"`
	Segment        string          `json:"segment"`
}

// ActorRequest carries the acting user for deal transitions.
type ActorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// BestRateQuery parameters arrive via query string on GET /deals/best-rate.
type BestRateQuery struct {
	Pair         string
	Side         string
	Amount       decimal.Decimal
	CustomerTier string
}
