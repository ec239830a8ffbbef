package refdata

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// ProviderType classifies an FX execution provider.
type ProviderType string

const (
	ProviderMarketData    ProviderType = "MARKET_DATA"
	ProviderInternal      ProviderType = "INTERNAL"
	ProviderCorrespondent ProviderType = "CORRESPONDENT"
	ProviderLocal         ProviderType = "LOCAL"
	ProviderFintech       ProviderType = "FINTECH"
	ProviderDealer        ProviderType = "DEALER"
)

// OperatingHours is a daily window in HH:MM, half-open [Open, Close).
// An empty window means the provider operates around the clock.
type OperatingHours struct {
	Open  string `json:"open,omitempty"`
	Close string `json:"close,omitempty"`
}

// Contains reports whether t's time-of-day falls inside the window.
func (w OperatingHours) Contains(t time.Time) bool {
	if w.Open == "" || w.Close == "" {
		return true
	}
	open, err1 := time.Parse("15:04", w.Open)
	close, err2 := time.Parse("15:04", w.Close)
	if err1 != nil || err2 != nil {
		return true
	}
	minutes := t.Hour()*60 + t.Minute()
	openMin := open.Hour()*60 + open.Minute()
	closeMin := close.Hour()*60 + close.Minute()
	if openMin == closeMin {
		return true
	}
	if openMin < closeMin {
		return minutes >= openMin && minutes < closeMin
	}
	// Overnight window, e.g. 22:00 → 06:00.
	return minutes >= openMin || minutes < closeMin
}

// Provider is one FX execution venue.
type Provider struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            ProviderType    `json:"type"`
	Reliability     float64         `json:"reliability"`
	AvgLatencyMS    int             `json:"avg_latency_ms"`
	SettlementHours int             `json:"settlement_hours"`
	MinAmount       decimal.Decimal `json:"min_amount"`
	DailyLimit      decimal.Decimal `json:"daily_limit"`
	MarkupBps       int             `json:"markup_bps"`
	SupportedPairs  []string        `json:"supported_pairs"` // ["*"] supports everything
	OperatingHours  OperatingHours  `json:"operating_hours"`
	STPEnabled      bool            `json:"stp_enabled"`
	IsActive        bool            `json:"is_active"`
}

// SupportsPair reports whether the provider quotes the pair or its inverse.
func (p Provider) SupportsPair(pair string) bool {
	inverse := ""
	if len(pair) == 6 {
		inverse = pair[3:] + pair[:3]
	}
	for _, s := range p.SupportedPairs {
		if s == "*" || s == pair || (inverse != "" && s == inverse) {
			return true
		}
	}
	return false
}

// Tier is a customer relationship tier.
type Tier struct {
	ID                 string          `json:"id"`
	MinAnnualVolume    decimal.Decimal `json:"min_annual_volume"`
	MarkupDiscountPct  float64         `json:"markup_discount_pct"`
	SpreadReductionBps int             `json:"spread_reduction_bps"`
	PriorityRouting    bool            `json:"priority_routing"`
	MaxTransaction     decimal.Decimal `json:"max_transaction"`
	STPThreshold       decimal.Decimal `json:"stp_threshold"`
	DefaultObjective   model.Objective `json:"default_objective"`
	ProvidersAllowed   []string        `json:"providers_allowed,omitempty"`
}

// Segment is a pricing segment.
type Segment struct {
	ID                     string `json:"id"`
	Name                   string `json:"name"`
	BaseMarginBps          int    `json:"base_margin_bps"`
	MinMarginBps           int    `json:"min_margin_bps"`
	MaxMarginBps           int    `json:"max_margin_bps"`
	VolumeDiscountEligible bool   `json:"volume_discount_eligible"`
	NegotiatedRatesAllowed bool   `json:"negotiated_rates_allowed"`
}

// AmountTier partitions transaction sizes into half-open intervals
// [MinAmount, MaxAmount). A nil MaxAmount means unbounded.
type AmountTier struct {
	ID            string           `json:"id"`
	Order         int              `json:"order"`
	MinAmount     decimal.Decimal  `json:"min_amount"`
	MaxAmount     *decimal.Decimal `json:"max_amount,omitempty"`
	AdjustmentBps int              `json:"adjustment_bps"`
	Description   string           `json:"description,omitempty"`
}

// Contains reports whether amount falls inside the tier's interval.
func (t AmountTier) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.MinAmount) {
		return false
	}
	if t.MaxAmount == nil {
		return true
	}
	return amount.LessThan(*t.MaxAmount)
}

// CurrencyCategory groups currencies by liquidity.
type CurrencyCategory string

const (
	CategoryG10        CurrencyCategory = "G10"
	CategoryMinor      CurrencyCategory = "MINOR"
	CategoryExotic     CurrencyCategory = "EXOTIC"
	CategoryRestricted CurrencyCategory = "RESTRICTED"
)

var categoryOrder = map[CurrencyCategory]int{
	CategoryG10:        0,
	CategoryMinor:      1,
	CategoryExotic:     2,
	CategoryRestricted: 3,
}

// LessLiquid returns the less liquid of two categories.
func LessLiquid(a, b CurrencyCategory) CurrencyCategory {
	if categoryOrder[a] >= categoryOrder[b] {
		return a
	}
	return b
}

// CategoryMarkup holds per-segment-class markups for a currency category.
type CategoryMarkup struct {
	RetailBps        int `json:"retail_bps"`
	CorporateBps     int `json:"corporate_bps"`
	InstitutionalBps int `json:"institutional_bps"`
}

// ForSegment maps a pricing segment to its markup class.
func (m CategoryMarkup) ForSegment(segmentID string) int {
	switch segmentID {
	case "INSTITUTIONAL":
		return m.InstitutionalBps
	case "LARGE_CORPORATE", "MID_MARKET", "PRIVATE_BANKING":
		return m.CorporateBps
	default:
		return m.RetailBps
	}
}

// CBDCFees are issuance/redemption/transfer fees in bps.
type CBDCFees struct {
	IssuanceBps   int `json:"issuance_bps"`
	RedemptionBps int `json:"redemption_bps"`
	TransferBps   int `json:"transfer_bps"`
}

// CBDC is one central-bank digital currency registry entry.
type CBDC struct {
	Code               string   `json:"code"`
	Issuer             string   `json:"issuer"`
	LinkedFiat         string   `json:"linked_fiat"`
	Status             string   `json:"status"` // LIVE | PILOT | PLANNED
	SettlementSeconds  int      `json:"settlement_seconds"`
	MBridgeParticipant bool     `json:"mbridge_participant"`
	CrossBorderEnabled bool     `json:"cross_border_enabled"`
	Fees               CBDCFees `json:"fees"`
	Reliability        float64  `json:"reliability"`
}

// StablecoinNetwork is one chain a stablecoin settles on.
type StablecoinNetwork struct {
	Chain             string          `json:"chain"`
	SettlementSeconds int             `json:"settlement_seconds"`
	FeeUSD            decimal.Decimal `json:"fee_usd"`
}

// StablecoinFees are mint/redeem/transfer fees in bps.
type StablecoinFees struct {
	MintBps     int `json:"mint_bps"`
	RedeemBps   int `json:"redeem_bps"`
	TransferBps int `json:"transfer_bps"`
}

// Stablecoin is one fiat-pegged stablecoin registry entry.
type Stablecoin struct {
	Code           string              `json:"code"`
	Issuer         string              `json:"issuer"`
	PegCurrency    string              `json:"peg_currency"`
	PegRatio       decimal.Decimal     `json:"peg_ratio"`
	Regulated      bool                `json:"regulated"`
	Networks       []StablecoinNetwork `json:"networks"`
	LiquidityScore int                 `json:"liquidity_score"`
	Fees           StablecoinFees      `json:"fees"`
	Reliability    float64             `json:"reliability"`
}

// RampDirection says which way a fiat↔stablecoin ramp operates.
type RampDirection string

const (
	RampOn   RampDirection = "ON"
	RampOff  RampDirection = "OFF"
	RampBoth RampDirection = "BOTH"
)

// Ramp is a fiat on/off-ramp for stablecoins.
type Ramp struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Direction         RampDirection `json:"direction"`
	Stablecoins       []string      `json:"stablecoins"`
	FeeBps            int           `json:"fee_bps"`
	SettlementSeconds int           `json:"settlement_seconds"`
	Regulated         bool          `json:"regulated"`
	Reliability       float64       `json:"reliability"`
}

// Supports reports whether the ramp handles the stablecoin in the
// requested direction.
func (r Ramp) Supports(stable string, dir RampDirection) bool {
	if r.Direction != RampBoth && r.Direction != dir {
		return false
	}
	for _, s := range r.Stablecoins {
		if strings.EqualFold(s, stable) {
			return true
		}
	}
	return false
}

// Rail describes a settlement mechanism used as a route leg.
type Rail struct {
	Mechanism   string  `json:"mechanism"`
	Name        string  `json:"name"`
	Reliability float64 `json:"reliability"`
	Regulated   bool    `json:"regulated"`
	STPCapable  bool    `json:"stp_capable"`
}

// AtomicSwapPair is a CBDC↔stablecoin corridor with HTLC settlement.
type AtomicSwapPair struct {
	CBDC              string `json:"cbdc"`
	Stablecoin        string `json:"stablecoin"`
	Status            string `json:"status"` // ACTIVE | PILOT | EXPERIMENTAL | PLANNED
	FeeBps            int    `json:"fee_bps"`
	SettlementSeconds int    `json:"settlement_seconds"`
}
