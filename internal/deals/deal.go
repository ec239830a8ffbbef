package deals

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Status is a deal lifecycle state.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusActive          Status = "ACTIVE"
	StatusExpired         Status = "EXPIRED"
	StatusFullyUtilized   Status = "FULLY_UTILIZED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

// ErrNotFound marks lookups against unknown deal IDs.
var ErrNotFound = errors.New("deal not found")

// ErrInsufficientBalance marks utilisations exceeding the remaining amount.
var ErrInsufficientBalance = errors.New("insufficient deal balance")

// ErrValidation marks malformed deal requests.
var ErrValidation = errors.New("invalid deal request")

// ErrPersistence marks durable-write failures; the in-memory state is
// rolled back before this is returned.
var ErrPersistence = errors.New("deal persistence failed")

// StateConflictError reports an illegal transition with the current state.
type StateConflictError struct {
	DealID    string
	Current   Status
	Attempted string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("deal %s: cannot %s while %s", e.DealID, e.Attempted, e.Current)
}

// ErrStateConflict is the sentinel for errors.Is matching.
var ErrStateConflict = errors.New("deal state conflict")

func (e *StateConflictError) Is(target error) bool {
	return target == ErrStateConflict
}

// AuditEntry records one state transition.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
}

// Utilization records one draw against a deal's balance.
type Utilization struct {
	UtilizationID  string          `json:"utilization_id"`
	Timestamp      time.Time       `json:"timestamp"`
	Amount         decimal.Decimal `json:"amount"`
	RateApplied    decimal.Decimal `json:"rate_applied"`
	RemainingAfter decimal.Decimal `json:"remaining_after"`
	By             string          `json:"by"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
}

// Deal is a pre-negotiated treasury rate commitment.
type Deal struct {
	DealID          string           `json:"deal_id"`
	Pair            string           `json:"pair"`
	Side            model.Side       `json:"side"`
	BuyRate         decimal.Decimal  `json:"buy_rate"`
	SellRate        decimal.Decimal  `json:"sell_rate"`
	SpreadBps       decimal.Decimal  `json:"spread_bps"`
	Amount          decimal.Decimal  `json:"amount"`
	MinAmount       decimal.Decimal  `json:"min_amount"`
	MaxPerTxn       *decimal.Decimal `json:"max_per_txn,omitempty"`
	RemainingAmount decimal.Decimal  `json:"remaining_amount"`
	CustomerTier    string           `json:"customer_tier,omitempty"` // restricts utilisation when set
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      time.Time        `json:"valid_until"`
	Status          Status           `json:"status"`
	CreatedBy       string           `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Notes           string           `json:"notes,omitempty"`
	Audit           []AuditEntry     `json:"audit"`
	Utilizations    []Utilization    `json:"utilizations"`
}

// RateFor returns the side rate consumed by a utilisation.
func (d *Deal) RateFor(side model.Side) decimal.Decimal {
	if side == model.SideSell {
		return d.SellRate
	}
	return d.BuyRate
}

// UtilizedAmount is the total drawn so far.
func (d *Deal) UtilizedAmount() decimal.Decimal {
	return d.Amount.Sub(d.RemainingAmount)
}

// ExpiredAt reports whether the deal has passed its validity window at
// now. A deal is still ACTIVE at exactly valid_until.
func (d *Deal) ExpiredAt(now time.Time) bool {
	return d.Status == StatusActive && now.After(d.ValidUntil)
}

// InWindow reports whether now falls inside [valid_from, valid_until].
func (d *Deal) InWindow(now time.Time) bool {
	return !now.Before(d.ValidFrom) && !now.After(d.ValidUntil)
}

// clone deep-copies a deal so snapshots never alias live state.
func (d *Deal) clone() *Deal {
	cp := *d
	cp.Audit = append([]AuditEntry(nil), d.Audit...)
	cp.Utilizations = append([]Utilization(nil), d.Utilizations...)
	if d.MaxPerTxn != nil {
		max := *d.MaxPerTxn
		cp.MaxPerTxn = &max
	}
	return &cp
}

// spreadBps derives the deal spread over its own mid.
func spreadBps(buyRate, sellRate decimal.Decimal) decimal.Decimal {
	mid := buyRate.Add(sellRate).Div(decimal.NewFromInt(2))
	if mid.IsZero() {
		return decimal.Zero
	}
	return sellRate.Sub(buyRate).Div(mid).Mul(decimal.NewFromInt(10000)).Round(2)
}

// CreateRequest carries the fields of a new deal.
type CreateRequest struct {
	Pair         string           `json:"pair"`
	Side         model.Side       `json:"side"`
	BuyRate      decimal.Decimal  `json:"buy_rate"`
	SellRate     decimal.Decimal  `json:"sell_rate"`
	Amount       decimal.Decimal  `json:"amount"`
	MinAmount    decimal.Decimal  `json:"min_amount"`
	MaxPerTxn    *decimal.Decimal `json:"max_per_txn,omitempty"`
	CustomerTier string           `json:"customer_tier,omitempty"`
	ValidFrom    time.Time        `json:"valid_from"`
	ValidUntil   time.Time        `json:"valid_until"`
	CreatedBy    string           `json:"created_by"`
	Notes        string           `json:"notes,omitempty"`
}

// maxValidity bounds a deal's window; longer commitments need a desk
// re-negotiation, not a longer deal.
const maxValidity = 7 * 24 * time.Hour

func (r CreateRequest) validate() error {
	if r.Pair == "" {
		return fmt.Errorf("%w: pair is required", ErrValidation)
	}
	if r.Side != model.SideBuy && r.Side != model.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrValidation)
	}
	if !r.BuyRate.IsPositive() || !r.SellRate.IsPositive() {
		return fmt.Errorf("%w: rates must be positive", ErrValidation)
	}
	if r.BuyRate.GreaterThan(r.SellRate) {
		return fmt.Errorf("%w: buy rate must not exceed sell rate", ErrValidation)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if r.MinAmount.IsNegative() || r.MinAmount.GreaterThan(r.Amount) {
		return fmt.Errorf("%w: min_amount must be within [0, amount]", ErrValidation)
	}
	if r.MaxPerTxn != nil && !r.MaxPerTxn.IsPositive() {
		return fmt.Errorf("%w: max_per_txn must be positive", ErrValidation)
	}
	if !r.ValidFrom.Before(r.ValidUntil) {
		return fmt.Errorf("%w: valid_from must be before valid_until", ErrValidation)
	}
	if r.ValidUntil.Sub(r.ValidFrom) > maxValidity {
		return fmt.Errorf("%w: maximum validity period is 7 days", ErrValidation)
	}
	if r.CreatedBy == "" {
		return fmt.Errorf("%w: created_by is required", ErrValidation)
	}
	return nil
}

// UpdateRequest modifies a DRAFT deal. Nil fields are left unchanged.
type UpdateRequest struct {
	BuyRate    *decimal.Decimal `json:"buy_rate,omitempty"`
	SellRate   *decimal.Decimal `json:"sell_rate,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	MinAmount  *decimal.Decimal `json:"min_amount,omitempty"`
	MaxPerTxn  *decimal.Decimal `json:"max_per_txn,omitempty"`
	ValidFrom  *time.Time       `json:"valid_from,omitempty"`
	ValidUntil *time.Time       `json:"valid_until,omitempty"`
	Notes      *string          `json:"notes,omitempty"`
}

// UtilizeRequest draws against an active deal.
type UtilizeRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	CustomerID     string          `json:"customer_id"`
	CustomerTier   string          `json:"customer_tier,omitempty"`
	TransactionRef string          `json:"transaction_ref,omitempty"`
}

// BestRateSource says whether a deal or the treasury rate won arbitration.
type BestRateSource string

const (
	SourceDeal     BestRateSource = "DEAL"
	SourceTreasury BestRateSource = "TREASURY"
)

// BestRateResult is the arbitration outcome between the best active deal
// and the live treasury rate.
type BestRateResult struct {
	Pair            string          `json:"pair"`
	Side            model.Side      `json:"side"`
	Source          BestRateSource  `json:"source"`
	Rate            decimal.Decimal `json:"rate"`
	DealID          string          `json:"deal_id,omitempty"`
	AvailableAmount decimal.Decimal `json:"available_amount,omitempty"`
	ValidUntil      *time.Time      `json:"valid_until,omitempty"`
	TreasuryRate    decimal.Decimal `json:"treasury_rate"`
	SavingsBps      decimal.Decimal `json:"savings_bps"`
}
