package deals

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/fx-router/internal/metrics"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Events is the outbound event hook; satisfied by the NATS publisher.
type Events interface {
	PublishEvent(ctx context.Context, subject, eventType string, payload any) error
}

type dealEntry struct {
	mu   sync.Mutex
	deal *Deal
}

// Store owns every treasury deal. Transitions and utilisations against
// the same deal serialise on a per-deal mutex; the journal append is the
// durability point — a transition's response is only returned once its
// record is flushed.
type Store struct {
	mu      sync.RWMutex // guards the map, not the deals
	entries map[string]*dealEntry

	journal *journal
	mirror  *Mirror
	events  Events
	subject string
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore opens the journal at path, replays it, and returns the store.
// mirror and events may be nil.
func NewStore(path string, mirror *Mirror, events Events, subject string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	replayed, err := replayJournal(path)
	if err != nil {
		return nil, fmt.Errorf("replay deals journal: %w", err)
	}
	j, err := openJournal(path)
	if err != nil {
		return nil, fmt.Errorf("open deals journal: %w", err)
	}

	s := &Store{
		entries: make(map[string]*dealEntry, len(replayed)),
		journal: j,
		mirror:  mirror,
		events:  events,
		subject: subject,
		logger:  logger,
		now:     time.Now,
	}
	for id, d := range replayed {
		s.entries[id] = &dealEntry{deal: d}
	}
	logger.Info("deals.journal_replayed", zap.Int("deals", len(replayed)))
	return s, nil
}

// Close flushes and closes the journal.
func (s *Store) Close() error {
	return s.journal.close()
}

func (s *Store) entry(dealID string) (*dealEntry, bool) {
	s.mu.RLock()
	e, ok := s.entries[dealID]
	s.mu.RUnlock()
	return e, ok
}

// nextDealIDLocked derives the next sequential ID for today. Caller holds
// the map lock so concurrent creates cannot mint the same ID.
func (s *Store) nextDealIDLocked(now time.Time) string {
	prefix := fmt.Sprintf("DEAL-%s-", now.Format("20060102"))
	count := 0
	for id := range s.entries {
		if strings.HasPrefix(id, prefix) {
			count++
		}
	}
	return fmt.Sprintf("%s%04d", prefix, count+1)
}

// Create validates and persists a new DRAFT deal.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Deal, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	now := s.now().UTC()
	deal := &Deal{
		DealID:          s.nextDealIDLocked(now),
		Pair:            strings.ToUpper(req.Pair),
		Side:            req.Side,
		BuyRate:         req.BuyRate,
		SellRate:        req.SellRate,
		SpreadBps:       spreadBps(req.BuyRate, req.SellRate),
		Amount:          req.Amount,
		MinAmount:       req.MinAmount,
		MaxPerTxn:       req.MaxPerTxn,
		RemainingAmount: req.Amount,
		CustomerTier:    req.CustomerTier,
		ValidFrom:       req.ValidFrom.UTC(),
		ValidUntil:      req.ValidUntil.UTC(),
		Status:          StatusDraft,
		CreatedBy:       req.CreatedBy,
		CreatedAt:       now,
		UpdatedAt:       now,
		Notes:           req.Notes,
		Audit: []AuditEntry{{
			Timestamp: now,
			From:      "",
			To:        StatusDraft,
			Actor:     req.CreatedBy,
			Reason:    "deal created",
		}},
	}

	if err := s.journal.append(journalRecord{Timestamp: now, Deal: deal}); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.entries[deal.DealID] = &dealEntry{deal: deal}
	s.mu.Unlock()

	s.mirror.UpsertDeal(ctx, deal)
	s.publish(ctx, "deal.created", deal)
	metrics.IncDealTransition(string(StatusDraft))
	s.logger.Info("deals.created",
		zap.String("deal_id", deal.DealID),
		zap.String("pair", deal.Pair),
		zap.String("side", string(deal.Side)),
	)
	return deal.clone(), nil
}

// Get returns a deal snapshot, lazily tagging expiry.
func (s *Store) Get(ctx context.Context, dealID string) (*Deal, error) {
	e, ok := s.entry(dealID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := s.expireLocked(ctx, e); err != nil {
		return nil, err
	}
	return e.deal.clone(), nil
}

// ListFilter narrows List results.
type ListFilter struct {
	Status   Status
	Pair     string
	Page     int
	PageSize int
}

// List returns a point-in-time snapshot of deals, newest first.
func (s *Store) List(ctx context.Context, f ListFilter) ([]*Deal, int, error) {
	s.mu.RLock()
	entries := make([]*dealEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []*Deal
	for _, e := range entries {
		e.mu.Lock()
		if err := s.expireLocked(ctx, e); err != nil {
			e.mu.Unlock()
			return nil, 0, err
		}
		d := e.deal.clone()
		e.mu.Unlock()

		if f.Status != "" && d.Status != f.Status {
			continue
		}
		if f.Pair != "" && d.Pair != strings.ToUpper(f.Pair) {
			continue
		}
		out = append(out, d)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DealID > out[j].DealID
	})

	total := len(out)
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	start := (page - 1) * size
	if start >= total {
		return []*Deal{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return out[start:end], total, nil
}

// Update modifies a DRAFT deal.
func (s *Store) Update(ctx context.Context, dealID string, req UpdateRequest, updatedBy string) (*Deal, error) {
	return s.withDeal(ctx, dealID, func(d *Deal) error {
		if d.Status != StatusDraft {
			return &StateConflictError{DealID: dealID, Current: d.Status, Attempted: "update"}
		}
		if req.BuyRate != nil {
			d.BuyRate = *req.BuyRate
		}
		if req.SellRate != nil {
			d.SellRate = *req.SellRate
		}
		if d.BuyRate.GreaterThan(d.SellRate) {
			return fmt.Errorf("%w: buy rate must not exceed sell rate", ErrValidation)
		}
		d.SpreadBps = spreadBps(d.BuyRate, d.SellRate)
		if req.Amount != nil {
			if !req.Amount.IsPositive() {
				return fmt.Errorf("%w: amount must be positive", ErrValidation)
			}
			d.Amount = *req.Amount
			d.RemainingAmount = *req.Amount
		}
		if req.MinAmount != nil {
			d.MinAmount = *req.MinAmount
		}
		if d.MinAmount.GreaterThan(d.Amount) {
			return fmt.Errorf("%w: min_amount must not exceed amount", ErrValidation)
		}
		if req.MaxPerTxn != nil {
			d.MaxPerTxn = req.MaxPerTxn
		}
		if req.ValidFrom != nil {
			d.ValidFrom = req.ValidFrom.UTC()
		}
		if req.ValidUntil != nil {
			d.ValidUntil = req.ValidUntil.UTC()
		}
		if !d.ValidFrom.Before(d.ValidUntil) {
			return fmt.Errorf("%w: valid_from must be before valid_until", ErrValidation)
		}
		if req.Notes != nil {
			d.Notes = *req.Notes
		}
		d.Audit = append(d.Audit, AuditEntry{
			Timestamp: s.now().UTC(),
			From:      StatusDraft,
			To:        StatusDraft,
			Actor:     updatedBy,
			Reason:    "deal modified",
		})
		return nil
	}, "deal.updated")
}

// Submit moves DRAFT → PENDING_APPROVAL.
func (s *Store) Submit(ctx context.Context, dealID, submittedBy string) (*Deal, error) {
	return s.transition(ctx, dealID, StatusDraft, StatusPendingApproval, submittedBy, "submitted for approval", "submit", nil)
}

// Approve moves PENDING_APPROVAL → ACTIVE. Self-approval is rejected,
// and a deal cannot activate before its window opens.
func (s *Store) Approve(ctx context.Context, dealID, approvedBy string) (*Deal, error) {
	return s.transition(ctx, dealID, StatusPendingApproval, StatusActive, approvedBy, "deal approved", "approve", func(d *Deal) error {
		if d.CreatedBy == approvedBy {
			return fmt.Errorf("%w: self-approval is not allowed", ErrValidation)
		}
		if s.now().UTC().Before(d.ValidFrom) {
			return fmt.Errorf("%w: deal window opens at %s", ErrValidation, d.ValidFrom.Format(time.RFC3339))
		}
		return nil
	})
}

// Reject moves PENDING_APPROVAL → REJECTED.
func (s *Store) Reject(ctx context.Context, dealID, rejectedBy, reason string) (*Deal, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: rejection reason is required", ErrValidation)
	}
	return s.transition(ctx, dealID, StatusPendingApproval, StatusRejected, rejectedBy, reason, "reject", nil)
}

// Cancel moves DRAFT, PENDING_APPROVAL or ACTIVE → CANCELLED.
func (s *Store) Cancel(ctx context.Context, dealID, cancelledBy, reason string) (*Deal, error) {
	if reason == "" {
		return nil, fmt.Errorf("%w: cancellation reason is required", ErrValidation)
	}
	return s.withDeal(ctx, dealID, func(d *Deal) error {
		switch d.Status {
		case StatusDraft, StatusPendingApproval, StatusActive:
		default:
			return &StateConflictError{DealID: dealID, Current: d.Status, Attempted: "cancel"}
		}
		s.applyTransition(d, d.Status, StatusCancelled, cancelledBy, reason)
		return nil
	}, "deal.cancelled")
}

// Utilize draws against an active deal. The journal append is the
// linearisation point; two concurrent draws that each fit may both
// succeed iff their sum still fits.
func (s *Store) Utilize(ctx context.Context, dealID string, req UtilizeRequest) (*Utilization, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: utilisation amount must be positive", ErrValidation)
	}

	e, ok := s.entry(dealID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.expireLocked(ctx, e); err != nil {
		return nil, err
	}
	d := e.deal
	now := s.now().UTC()

	if d.Status != StatusActive {
		return nil, &StateConflictError{DealID: dealID, Current: d.Status, Attempted: "utilize"}
	}
	if !d.InWindow(now) {
		return nil, &StateConflictError{DealID: dealID, Current: d.Status, Attempted: "utilize outside validity window"}
	}
	if d.CustomerTier != "" && req.CustomerTier != "" && d.CustomerTier != req.CustomerTier {
		return nil, fmt.Errorf("%w: deal is restricted to %s tier", ErrValidation, d.CustomerTier)
	}
	if req.Amount.LessThan(d.MinAmount) {
		return nil, fmt.Errorf("%w: minimum transaction amount is %s", ErrValidation, d.MinAmount)
	}
	if d.MaxPerTxn != nil && req.Amount.GreaterThan(*d.MaxPerTxn) {
		return nil, fmt.Errorf("%w: maximum transaction amount is %s", ErrValidation, d.MaxPerTxn)
	}
	if req.Amount.GreaterThan(d.RemainingAmount) {
		return nil, fmt.Errorf("%w: requested %s exceeds remaining %s", ErrInsufficientBalance, req.Amount, d.RemainingAmount)
	}

	// Apply on a copy; the live deal only advances once the journal
	// append succeeds.
	next := d.clone()
	next.RemainingAmount = d.RemainingAmount.Sub(req.Amount)
	next.UpdatedAt = now

	util := Utilization{
		UtilizationID:  fmt.Sprintf("UTL-%s", strings.ToUpper(uuid.NewString()[:8])),
		Timestamp:      now,
		Amount:         req.Amount,
		RateApplied:    d.RateFor(d.Side),
		RemainingAfter: next.RemainingAmount,
		By:             req.CustomerID,
		TransactionRef: req.TransactionRef,
	}
	next.Utilizations = append(next.Utilizations, util)

	if next.RemainingAmount.IsZero() || next.RemainingAmount.LessThan(next.MinAmount) {
		s.applyTransition(next, StatusActive, StatusFullyUtilized, "SYSTEM", "remaining amount below deal minimum")
	}

	if err := s.journal.append(journalRecord{Timestamp: now, Deal: next}); err != nil {
		return nil, err
	}
	e.deal = next

	s.mirror.UpsertDeal(ctx, next)
	s.mirror.RecordUtilization(ctx, dealID, util)
	s.publish(ctx, "deal.utilized", next)
	s.logger.Info("deals.utilized",
		zap.String("deal_id", dealID),
		zap.String("amount", req.Amount.String()),
		zap.String("remaining", next.RemainingAmount.String()),
	)
	return &util, nil
}

// ActiveDeals returns active, in-window deals for a pair, optionally
// restricted to a tier.
func (s *Store) ActiveDeals(ctx context.Context, pair, tier string) ([]*Deal, error) {
	all, _, err := s.List(ctx, ListFilter{Status: StatusActive, Pair: pair, PageSize: 10000})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var out []*Deal
	for _, d := range all {
		if !d.InWindow(now) {
			continue
		}
		if d.CustomerTier != "" && tier != "" && d.CustomerTier != tier {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// BestRate arbitrates between the best active deal and the (already
// adjusted) treasury rate. Deals on the inverse pair participate with
// inverted rates and flipped side.
func (s *Store) BestRate(ctx context.Context, pair string, side model.Side, amount decimal.Decimal, tier string, treasuryRate decimal.Decimal) (*BestRateResult, error) {
	pair = strings.ToUpper(pair)
	candidates, err := s.ActiveDeals(ctx, pair, tier)
	if err != nil {
		return nil, err
	}
	if len(pair) == 6 {
		inverse, err := s.ActiveDeals(ctx, pair[3:]+pair[:3], tier)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, inverse...)
	}

	type scored struct {
		deal *Deal
		rate decimal.Decimal
	}
	var eligible []scored
	one := decimal.NewFromInt(1)
	for _, d := range candidates {
		if d.RemainingAmount.LessThan(amount) || amount.LessThan(d.MinAmount) {
			continue
		}
		var rate decimal.Decimal
		switch {
		case d.Pair == pair && d.Side == side:
			rate = d.RateFor(side)
		case d.Pair != pair && d.Side != side:
			// Inverse-pair deal on the opposite side is the same
			// economic exposure; quote its reciprocal.
			rate = one.Div(d.RateFor(d.Side)).Round(6)
		default:
			continue
		}
		eligible = append(eligible, scored{deal: d, rate: rate})
	}

	if len(eligible) == 0 {
		return &BestRateResult{
			Pair: pair, Side: side, Source: SourceTreasury,
			Rate: treasuryRate, TreasuryRate: treasuryRate, SavingsBps: decimal.Zero,
		}, nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.rate.Equal(b.rate) {
			if side == model.SideSell {
				return a.rate.GreaterThan(b.rate)
			}
			return a.rate.LessThan(b.rate)
		}
		return a.deal.ValidUntil.Before(b.deal.ValidUntil)
	})

	best := eligible[0]
	betterForCustomer := best.rate.GreaterThan(treasuryRate)
	if side == model.SideBuy {
		betterForCustomer = best.rate.LessThan(treasuryRate)
	}
	if !betterForCustomer {
		return &BestRateResult{
			Pair: pair, Side: side, Source: SourceTreasury,
			Rate: treasuryRate, TreasuryRate: treasuryRate, SavingsBps: decimal.Zero,
		}, nil
	}

	savings := best.rate.Sub(treasuryRate).Abs().Div(treasuryRate).Mul(decimal.NewFromInt(10000)).Round(2)
	until := best.deal.ValidUntil
	return &BestRateResult{
		Pair:            pair,
		Side:            side,
		Source:          SourceDeal,
		Rate:            best.rate,
		DealID:          best.deal.DealID,
		AvailableAmount: best.deal.RemainingAmount,
		ValidUntil:      &until,
		TreasuryRate:    treasuryRate,
		SavingsBps:      savings,
	}, nil
}

// transition runs a single-source-state transition under the deal lock.
func (s *Store) transition(
	ctx context.Context,
	dealID string,
	from, to Status,
	actor, reason, verb string,
	guard func(*Deal) error,
) (*Deal, error) {
	return s.withDeal(ctx, dealID, func(d *Deal) error {
		if d.Status != from {
			return &StateConflictError{DealID: dealID, Current: d.Status, Attempted: verb}
		}
		if guard != nil {
			if err := guard(d); err != nil {
				return err
			}
		}
		s.applyTransition(d, from, to, actor, reason)
		return nil
	}, "deal."+strings.ToLower(string(to)))
}

// withDeal applies mutate to a copy of the deal under its lock, journals
// the result, then installs it. On journal failure the live state is
// untouched.
func (s *Store) withDeal(ctx context.Context, dealID string, mutate func(*Deal) error, eventType string) (*Deal, error) {
	e, ok := s.entry(dealID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, dealID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := s.expireLocked(ctx, e); err != nil {
		return nil, err
	}

	next := e.deal.clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.journal.append(journalRecord{Timestamp: next.UpdatedAt, Deal: next}); err != nil {
		return nil, err
	}
	e.deal = next

	s.mirror.UpsertDeal(ctx, next)
	s.publish(ctx, eventType, next)
	metrics.IncDealTransition(string(next.Status))
	return next.clone(), nil
}

func (s *Store) applyTransition(d *Deal, from, to Status, actor, reason string) {
	d.Status = to
	d.Audit = append(d.Audit, AuditEntry{
		Timestamp: s.now().UTC(),
		From:      from,
		To:        to,
		Actor:     actor,
		Reason:    reason,
	})
}

// expireLocked lazily expires an active deal past its window. Caller
// holds the entry lock.
func (s *Store) expireLocked(ctx context.Context, e *dealEntry) error {
	now := s.now().UTC()
	if !e.deal.ExpiredAt(now) {
		return nil
	}
	next := e.deal.clone()
	s.applyTransition(next, StatusActive, StatusExpired, "SYSTEM", "validity window elapsed")
	next.UpdatedAt = now
	if err := s.journal.append(journalRecord{Timestamp: now, Deal: next}); err != nil {
		return err
	}
	e.deal = next
	s.mirror.UpsertDeal(ctx, next)
	s.publish(ctx, "deal.expired", next)
	metrics.IncDealTransition(string(StatusExpired))
	return nil
}

func (s *Store) publish(ctx context.Context, eventType string, d *Deal) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishEvent(ctx, s.subject, eventType, d); err != nil {
		s.logger.Warn("deals.event_publish_failed",
			zap.String("deal_id", d.DealID),
			zap.String("event", eventType),
			zap.Error(err))
	}
}
