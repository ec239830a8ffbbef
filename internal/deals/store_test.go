package deals

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "deals.jsonl"), nil, nil, "evt.fx.deal.v1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func validCreate() CreateRequest {
	return CreateRequest{
		Pair:       "USDINR",
		Side:       model.SideSell,
		BuyRate:    decimal.RequireFromString("84.45"),
		SellRate:   decimal.RequireFromString("84.65"),
		Amount:     decimal.NewFromInt(200000),
		MinAmount:  decimal.NewFromInt(10000),
		ValidFrom:  time.Now().Add(-time.Hour),
		ValidUntil: time.Now().Add(24 * time.Hour),
		CreatedBy:  "trader-1",
	}
}

func activeDeal(t *testing.T, s *Store) *Deal {
	t.Helper()
	ctx := context.Background()
	d, err := s.Create(ctx, validCreate())
	require.NoError(t, err)
	_, err = s.Submit(ctx, d.DealID, "trader-1")
	require.NoError(t, err)
	d, err = s.Approve(ctx, d.DealID, "desk-head")
	require.NoError(t, err)
	require.Equal(t, StatusActive, d.Status)
	return d
}

// ─── Creation and validation ─────────────────────────────────────────────────

func TestCreate_Valid(t *testing.T) {
	s := newTestStore(t)

	d, err := s.Create(context.Background(), validCreate())
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, d.Status)
	assert.True(t, d.RemainingAmount.Equal(d.Amount))
	assert.Len(t, d.Audit, 1)
	assert.Equal(t, StatusDraft, d.Audit[0].To)
}

func TestCreate_RejectsInvertedRates(t *testing.T) {
	s := newTestStore(t)

	req := validCreate()
	req.BuyRate = decimal.RequireFromString("85.00")
	_, err := s.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreate_RejectsLongValidity(t *testing.T) {
	s := newTestStore(t)

	req := validCreate()
	req.ValidUntil = req.ValidFrom.Add(8 * 24 * time.Hour)
	_, err := s.Create(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

// ─── State machine ───────────────────────────────────────────────────────────

func TestLifecycle_DraftToActive(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	// Audit trail records every transition in order.
	require.Len(t, d.Audit, 3)
	assert.Equal(t, StatusDraft, d.Audit[0].To)
	assert.Equal(t, StatusPendingApproval, d.Audit[1].To)
	assert.Equal(t, StatusActive, d.Audit[2].To)
	for i := 1; i < len(d.Audit); i++ {
		assert.False(t, d.Audit[i].Timestamp.Before(d.Audit[i-1].Timestamp))
		assert.Equal(t, d.Audit[i-1].To, d.Audit[i].From)
	}
	assert.Equal(t, d.Status, d.Audit[len(d.Audit)-1].To)
}

func TestApprove_OnDraftConflicts(t *testing.T) {
	s := newTestStore(t)
	d, err := s.Create(context.Background(), validCreate())
	require.NoError(t, err)

	_, err = s.Approve(context.Background(), d.DealID, "desk-head")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)

	var conflict *StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, StatusDraft, conflict.Current)
}

func TestApprove_SelfApprovalRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d, err := s.Create(ctx, validCreate())
	require.NoError(t, err)
	_, err = s.Submit(ctx, d.DealID, "trader-1")
	require.NoError(t, err)

	_, err = s.Approve(ctx, d.DealID, "trader-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestReject_RequiresReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	d, err := s.Create(ctx, validCreate())
	require.NoError(t, err)
	_, err = s.Submit(ctx, d.DealID, "trader-1")
	require.NoError(t, err)

	_, err = s.Reject(ctx, d.DealID, "desk-head", "")
	require.Error(t, err)

	rejected, err := s.Reject(ctx, d.DealID, "desk-head", "off market")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
}

func TestCancel_FromAnyOpenState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	d, err := s.Create(ctx, validCreate())
	require.NoError(t, err)
	cancelled, err := s.Cancel(ctx, d.DealID, "trader-1", "fat finger")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = s.Cancel(ctx, d.DealID, "trader-1", "again")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestUpdate_DraftOnly(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	newRate := decimal.RequireFromString("84.70")
	_, err := s.Update(context.Background(), d.DealID, UpdateRequest{SellRate: &newRate}, "trader-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStateConflict)
}

// ─── Expiry ──────────────────────────────────────────────────────────────────

func TestExpiry_LazyOnRead(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	s.now = func() time.Time { return time.Now().Add(48 * time.Hour) }

	got, err := s.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Equal(t, "SYSTEM", got.Audit[len(got.Audit)-1].Actor)
}

func TestExpiry_StillActiveAtExactValidUntil(t *testing.T) {
	s := newTestStore(t)

	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	req := validCreate()
	req.ValidUntil = until
	ctx := context.Background()
	d, err := s.Create(ctx, req)
	require.NoError(t, err)
	_, err = s.Submit(ctx, d.DealID, "trader-1")
	require.NoError(t, err)
	_, err = s.Approve(ctx, d.DealID, "desk-head")
	require.NoError(t, err)

	s.now = func() time.Time { return until }

	got, err := s.Get(ctx, d.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status, "a deal is still ACTIVE at exactly valid_until")
}

// ─── Utilisation ─────────────────────────────────────────────────────────────

func TestUtilize_ReducesRemainingAndAudits(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	util, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(100000),
		CustomerID: "CUST-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "100000", util.RemainingAfter.String())
	assert.True(t, util.RateApplied.Equal(decimal.RequireFromString("84.65")))

	got, err := s.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, "100000", got.RemainingAmount.String())
	assert.Equal(t, StatusActive, got.Status)
	require.Len(t, got.Utilizations, 1)

	// Sum of utilisations equals amount − remaining.
	total := decimal.Zero
	for _, u := range got.Utilizations {
		total = total.Add(u.Amount)
	}
	assert.True(t, total.Equal(got.Amount.Sub(got.RemainingAmount)))
}

func TestUtilize_ZeroAmountRejected(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	_, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.Zero,
		CustomerID: "CUST-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUtilize_BelowMinimumRejected(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	_, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(500),
		CustomerID: "CUST-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUtilize_ExceedingRemainingFails(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	_, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(300000),
		CustomerID: "CUST-1",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestUtilize_FullDrawFullyUtilizes(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	_, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(200000),
		CustomerID: "CUST-1",
	})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusFullyUtilized, got.Status)
	assert.True(t, got.RemainingAmount.IsZero())
}

func TestUtilize_RemainderBelowMinimumFullyUtilizes(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s)

	// 195 000 of 200 000 leaves 5 000, below the 10 000 deal minimum.
	_, err := s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(195000),
		CustomerID: "CUST-1",
	})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusFullyUtilized, got.Status)
}

func TestUtilize_ConcurrentDrawsSerialize(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s) // 200 000 available

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Utilize(context.Background(), d.DealID, UtilizeRequest{
				Amount:     decimal.NewFromInt(150000),
				CustomerID: "CUST-1",
			})
		}(i)
	}
	wg.Wait()

	// Exactly one 150k draw fits in 200k.
	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded)

	got, err := s.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, "50000", got.RemainingAmount.String())
}

// ─── Durability ──────────────────────────────────────────────────────────────

func TestJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.jsonl")
	s, err := NewStore(path, nil, nil, "evt.fx.deal.v1", nil)
	require.NoError(t, err)

	d := activeDeal(t, s)
	_, err = s.Utilize(context.Background(), d.DealID, UtilizeRequest{
		Amount:     decimal.NewFromInt(50000),
		CustomerID: "CUST-1",
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewStore(path, nil, nil, "evt.fx.deal.v1", nil)
	require.NoError(t, err)
	defer reopened.Close() //nolint:errcheck

	got, err := reopened.Get(context.Background(), d.DealID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
	assert.Equal(t, "150000", got.RemainingAmount.String())
	assert.Len(t, got.Utilizations, 1)
}

// ─── Best-rate arbitration ───────────────────────────────────────────────────

func TestBestRate_DealPreemptsTreasury(t *testing.T) {
	s := newTestStore(t)
	d := activeDeal(t, s) // SELL at 84.65

	res, err := s.BestRate(context.Background(), "USDINR", model.SideSell,
		decimal.NewFromInt(100000), "", decimal.RequireFromString("84.55"))
	require.NoError(t, err)

	assert.Equal(t, SourceDeal, res.Source)
	assert.Equal(t, d.DealID, res.DealID)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("84.65")))
	assert.True(t, res.SavingsBps.GreaterThan(decimal.Zero))
}

func TestBestRate_TreasuryWinsWhenDealWorse(t *testing.T) {
	s := newTestStore(t)
	activeDeal(t, s) // SELL at 84.65

	res, err := s.BestRate(context.Background(), "USDINR", model.SideSell,
		decimal.NewFromInt(100000), "", decimal.RequireFromString("84.80"))
	require.NoError(t, err)

	assert.Equal(t, SourceTreasury, res.Source)
	assert.Empty(t, res.DealID)
	assert.True(t, res.SavingsBps.IsZero())
}

func TestBestRate_RespectsRemainingAndMinimum(t *testing.T) {
	s := newTestStore(t)
	activeDeal(t, s) // remaining 200k, min 10k

	// Above remaining: treasury wins.
	res, err := s.BestRate(context.Background(), "USDINR", model.SideSell,
		decimal.NewFromInt(250000), "", decimal.RequireFromString("84.55"))
	require.NoError(t, err)
	assert.Equal(t, SourceTreasury, res.Source)

	// Below deal minimum: treasury wins.
	res, err = s.BestRate(context.Background(), "USDINR", model.SideSell,
		decimal.NewFromInt(5000), "", decimal.RequireFromString("84.55"))
	require.NoError(t, err)
	assert.Equal(t, SourceTreasury, res.Source)
}

func TestBestRate_RanksMultipleDeals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mk := func(sellRate string) {
		req := validCreate()
		req.SellRate = decimal.RequireFromString(sellRate)
		d, err := s.Create(ctx, req)
		require.NoError(t, err)
		_, err = s.Submit(ctx, d.DealID, "trader-1")
		require.NoError(t, err)
		_, err = s.Approve(ctx, d.DealID, "desk-head")
		require.NoError(t, err)
	}
	mk("84.60")
	mk("84.70")
	mk("84.65")

	res, err := s.BestRate(ctx, "USDINR", model.SideSell,
		decimal.NewFromInt(50000), "", decimal.RequireFromString("84.55"))
	require.NoError(t, err)
	assert.Equal(t, SourceDeal, res.Source)
	assert.True(t, res.Rate.Equal(decimal.RequireFromString("84.70")), "SELL ranks by sell_rate descending")
}

func TestBestRate_TierRestrictedDealFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	req := validCreate()
	req.CustomerTier = "PLATINUM"
	d, err := s.Create(ctx, req)
	require.NoError(t, err)
	_, err = s.Submit(ctx, d.DealID, "trader-1")
	require.NoError(t, err)
	_, err = s.Approve(ctx, d.DealID, "desk-head")
	require.NoError(t, err)

	res, err := s.BestRate(ctx, "USDINR", model.SideSell,
		decimal.NewFromInt(50000), "GOLD", decimal.RequireFromString("84.55"))
	require.NoError(t, err)
	assert.Equal(t, SourceTreasury, res.Source, "a PLATINUM-restricted deal is invisible to GOLD")
}

// ─── Listing ─────────────────────────────────────────────────────────────────

func TestList_FiltersAndPaginates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, validCreate())
		require.NoError(t, err)
	}
	req := validCreate()
	req.Pair = "EURUSD"
	req.BuyRate = decimal.RequireFromString("1.05")
	req.SellRate = decimal.RequireFromString("1.06")
	_, err := s.Create(ctx, req)
	require.NoError(t, err)

	all, total, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)

	usdinr, total, err := s.List(ctx, ListFilter{Pair: "USDINR"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, usdinr, 3)

	page, total, err := s.List(ctx, ListFilter{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, page, 1)
}
