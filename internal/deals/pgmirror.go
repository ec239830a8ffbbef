package deals

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Mirror projects deal state into Postgres for reporting. The journal is
// the durable source of truth; the mirror is nil-safe and best effort —
// a mirror failure never fails a transition.
type Mirror struct {
	pg     *pgxpool.Pool
	logger *zap.Logger
}

// NewMirror creates a mirror over an optional pool. A nil pool yields a
// no-op mirror.
func NewMirror(pg *pgxpool.Pool, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{pg: pg, logger: logger}
}

// UpsertDeal projects the deal snapshot.
func (m *Mirror) UpsertDeal(ctx context.Context, d *Deal) {
	if m == nil || m.pg == nil {
		return
	}
	_, err := m.pg.Exec(ctx, `
		INSERT INTO fx.deal_snapshot (
			deal_id, pair, side, buy_rate, sell_rate, amount,
			min_amount, remaining_amount, customer_tier,
			valid_from, valid_until, status, created_by, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (deal_id)
		DO UPDATE SET
			buy_rate = EXCLUDED.buy_rate,
			sell_rate = EXCLUDED.sell_rate,
			amount = EXCLUDED.amount,
			min_amount = EXCLUDED.min_amount,
			remaining_amount = EXCLUDED.remaining_amount,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at;
	`, d.DealID, d.Pair, d.Side, d.BuyRate, d.SellRate, d.Amount,
		d.MinAmount, d.RemainingAmount, d.CustomerTier,
		d.ValidFrom, d.ValidUntil, d.Status, d.CreatedBy, d.UpdatedAt)
	if err != nil {
		m.logger.Error("deals.pg.upsert_failed", zap.String("deal_id", d.DealID), zap.Error(err))
	}
}

// RecordUtilization appends an immutable utilisation event row.
func (m *Mirror) RecordUtilization(ctx context.Context, dealID string, u Utilization) {
	if m == nil || m.pg == nil {
		return
	}
	_, err := m.pg.Exec(ctx, `
		INSERT INTO fx.deal_utilization (
			utilization_id, deal_id, amount, rate_applied,
			remaining_after, utilized_by, transaction_ref, utilized_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.UtilizationID, dealID, u.Amount, u.RateApplied,
		u.RemainingAfter, u.By, u.TransactionRef, u.Timestamp)
	if err != nil {
		m.logger.Error("deals.pg.utilization_insert_failed", zap.String("deal_id", dealID), zap.Error(err))
	}
}
