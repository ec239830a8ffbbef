package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSide(t *testing.T) {
	side, err := ParseSide("buy")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, side)

	side, err = ParseSide("")
	require.NoError(t, err)
	assert.Equal(t, SideSell, side)

	_, err = ParseSide("HOLD")
	require.Error(t, err)
}

func TestPositionBiasBps(t *testing.T) {
	assert.Equal(t, -3, PositionBiasBps(PositionLong, SideSell))
	assert.Equal(t, 3, PositionBiasBps(PositionLong, SideBuy))
	assert.Equal(t, 3, PositionBiasBps(PositionShort, SideSell))
	assert.Equal(t, -3, PositionBiasBps(PositionShort, SideBuy))
	assert.Equal(t, 0, PositionBiasBps(PositionNeutral, SideSell))
}

func TestApplyBps_SignDisadvantagesCustomer(t *testing.T) {
	base := decimal.RequireFromString("84.50")
	bps := decimal.NewFromInt(100)

	sell := ApplyBps(base, bps, SideSell)
	buy := ApplyBps(base, bps, SideBuy)

	assert.True(t, sell.LessThan(base), "SELL customers receive less")
	assert.True(t, buy.GreaterThan(base), "BUY customers pay more")
}

func TestTreasuryRate_Invert(t *testing.T) {
	r := TreasuryRate{
		Pair:       "USDINR",
		Bid:        decimal.RequireFromString("84.42"),
		Ask:        decimal.RequireFromString("84.58"),
		Mid:        decimal.RequireFromString("84.50"),
		Position:   PositionLong,
		ValidUntil: time.Now().Add(time.Hour),
	}

	inv := r.Invert("INRUSD")
	assert.Equal(t, "INRUSD", inv.Pair)
	assert.True(t, inv.Bid.LessThanOrEqual(inv.Mid))
	assert.True(t, inv.Mid.LessThanOrEqual(inv.Ask))
	assert.Equal(t, PositionShort, inv.Position)
}

func TestObjectiveWeights_SumToOne(t *testing.T) {
	for _, o := range []Objective{ObjectiveBestRate, ObjectiveOptimum, ObjectiveFastestExecution, ObjectiveMaxSTP} {
		w := ObjectiveWeights(o)
		assert.InDelta(t, 1.0, w.Rate+w.Reliability+w.Speed+w.STP, 1e-9, string(o))
	}
}
