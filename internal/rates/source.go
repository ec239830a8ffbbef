package rates

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// ErrRateUnavailable is returned when no rate exists for a pair, neither
// directly, by inversion, nor by USD cross-rate derivation.
var ErrRateUnavailable = errors.New("rate unavailable")

// Source supplies treasury mid/bid/ask for a currency pair along with the
// desk's position hint.
type Source interface {
	Rate(ctx context.Context, pair string) (model.TreasuryRate, error)
}

// Lister exposes the full rate snapshot for the treasury-rates endpoint.
type Lister interface {
	List(ctx context.Context) ([]model.TreasuryRate, error)
}

// StaticSource is an in-memory rate table. It backs the service in
// environments without a market-data feed, and is the sink the websocket
// feed writes into when one is configured.
type StaticSource struct {
	mu    sync.RWMutex
	rates map[string]model.TreasuryRate
}

// NewStaticSource creates a source seeded with the desk's default book.
func NewStaticSource() *StaticSource {
	s := &StaticSource{rates: make(map[string]model.TreasuryRate)}
	for _, r := range defaultBook() {
		s.rates[r.Pair] = r
	}
	return s
}

// Set installs or replaces the rate for a pair.
func (s *StaticSource) Set(r model.TreasuryRate) {
	s.mu.Lock()
	s.rates[r.Pair] = r
	s.mu.Unlock()
}

// Rate resolves a pair directly, by inversion, or by USD cross-rate.
func (s *StaticSource) Rate(_ context.Context, pair string) (model.TreasuryRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.rates[pair]; ok {
		return r, nil
	}

	if len(pair) == 6 {
		src, tgt := pair[:3], pair[3:]
		if r, ok := s.rates[tgt+src]; ok {
			return r.Invert(pair), nil
		}
		if r, err := s.cross(src, tgt); err == nil {
			return r, nil
		}
	}

	return model.TreasuryRate{}, fmt.Errorf("%w: %s", ErrRateUnavailable, pair)
}

// cross derives srcTgt via USD: srcTgt = srcUSD × USDtgt, using mids and
// propagating the worst of the two spreads. Cross-rates are never cached;
// they are derived on demand. Caller holds the read lock.
func (s *StaticSource) cross(src, tgt string) (model.TreasuryRate, error) {
	legA, okA := s.usdLeg(src) // USD per 1 src
	legB, okB := s.usdLeg(tgt) // USD per 1 tgt
	if !okA || !okB {
		return model.TreasuryRate{}, ErrRateUnavailable
	}

	mid := legA.mid.Div(legB.mid)
	spread := legA.spreadBps
	if legB.spreadBps.GreaterThan(spread) {
		spread = legB.spreadBps
	}
	half := mid.Mul(spread).Div(decimal.NewFromInt(20000))

	until := legA.validUntil
	if legB.validUntil.Before(until) {
		until = legB.validUntil
	}

	return model.TreasuryRate{
		Pair:       src + tgt,
		Bid:        mid.Sub(half),
		Ask:        mid.Add(half),
		Mid:        mid,
		Position:   model.PositionNeutral,
		ValidUntil: until,
	}, nil
}

type usdLeg struct {
	mid        decimal.Decimal // USD per 1 unit of ccy
	spreadBps  decimal.Decimal
	validUntil time.Time
}

func (s *StaticSource) usdLeg(ccy string) (usdLeg, bool) {
	if ccy == "USD" {
		return usdLeg{mid: decimal.NewFromInt(1), validUntil: time.Now().Add(time.Hour)}, true
	}
	if r, ok := s.rates[ccy+"USD"]; ok {
		return usdLeg{mid: r.Mid, spreadBps: spreadBps(r), validUntil: r.ValidUntil}, true
	}
	if r, ok := s.rates["USD"+ccy]; ok {
		one := decimal.NewFromInt(1)
		return usdLeg{mid: one.Div(r.Mid), spreadBps: spreadBps(r), validUntil: r.ValidUntil}, true
	}
	return usdLeg{}, false
}

func spreadBps(r model.TreasuryRate) decimal.Decimal {
	if r.Mid.IsZero() {
		return decimal.Zero
	}
	return r.Ask.Sub(r.Bid).Div(r.Mid).Mul(decimal.NewFromInt(10000))
}

// List returns the current book sorted by pair.
func (s *StaticSource) List(_ context.Context) ([]model.TreasuryRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TreasuryRate, 0, len(s.rates))
	for _, r := range s.rates {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair < out[j].Pair })
	return out, nil
}

func defaultBook() []model.TreasuryRate {
	now := time.Now().UTC()
	until := now.Add(24 * time.Hour)
	mk := func(pair string, bid, ask string, pos model.TreasuryPosition, minBps, tgtBps int, maxExp, curExp int64) model.TreasuryRate {
		b := decimal.RequireFromString(bid)
		a := decimal.RequireFromString(ask)
		return model.TreasuryRate{
			Pair:            pair,
			Bid:             b,
			Ask:             a,
			Mid:             b.Add(a).Div(decimal.NewFromInt(2)),
			MinMarginBps:    minBps,
			TargetMarginBps: tgtBps,
			MaxExposure:     decimal.NewFromInt(maxExp),
			CurrentExposure: decimal.NewFromInt(curExp),
			Position:        pos,
			ValidUntil:      until,
		}
	}
	return []model.TreasuryRate{
		mk("USDINR", "84.42", "84.58", model.PositionLong, 5, 15, 50_000_000, 18_000_000),
		mk("EURINR", "89.05", "89.35", model.PositionNeutral, 8, 20, 20_000_000, 4_500_000),
		mk("GBPINR", "106.30", "106.70", model.PositionShort, 8, 20, 15_000_000, 9_000_000),
		mk("EURUSD", "1.0552", "1.0562", model.PositionNeutral, 2, 6, 100_000_000, 32_000_000),
		mk("GBPUSD", "1.2598", "1.2610", model.PositionNeutral, 2, 6, 80_000_000, 12_000_000),
		mk("USDJPY", "154.72", "154.88", model.PositionLong, 3, 8, 60_000_000, 41_000_000),
		mk("AEDINR", "22.98", "23.04", model.PositionNeutral, 10, 25, 10_000_000, 1_200_000),
		mk("SGDINR", "62.70", "63.00", model.PositionNeutral, 10, 25, 10_000_000, 2_800_000),
		mk("USDSGD", "1.3392", "1.3408", model.PositionNeutral, 3, 8, 40_000_000, 7_500_000),
		mk("USDCNY", "7.2460", "7.2540", model.PositionShort, 5, 12, 30_000_000, 22_000_000),
		mk("USDHKD", "7.8180", "7.8220", model.PositionNeutral, 2, 5, 40_000_000, 6_000_000),
		mk("USDTHB", "34.46", "34.54", model.PositionNeutral, 6, 15, 20_000_000, 3_300_000),
		mk("USDAED", "3.6695", "3.6715", model.PositionNeutral, 2, 5, 40_000_000, 9_800_000),
	}
}
