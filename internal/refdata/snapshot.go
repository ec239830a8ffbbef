package refdata

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Snapshot is one immutable generation of every reference table. Readers
// acquire a snapshot pointer once per request and hold it; reloads and
// admin mutations swap whole snapshots, never mutate one in place.
type Snapshot struct {
	Providers       map[string]Provider
	Tiers           map[string]Tier
	Segments        map[string]Segment
	AmountTiers     []AmountTier // sorted by Order
	Categories      map[string]CurrencyCategory
	CategoryMarkups map[CurrencyCategory]CategoryMarkup
	CBDCs           map[string]CBDC
	Stablecoins     map[string]Stablecoin
	Ramps           []Ramp
	Rails           map[string]Rail
	NexusFiats      map[string]bool
	AtomicSwaps     []AtomicSwapPair
	LoadedAt        time.Time
}

// ProviderList returns providers sorted by ID for deterministic iteration.
func (s *Snapshot) ProviderList() []Provider {
	out := make([]Provider, 0, len(s.Providers))
	for _, p := range s.Providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TierList returns tiers sorted by ID.
func (s *Snapshot) TierList() []Tier {
	out := make([]Tier, 0, len(s.Tiers))
	for _, t := range s.Tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SegmentList returns segments sorted by ID.
func (s *Snapshot) SegmentList() []Segment {
	out := make([]Segment, 0, len(s.Segments))
	for _, seg := range s.Segments {
		out = append(out, seg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AmountTierFor returns the tier containing amount. The tiers partition
// the positive reals into half-open intervals, so exactly one matches;
// the first tier is the fallback for malformed configurations.
func (s *Snapshot) AmountTierFor(amount decimal.Decimal) AmountTier {
	for _, t := range s.AmountTiers {
		if t.Contains(amount) {
			return t
		}
	}
	return s.AmountTiers[0]
}

// CategoryOf returns the currency's liquidity category, defaulting to
// MINOR for unknown codes.
func (s *Snapshot) CategoryOf(ccy string) CurrencyCategory {
	if c, ok := s.Categories[strings.ToUpper(ccy)]; ok {
		return c
	}
	return CategoryMinor
}

// PairCategory returns the category of the less liquid side of a pair.
func (s *Snapshot) PairCategory(base, quote string) CurrencyCategory {
	return LessLiquid(s.CategoryOf(base), s.CategoryOf(quote))
}

// CategoryMarkupFor returns the per-segment currency markup in bps.
func (s *Snapshot) CategoryMarkupFor(cat CurrencyCategory, segmentID string) int {
	m, ok := s.CategoryMarkups[cat]
	if !ok {
		m = s.CategoryMarkups[CategoryMinor]
	}
	return m.ForSegment(segmentID)
}

// RailTypeOf classifies a currency code onto its settlement rail. The
// classification is total: any code outside the digital registries is fiat.
func (s *Snapshot) RailTypeOf(code string) model.RailType {
	if _, ok := s.CBDCs[code]; ok {
		return model.RailCBDC
	}
	if _, ok := s.Stablecoins[strings.ToUpper(code)]; ok {
		return model.RailStablecoin
	}
	return model.RailFiat
}

// FiatOf resolves the fiat anchor for any currency: itself for fiat, the
// linked fiat for a CBDC, the peg for a stablecoin.
func (s *Snapshot) FiatOf(code string) string {
	if c, ok := s.CBDCs[code]; ok {
		return c.LinkedFiat
	}
	if st, ok := s.Stablecoins[strings.ToUpper(code)]; ok {
		return st.PegCurrency
	}
	return strings.ToUpper(code)
}

// CBDCForFiat returns the CBDC linked to a fiat currency, if any.
func (s *Snapshot) CBDCForFiat(fiat string) (CBDC, bool) {
	for _, c := range s.CBDCs {
		if c.LinkedFiat == strings.ToUpper(fiat) {
			return c, true
		}
	}
	return CBDC{}, false
}

// MBridgePair reports whether both CBDCs participate in mBridge.
func (s *Snapshot) MBridgePair(a, b string) bool {
	ca, okA := s.CBDCs[a]
	cb, okB := s.CBDCs[b]
	return okA && okB && ca.MBridgeParticipant && cb.MBridgeParticipant
}

// AtomicSwap returns the corridor entry for a CBDC/stablecoin pair, in
// either direction.
func (s *Snapshot) AtomicSwap(cbdc, stable string) (AtomicSwapPair, bool) {
	for _, p := range s.AtomicSwaps {
		if p.CBDC == cbdc && strings.EqualFold(p.Stablecoin, stable) {
			return p, true
		}
	}
	return AtomicSwapPair{}, false
}

// CheapestRamp returns the lowest-fee ramp supporting the stablecoin in
// the given direction. Ties resolve to the more reliable ramp.
func (s *Snapshot) CheapestRamp(stable string, dir RampDirection) (Ramp, bool) {
	var best Ramp
	found := false
	for _, r := range s.Ramps {
		if !r.Supports(stable, dir) {
			continue
		}
		if !found || r.FeeBps < best.FeeBps ||
			(r.FeeBps == best.FeeBps && r.Reliability > best.Reliability) {
			best = r
			found = true
		}
	}
	return best, found
}

// RailMeta returns mechanism metadata, with a conservative default for
// unregistered mechanisms.
func (s *Snapshot) RailMeta(mechanism string) Rail {
	if r, ok := s.Rails[mechanism]; ok {
		return r
	}
	return Rail{Mechanism: mechanism, Name: mechanism, Reliability: 0.95, Regulated: true, STPCapable: true}
}
