package multirail

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Checker-Finance/fx-router/internal/refdata"
	"github.com/Checker-Finance/fx-router/pkg/model"
)

// Template is one entry of the conversion catalogue. The catalogue is
// data, not code: materialisation substitutes concrete registry entries
// into the template's leg plan.
type Template struct {
	Name        string
	SrcRail     model.RailType
	TgtRail     model.RailType
	Rail        model.RailType // rail label the materialised route carries
	FeeBps      int
	SlippageBps int
}

// Inapplicable is the typed reason a template could not be materialised
// for a request.
type Inapplicable struct {
	Template string `json:"template"`
	Reason   string `json:"reason"`
}

// Catalogue enumerates all 31 conversion templates across the 9 rail
// pairs. Changing an entry is a semantic change to the routing contract.
var Catalogue = []Template{
	// Fiat → Fiat
	{Name: "SWIFT", SrcRail: model.RailFiat, TgtRail: model.RailFiat, Rail: model.RailFiat, FeeBps: 25},
	{Name: "LOCAL", SrcRail: model.RailFiat, TgtRail: model.RailFiat, Rail: model.RailFiat, FeeBps: 15},
	{Name: "FINTECH", SrcRail: model.RailFiat, TgtRail: model.RailFiat, Rail: model.RailFiat, FeeBps: 6},
	{Name: "TRIANGULATED", SrcRail: model.RailFiat, TgtRail: model.RailFiat, Rail: model.RailFiat, FeeBps: 30},
	// Fiat → CBDC
	{Name: "DIRECT_MINT", SrcRail: model.RailFiat, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 0},
	{Name: "FX_THEN_MINT", SrcRail: model.RailFiat, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 20},
	{Name: "MBRIDGE_ROUTE", SrcRail: model.RailFiat, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 13},
	// CBDC → Fiat
	{Name: "DIRECT_REDEEM", SrcRail: model.RailCBDC, TgtRail: model.RailFiat, Rail: model.RailCBDC, FeeBps: 0},
	{Name: "REDEEM_THEN_FX", SrcRail: model.RailCBDC, TgtRail: model.RailFiat, Rail: model.RailCBDC, FeeBps: 20},
	// CBDC → CBDC
	{Name: "MBRIDGE_PVP", SrcRail: model.RailCBDC, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 13},
	{Name: "PROJECT_NEXUS", SrcRail: model.RailCBDC, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 35},
	{Name: "FIAT_BRIDGE", SrcRail: model.RailCBDC, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 40},
	// Fiat → Stablecoin
	{Name: "CIRCLE_ONRAMP", SrcRail: model.RailFiat, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 0},
	{Name: "CEX_ONRAMP", SrcRail: model.RailFiat, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 25},
	{Name: "FX_ONRAMP", SrcRail: model.RailFiat, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 50},
	// Stablecoin → Fiat
	{Name: "CIRCLE_OFFRAMP", SrcRail: model.RailStablecoin, TgtRail: model.RailFiat, Rail: model.RailStablecoin, FeeBps: 0},
	{Name: "CEX_OFFRAMP", SrcRail: model.RailStablecoin, TgtRail: model.RailFiat, Rail: model.RailStablecoin, FeeBps: 25},
	{Name: "OFFRAMP_FX", SrcRail: model.RailStablecoin, TgtRail: model.RailFiat, Rail: model.RailStablecoin, FeeBps: 50},
	// Stablecoin → Stablecoin
	{Name: "CURVE", SrcRail: model.RailStablecoin, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 4, SlippageBps: 5},
	{Name: "UNISWAP", SrcRail: model.RailStablecoin, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 30, SlippageBps: 20},
	{Name: "CEX", SrcRail: model.RailStablecoin, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 20},
	// CBDC → Stablecoin
	{Name: "FIAT_BRIDGE", SrcRail: model.RailCBDC, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 25},
	{Name: "CEX_BRIDGE", SrcRail: model.RailCBDC, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 50},
	{Name: "MBRIDGE_HYBRID", SrcRail: model.RailCBDC, TgtRail: model.RailStablecoin, Rail: model.RailCBDC, FeeBps: 38},
	{Name: "DEX_LIQUIDITY", SrcRail: model.RailCBDC, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 35, SlippageBps: 35},
	{Name: "ATOMIC_SWAP", SrcRail: model.RailCBDC, TgtRail: model.RailStablecoin, Rail: model.RailStablecoin, FeeBps: 5, SlippageBps: 10},
	// Stablecoin → CBDC
	{Name: "FIAT_BRIDGE", SrcRail: model.RailStablecoin, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 25},
	{Name: "CEX_BRIDGE", SrcRail: model.RailStablecoin, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 50},
	{Name: "OTC", SrcRail: model.RailStablecoin, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 15},
	{Name: "LIQUIDITY_POOL", SrcRail: model.RailStablecoin, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 40, SlippageBps: 40},
	{Name: "ATOMIC_SWAP", SrcRail: model.RailStablecoin, TgtRail: model.RailCBDC, Rail: model.RailCBDC, FeeBps: 5, SlippageBps: 10},
}

// TemplatesFor returns the catalogue subset for a rail-pair class.
func TemplatesFor(src, tgt model.RailType) []Template {
	var out []Template
	for _, t := range Catalogue {
		if t.SrcRail == src && t.TgtRail == tgt {
			out = append(out, t)
		}
	}
	return out
}

// leg builds a leg with mechanism metadata from the rail registry,
// allowing per-entity reliability overrides.
func leg(snap *refdata.Snapshot, mechanism, from, to, ref string, feeBps, settle int) Leg {
	meta := snap.RailMeta(mechanism)
	return Leg{
		From:              from,
		To:                to,
		Mechanism:         mechanism,
		Ref:               ref,
		FeeBps:            feeBps,
		SettlementSeconds: settle,
		STPCapable:        meta.STPCapable,
		Reliability:       meta.Reliability,
		Regulated:         meta.Regulated,
	}
}

// materialize instantiates one template for a request against the current
// registries. It is a pure function of its inputs: every template either
// yields a route or a typed Inapplicable reason.
func (r *Router) materialize(tpl Template, req Request, snap *refdata.Snapshot) (Route, *Inapplicable) {
	src, tgt := req.SourceCurrency, req.TargetCurrency
	srcFiat, tgtFiat := snap.FiatOf(src), snap.FiatOf(tgt)
	nope := func(format string, args ...any) (Route, *Inapplicable) {
		return Route{}, &Inapplicable{Template: tpl.Name, Reason: fmt.Sprintf(format, args...)}
	}

	route := Route{
		RouteID:  fmt.Sprintf("%s-%s", tpl.Name, r.newID()),
		Template: tpl.Name,
		Rail:     tpl.Rail,
	}

	switch {
	case tpl.SrcRail == model.RailFiat && tpl.TgtRail == model.RailFiat:
		switch tpl.Name {
		case "SWIFT":
			ref := r.providerRef(snap, refdata.ProviderCorrespondent, model.PairKey(src, tgt))
			route.Legs = []Leg{leg(snap, "SWIFT", src, tgt, ref, 25, 172800)}
		case "LOCAL":
			ref := r.providerRef(snap, refdata.ProviderLocal, model.PairKey(src, tgt))
			if ref == "" {
				return nope("no active local provider quotes %s%s", src, tgt)
			}
			route.Legs = []Leg{leg(snap, "LOCAL_RAILS", src, tgt, ref, 15, 14400)}
		case "FINTECH":
			ref := r.providerRef(snap, refdata.ProviderFintech, model.PairKey(src, tgt))
			if ref == "" {
				return nope("no active fintech provider quotes %s%s", src, tgt)
			}
			route.Legs = []Leg{leg(snap, "FINTECH", src, tgt, ref, 6, 7200)}
		case "TRIANGULATED":
			if src == "USD" || tgt == "USD" {
				return nope("pair already anchors on the bridge currency")
			}
			route.Legs = []Leg{
				leg(snap, "FX", src, "USD", "SWIFT", 15, 172800),
				leg(snap, "FX", "USD", tgt, "SWIFT", 15, 172800),
			}
		}

	case tpl.SrcRail == model.RailFiat && tpl.TgtRail == model.RailCBDC:
		cbdc, ok := snap.CBDCs[tgt]
		if !ok {
			return nope("%s is not a registered CBDC", tgt)
		}
		switch tpl.Name {
		case "DIRECT_MINT":
			if cbdc.LinkedFiat != srcFiat {
				return nope("%s is not the linked fiat of %s", srcFiat, tgt)
			}
			route.Legs = []Leg{leg(snap, "CBDC_MINT", src, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds)}
		case "FX_THEN_MINT":
			if cbdc.LinkedFiat == srcFiat {
				return nope("direct mint applies; no FX leg needed")
			}
			route.Legs = []Leg{
				leg(snap, "FX", src, cbdc.LinkedFiat, "SWIFT", 20, 14400),
				leg(snap, "CBDC_MINT", cbdc.LinkedFiat, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds),
			}
		case "MBRIDGE_ROUTE":
			srcCBDC, ok := snap.CBDCForFiat(srcFiat)
			if !ok || !srcCBDC.MBridgeParticipant || !cbdc.MBridgeParticipant {
				return nope("no mBridge corridor between %s and %s", srcFiat, tgt)
			}
			route.Legs = []Leg{
				leg(snap, "CBDC_MINT", src, srcCBDC.Code, srcCBDC.Issuer, 0, srcCBDC.SettlementSeconds),
				leg(snap, "MBRIDGE", srcCBDC.Code, tgt, "mBridge", 13, 15),
			}
			route.Annotations.MBridge = true
		}

	case tpl.SrcRail == model.RailCBDC && tpl.TgtRail == model.RailFiat:
		cbdc, ok := snap.CBDCs[src]
		if !ok {
			return nope("%s is not a registered CBDC", src)
		}
		switch tpl.Name {
		case "DIRECT_REDEEM":
			if cbdc.LinkedFiat != tgtFiat {
				return nope("%s does not redeem into %s", src, tgtFiat)
			}
			route.Legs = []Leg{leg(snap, "CBDC_REDEEM", src, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds)}
		case "REDEEM_THEN_FX":
			if cbdc.LinkedFiat == tgtFiat {
				return nope("direct redeem applies; no FX leg needed")
			}
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, cbdc.LinkedFiat, cbdc.Issuer, 0, cbdc.SettlementSeconds),
				leg(snap, "FX", cbdc.LinkedFiat, tgt, "SWIFT", 20, 14400),
			}
		}

	case tpl.SrcRail == model.RailCBDC && tpl.TgtRail == model.RailCBDC:
		srcCBDC, okS := snap.CBDCs[src]
		tgtCBDC, okT := snap.CBDCs[tgt]
		if !okS || !okT {
			return nope("both endpoints must be registered CBDCs")
		}
		switch tpl.Name {
		case "MBRIDGE_PVP":
			if !snap.MBridgePair(src, tgt) {
				return nope("%s and %s are not both mBridge participants", src, tgt)
			}
			route.Legs = []Leg{leg(snap, "MBRIDGE", src, tgt, "mBridge", 13, 15)}
			route.Annotations.MBridge = true
			route.Annotations.Benefits = []string{"payment-versus-payment settlement", "central bank money both legs"}
		case "PROJECT_NEXUS":
			if !snap.NexusFiats[srcCBDC.LinkedFiat] || !snap.NexusFiats[tgtCBDC.LinkedFiat] {
				return nope("%s or %s is outside the Nexus fast-payment set", srcCBDC.LinkedFiat, tgtCBDC.LinkedFiat)
			}
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, srcCBDC.LinkedFiat, srcCBDC.Issuer, 0, srcCBDC.SettlementSeconds),
				leg(snap, "NEXUS", srcCBDC.LinkedFiat, tgtCBDC.LinkedFiat, "Nexus", 35, 60),
				leg(snap, "CBDC_MINT", tgtCBDC.LinkedFiat, tgt, tgtCBDC.Issuer, 0, tgtCBDC.SettlementSeconds),
			}
		case "FIAT_BRIDGE":
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, srcCBDC.LinkedFiat, srcCBDC.Issuer, 0, srcCBDC.SettlementSeconds),
				leg(snap, "FX", srcCBDC.LinkedFiat, tgtCBDC.LinkedFiat, "SWIFT", 40, 14400),
				leg(snap, "CBDC_MINT", tgtCBDC.LinkedFiat, tgt, tgtCBDC.Issuer, 0, tgtCBDC.SettlementSeconds),
			}
		}

	case tpl.SrcRail == model.RailFiat && tpl.TgtRail == model.RailStablecoin:
		stable, ok := snap.Stablecoins[strings.ToUpper(tgt)]
		if !ok {
			return nope("%s is not a registered stablecoin", tgt)
		}
		network := r.pickNetwork(stable, req.PreferredNetwork)
		switch tpl.Name {
		case "CIRCLE_ONRAMP":
			ramp, found := r.zeroFeeRamp(snap, stable.Code, refdata.RampOn)
			if !found {
				return nope("no issuer-direct on-ramp for %s", stable.Code)
			}
			if srcFiat != stable.PegCurrency {
				return nope("%s mint requires funding in %s", stable.Code, stable.PegCurrency)
			}
			route.Legs = []Leg{rampLeg(snap, "RAMP_ON", src, tgt, ramp, network, 0)}
		case "CEX_ONRAMP":
			route.Legs = []Leg{leg(snap, "CEX_TRADE", src, tgt, "CEX/"+network.Chain, 25, 7200)}
		case "FX_ONRAMP":
			if srcFiat == stable.PegCurrency {
				return nope("funding currency already matches the peg")
			}
			ramp, found := snap.CheapestRamp(stable.Code, refdata.RampOn)
			if !found {
				return nope("no on-ramp supports %s", stable.Code)
			}
			route.Legs = []Leg{
				leg(snap, "FX", src, stable.PegCurrency, "SWIFT", 25, 14400),
				rampLeg(snap, "RAMP_ON", stable.PegCurrency, tgt, ramp, network, 25),
			}
		}

	case tpl.SrcRail == model.RailStablecoin && tpl.TgtRail == model.RailFiat:
		stable, ok := snap.Stablecoins[strings.ToUpper(src)]
		if !ok {
			return nope("%s is not a registered stablecoin", src)
		}
		network := r.pickNetwork(stable, req.PreferredNetwork)
		switch tpl.Name {
		case "CIRCLE_OFFRAMP":
			ramp, found := r.zeroFeeRamp(snap, stable.Code, refdata.RampOff)
			if !found {
				return nope("no issuer-direct off-ramp for %s", stable.Code)
			}
			if tgtFiat != stable.PegCurrency {
				return nope("%s redeems into %s only", stable.Code, stable.PegCurrency)
			}
			route.Legs = []Leg{rampLeg(snap, "RAMP_OFF", src, tgt, ramp, network, 0)}
		case "CEX_OFFRAMP":
			route.Legs = []Leg{leg(snap, "CEX_TRADE", src, tgt, "CEX/"+network.Chain, 25, 7200)}
		case "OFFRAMP_FX":
			if tgtFiat == stable.PegCurrency {
				return nope("target currency already matches the peg")
			}
			ramp, found := snap.CheapestRamp(stable.Code, refdata.RampOff)
			if !found {
				return nope("no off-ramp supports %s", stable.Code)
			}
			route.Legs = []Leg{
				rampLeg(snap, "RAMP_OFF", src, stable.PegCurrency, ramp, network, 25),
				leg(snap, "FX", stable.PegCurrency, tgt, "SWIFT", 25, 14400),
			}
		}

	case tpl.SrcRail == model.RailStablecoin && tpl.TgtRail == model.RailStablecoin:
		_, okS := snap.Stablecoins[strings.ToUpper(src)]
		_, okT := snap.Stablecoins[strings.ToUpper(tgt)]
		if !okS || !okT {
			return nope("both endpoints must be registered stablecoins")
		}
		switch tpl.Name {
		case "CURVE":
			route.Legs = []Leg{leg(snap, "CURVE_SWAP", src, tgt, "Curve 3pool", 4, 60)}
		case "UNISWAP":
			route.Legs = []Leg{leg(snap, "UNISWAP_SWAP", src, tgt, "Uniswap V3", 30, 60)}
		case "CEX":
			route.Legs = []Leg{leg(snap, "CEX_TRADE", src, tgt, "CEX", 20, 1800)}
		}

	case tpl.SrcRail == model.RailCBDC && tpl.TgtRail == model.RailStablecoin:
		cbdc, okC := snap.CBDCs[src]
		stable, okS := snap.Stablecoins[strings.ToUpper(tgt)]
		if !okC || !okS {
			return nope("endpoints must be a registered CBDC and stablecoin")
		}
		network := r.pickNetwork(stable, req.PreferredNetwork)
		switch tpl.Name {
		case "FIAT_BRIDGE":
			ramp, found := snap.CheapestRamp(stable.Code, refdata.RampOn)
			if !found {
				return nope("no on-ramp supports %s", stable.Code)
			}
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, cbdc.LinkedFiat, cbdc.Issuer, 0, cbdc.SettlementSeconds),
				leg(snap, "FX", cbdc.LinkedFiat, stable.PegCurrency, "SWIFT", 15, 14400),
				rampLeg(snap, "RAMP_ON", stable.PegCurrency, tgt, ramp, network, 10),
			}
		case "CEX_BRIDGE":
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, cbdc.LinkedFiat, cbdc.Issuer, 0, cbdc.SettlementSeconds),
				leg(snap, "CEX_TRADE", cbdc.LinkedFiat, tgt, "CEX/"+network.Chain, 50, 7200),
			}
		case "MBRIDGE_HYBRID":
			if !cbdc.MBridgeParticipant {
				return nope("%s is not an mBridge participant", src)
			}
			peer, found := r.mbridgePeer(snap, src)
			if !found {
				return nope("no mBridge counterparty available")
			}
			ramp, foundRamp := snap.CheapestRamp(stable.Code, refdata.RampOn)
			if !foundRamp {
				return nope("no on-ramp supports %s", stable.Code)
			}
			route.Legs = []Leg{
				leg(snap, "MBRIDGE", src, peer.Code, "mBridge", 13, 15),
				leg(snap, "CBDC_REDEEM", peer.Code, peer.LinkedFiat, peer.Issuer, 0, peer.SettlementSeconds),
				rampLeg(snap, "RAMP_ON", peer.LinkedFiat, tgt, ramp, network, 25),
			}
			route.Annotations.MBridge = true
		case "DEX_LIQUIDITY":
			route.Legs = []Leg{
				leg(snap, "CBDC_REDEEM", src, cbdc.LinkedFiat, cbdc.Issuer, 0, cbdc.SettlementSeconds),
				leg(snap, "DEX_POOL", cbdc.LinkedFiat, tgt, "DeFi pool", 35, 120),
			}
		case "ATOMIC_SWAP":
			return r.atomicSwapRoute(route, snap, src, stable.Code, src, tgt)
		}

	case tpl.SrcRail == model.RailStablecoin && tpl.TgtRail == model.RailCBDC:
		stable, okS := snap.Stablecoins[strings.ToUpper(src)]
		cbdc, okC := snap.CBDCs[tgt]
		if !okS || !okC {
			return nope("endpoints must be a registered stablecoin and CBDC")
		}
		network := r.pickNetwork(stable, req.PreferredNetwork)
		switch tpl.Name {
		case "FIAT_BRIDGE":
			ramp, found := snap.CheapestRamp(stable.Code, refdata.RampOff)
			if !found {
				return nope("no off-ramp supports %s", stable.Code)
			}
			route.Legs = []Leg{
				rampLeg(snap, "RAMP_OFF", src, stable.PegCurrency, ramp, network, 10),
				leg(snap, "FX", stable.PegCurrency, cbdc.LinkedFiat, "SWIFT", 15, 14400),
				leg(snap, "CBDC_MINT", cbdc.LinkedFiat, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds),
			}
		case "CEX_BRIDGE":
			route.Legs = []Leg{
				leg(snap, "CEX_TRADE", src, cbdc.LinkedFiat, "CEX/"+network.Chain, 50, 7200),
				leg(snap, "CBDC_MINT", cbdc.LinkedFiat, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds),
			}
		case "OTC":
			route.Legs = []Leg{
				leg(snap, "OTC_DESK", src, cbdc.LinkedFiat, "OTC desk", 15, 3600),
				leg(snap, "CBDC_MINT", cbdc.LinkedFiat, tgt, cbdc.Issuer, 0, cbdc.SettlementSeconds),
			}
		case "LIQUIDITY_POOL":
			route.Legs = []Leg{leg(snap, "DEX_POOL", src, tgt, "DeFi pool", 40, 120)}
		case "ATOMIC_SWAP":
			return r.atomicSwapRoute(route, snap, tgt, stable.Code, src, tgt)
		}
	}

	if len(route.Legs) == 0 {
		return nope("template not applicable to %s → %s", src, tgt)
	}
	return route, nil
}

// atomicSwapRoute materialises an HTLC corridor route in either direction.
func (r *Router) atomicSwapRoute(route Route, snap *refdata.Snapshot, cbdc, stable, from, to string) (Route, *Inapplicable) {
	entry, ok := snap.AtomicSwap(cbdc, stable)
	if !ok {
		return Route{}, &Inapplicable{Template: route.Template, Reason: fmt.Sprintf("no atomic-swap corridor for %s/%s", cbdc, stable)}
	}
	route.Legs = []Leg{leg(snap, "HTLC_SWAP", from, to, fmt.Sprintf("HTLC %s/%s", cbdc, stable), entry.FeeBps, entry.SettlementSeconds)}
	route.Annotations.Status = entry.Status
	if entry.Status != "ACTIVE" {
		route.Annotations.Experimental = true
		route.Annotations.Warnings = append(route.Annotations.Warnings,
			fmt.Sprintf("atomic swap corridor is %s", strings.ToLower(entry.Status)))
	}
	route.Annotations.Benefits = append(route.Annotations.Benefits, "no intermediary counterparty risk")
	return route, nil
}

func rampLeg(snap *refdata.Snapshot, mechanism, from, to string, ramp refdata.Ramp, network refdata.StablecoinNetwork, feeBps int) Leg {
	l := leg(snap, mechanism, from, to, fmt.Sprintf("%s/%s", ramp.ID, network.Chain), feeBps, ramp.SettlementSeconds)
	l.Reliability = ramp.Reliability
	l.Regulated = ramp.Regulated
	return l
}

// providerRef picks the most reliable active provider of a type quoting
// the pair. Empty when none qualifies.
func (r *Router) providerRef(snap *refdata.Snapshot, ptype refdata.ProviderType, pair string) string {
	best := ""
	bestReliability := -1.0
	for _, p := range snap.ProviderList() {
		if p.Type != ptype || !p.IsActive || !p.SupportsPair(pair) {
			continue
		}
		if p.Reliability > bestReliability {
			best = p.ID
			bestReliability = p.Reliability
		}
	}
	return best
}

// zeroFeeRamp finds an issuer-direct (zero fee, regulated) ramp.
func (r *Router) zeroFeeRamp(snap *refdata.Snapshot, stable string, dir refdata.RampDirection) (refdata.Ramp, bool) {
	ramp, ok := snap.CheapestRamp(stable, dir)
	if !ok || ramp.FeeBps != 0 || !ramp.Regulated {
		return refdata.Ramp{}, false
	}
	return ramp, true
}

// mbridgePeer picks the corridor counterparty for a hybrid route: the
// participant with the lowest transfer fee, deterministic by code.
func (r *Router) mbridgePeer(snap *refdata.Snapshot, exclude string) (refdata.CBDC, bool) {
	var peers []refdata.CBDC
	for _, c := range snap.CBDCs {
		if c.Code != exclude && c.MBridgeParticipant {
			peers = append(peers, c)
		}
	}
	if len(peers) == 0 {
		return refdata.CBDC{}, false
	}
	sort.Slice(peers, func(i, j int) bool {
		if peers[i].Fees.TransferBps != peers[j].Fees.TransferBps {
			return peers[i].Fees.TransferBps < peers[j].Fees.TransferBps
		}
		return peers[i].Code < peers[j].Code
	})
	return peers[0], true
}

// pickNetwork selects the stablecoin network, honouring the caller's
// preference when the coin settles there.
func (r *Router) pickNetwork(stable refdata.Stablecoin, preferred string) refdata.StablecoinNetwork {
	if preferred != "" {
		for _, n := range stable.Networks {
			if strings.EqualFold(n.Chain, preferred) {
				return n
			}
		}
	}
	if len(stable.Networks) > 0 {
		return stable.Networks[0]
	}
	return refdata.StablecoinNetwork{Chain: "ETHEREUM", SettlementSeconds: 60}
}
