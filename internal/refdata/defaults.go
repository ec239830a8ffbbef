package refdata

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/fx-router/pkg/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// defaultSnapshot builds the compiled-in reference tables used when no
// JSON documents exist in the data directory.
func defaultSnapshot() *Snapshot {
	snap := &Snapshot{
		Providers:       make(map[string]Provider),
		Tiers:           make(map[string]Tier),
		Segments:        make(map[string]Segment),
		Categories:      make(map[string]CurrencyCategory),
		CategoryMarkups: make(map[CurrencyCategory]CategoryMarkup),
		CBDCs:           make(map[string]CBDC),
		Stablecoins:     make(map[string]Stablecoin),
		Rails:           make(map[string]Rail),
		NexusFiats:      make(map[string]bool),
		LoadedAt:        time.Now().UTC(),
	}

	for _, p := range defaultProviders() {
		snap.Providers[p.ID] = p
	}
	for _, t := range defaultTiers() {
		snap.Tiers[t.ID] = t
	}
	for _, s := range defaultSegments() {
		snap.Segments[s.ID] = s
	}
	snap.AmountTiers = defaultAmountTiers()

	for cat, def := range defaultCategories() {
		snap.CategoryMarkups[cat] = def.markup
		for _, ccy := range def.currencies {
			snap.Categories[ccy] = cat
		}
	}

	for _, c := range defaultCBDCs() {
		snap.CBDCs[c.Code] = c
	}
	for _, st := range defaultStablecoins() {
		snap.Stablecoins[st.Code] = st
	}
	snap.Ramps = defaultRamps()
	for _, r := range defaultRails() {
		snap.Rails[r.Mechanism] = r
	}
	for _, f := range []string{"INR", "SGD", "THB", "MYR", "PHP", "CNY", "HKD", "AED"} {
		snap.NexusFiats[f] = true
	}
	snap.AtomicSwaps = defaultAtomicSwaps()

	return snap
}

func defaultProviders() []Provider {
	return []Provider{
		{
			ID: "TREASURY_INTERNAL", Name: "Treasury Desk", Type: ProviderInternal,
			Reliability: 0.99, AvgLatencyMS: 50, SettlementHours: 1,
			MinAmount: dec("100"), DailyLimit: dec("25000000"), MarkupBps: 15,
			SupportedPairs: []string{"*"}, STPEnabled: true, IsActive: true,
		},
		{
			ID: "JPM_CORRESPONDENT", Name: "JPMorgan Correspondent", Type: ProviderCorrespondent,
			Reliability: 0.97, AvgLatencyMS: 180, SettlementHours: 24,
			MinAmount: dec("10000"), DailyLimit: dec("100000000"), MarkupBps: 35,
			SupportedPairs: []string{"*"}, STPEnabled: true, IsActive: true,
		},
		{
			ID: "HDFC_LOCAL", Name: "HDFC Bank", Type: ProviderLocal,
			Reliability: 0.95, AvgLatencyMS: 120, SettlementHours: 4,
			MinAmount: dec("1000"), DailyLimit: dec("10000000"), MarkupBps: 25,
			SupportedPairs: []string{"USDINR", "EURINR", "GBPINR", "AEDINR", "SGDINR"},
			OperatingHours: OperatingHours{Open: "03:30", Close: "12:30"},
			STPEnabled:     true, IsActive: true,
		},
		{
			ID: "WISE", Name: "Wise Platform", Type: ProviderFintech,
			Reliability: 0.93, AvgLatencyMS: 90, SettlementHours: 2,
			MinAmount: dec("10"), DailyLimit: dec("2000000"), MarkupBps: 20,
			SupportedPairs: []string{"*"}, STPEnabled: true, IsActive: true,
		},
		{
			ID: "XE_DEALER", Name: "XE Dealing Desk", Type: ProviderDealer,
			Reliability: 0.90, AvgLatencyMS: 250, SettlementHours: 24,
			MinAmount: dec("5000"), DailyLimit: dec("50000000"), MarkupBps: 30,
			SupportedPairs: []string{"*"}, STPEnabled: false, IsActive: true,
		},
		{
			ID: "REFINITIV", Name: "Refinitiv", Type: ProviderMarketData,
			Reliability: 0.999, AvgLatencyMS: 20, SettlementHours: 0,
			MinAmount: dec("0"), DailyLimit: dec("0"), MarkupBps: 0,
			SupportedPairs: []string{"*"}, STPEnabled: false, IsActive: true,
		},
	}
}

func defaultTiers() []Tier {
	return []Tier{
		{
			ID: "PLATINUM", MinAnnualVolume: dec("100000000"), MarkupDiscountPct: 50,
			SpreadReductionBps: 10, PriorityRouting: true,
			MaxTransaction: dec("50000000"), STPThreshold: dec("5000000"),
			DefaultObjective: model.ObjectiveBestRate,
		},
		{
			ID: "GOLD", MinAnnualVolume: dec("25000000"), MarkupDiscountPct: 30,
			SpreadReductionBps: 5, PriorityRouting: true,
			MaxTransaction: dec("20000000"), STPThreshold: dec("1000000"),
			DefaultObjective: model.ObjectiveOptimum,
		},
		{
			ID: "SILVER", MinAnnualVolume: dec("5000000"), MarkupDiscountPct: 15,
			SpreadReductionBps: 2,
			MaxTransaction:     dec("5000000"), STPThreshold: dec("500000"),
			DefaultObjective: model.ObjectiveOptimum,
		},
		{
			ID: "BRONZE", MinAnnualVolume: dec("500000"), MarkupDiscountPct: 5,
			MaxTransaction: dec("1000000"), STPThreshold: dec("100000"),
			DefaultObjective: model.ObjectiveOptimum,
		},
		{
			ID:             "RETAIL",
			MaxTransaction: dec("250000"), STPThreshold: dec("50000"),
			DefaultObjective: model.ObjectiveMaxSTP,
		},
	}
}

func defaultSegments() []Segment {
	return []Segment{
		{ID: "INSTITUTIONAL", Name: "Institutional", BaseMarginBps: 5, MinMarginBps: 2, MaxMarginBps: 20, VolumeDiscountEligible: true, NegotiatedRatesAllowed: true},
		{ID: "LARGE_CORPORATE", Name: "Large Corporate", BaseMarginBps: 25, MinMarginBps: 10, MaxMarginBps: 75, VolumeDiscountEligible: true, NegotiatedRatesAllowed: true},
		{ID: "MID_MARKET", Name: "Mid-Market", BaseMarginBps: 75, MinMarginBps: 40, MaxMarginBps: 150, VolumeDiscountEligible: true},
		{ID: "SMALL_BUSINESS", Name: "Small Business", BaseMarginBps: 150, MinMarginBps: 100, MaxMarginBps: 250},
		{ID: "RETAIL", Name: "Retail", BaseMarginBps: 300, MinMarginBps: 200, MaxMarginBps: 500},
		{ID: "PRIVATE_BANKING", Name: "Private Banking", BaseMarginBps: 50, MinMarginBps: 20, MaxMarginBps: 100, VolumeDiscountEligible: true, NegotiatedRatesAllowed: true},
	}
}

func defaultAmountTiers() []AmountTier {
	return []AmountTier{
		{ID: "TIER_1", Order: 1, MinAmount: dec("0"), MaxAmount: decPtr("10000"), AdjustmentBps: 50, Description: "Up to 10k"},
		{ID: "TIER_2", Order: 2, MinAmount: dec("10000"), MaxAmount: decPtr("50000"), AdjustmentBps: 25, Description: "10k to 50k"},
		{ID: "TIER_3", Order: 3, MinAmount: dec("50000"), MaxAmount: decPtr("100000"), AdjustmentBps: 0, Description: "50k to 100k"},
		{ID: "TIER_4", Order: 4, MinAmount: dec("100000"), MaxAmount: decPtr("500000"), AdjustmentBps: -15, Description: "100k to 500k"},
		{ID: "TIER_5", Order: 5, MinAmount: dec("500000"), MaxAmount: decPtr("1000000"), AdjustmentBps: -25, Description: "500k to 1M"},
		{ID: "TIER_6", Order: 6, MinAmount: dec("1000000"), AdjustmentBps: -40, Description: "Above 1M"},
	}
}

type categoryDef struct {
	currencies []string
	markup     CategoryMarkup
}

func defaultCategories() map[CurrencyCategory]categoryDef {
	return map[CurrencyCategory]categoryDef{
		CategoryG10: {
			currencies: []string{"USD", "EUR", "JPY", "GBP", "CHF", "AUD", "NZD", "CAD"},
			markup:     CategoryMarkup{RetailBps: 50, CorporateBps: 15, InstitutionalBps: 2},
		},
		CategoryMinor: {
			currencies: []string{"SGD", "HKD", "DKK", "PLN", "CZK"},
			markup:     CategoryMarkup{RetailBps: 100, CorporateBps: 30, InstitutionalBps: 5},
		},
		CategoryExotic: {
			currencies: []string{"TRY", "ZAR", "MXN", "BRL"},
			markup:     CategoryMarkup{RetailBps: 200, CorporateBps: 75, InstitutionalBps: 15},
		},
		CategoryRestricted: {
			currencies: []string{"INR", "CNY", "KRW", "TWD", "PHP"},
			markup:     CategoryMarkup{RetailBps: 300, CorporateBps: 100, InstitutionalBps: 25},
		},
	}
}

func defaultCBDCs() []CBDC {
	return []CBDC{
		{Code: "e-INR", Issuer: "Reserve Bank of India", LinkedFiat: "INR", Status: "LIVE", SettlementSeconds: 5, CrossBorderEnabled: false, Reliability: 0.99},
		{Code: "e-CNY", Issuer: "People's Bank of China", LinkedFiat: "CNY", Status: "LIVE", SettlementSeconds: 5, MBridgeParticipant: true, CrossBorderEnabled: true, Reliability: 0.99},
		{Code: "e-HKD", Issuer: "Hong Kong Monetary Authority", LinkedFiat: "HKD", Status: "PILOT", SettlementSeconds: 5, MBridgeParticipant: true, CrossBorderEnabled: true, Reliability: 0.98},
		{Code: "e-THB", Issuer: "Bank of Thailand", LinkedFiat: "THB", Status: "PILOT", SettlementSeconds: 8, MBridgeParticipant: true, CrossBorderEnabled: true, Reliability: 0.98},
		{Code: "e-AED", Issuer: "Central Bank of the UAE", LinkedFiat: "AED", Status: "PILOT", SettlementSeconds: 5, MBridgeParticipant: true, CrossBorderEnabled: true, Reliability: 0.98},
		{Code: "e-SGD", Issuer: "Monetary Authority of Singapore", LinkedFiat: "SGD", Status: "PILOT", SettlementSeconds: 5, CrossBorderEnabled: true, Fees: CBDCFees{TransferBps: 1}, Reliability: 0.98},
	}
}

func defaultStablecoins() []Stablecoin {
	one := dec("1")
	return []Stablecoin{
		{
			Code: "USDC", Issuer: "Circle", PegCurrency: "USD", PegRatio: one, Regulated: true,
			Networks: []StablecoinNetwork{
				{Chain: "ETHEREUM", SettlementSeconds: 60, FeeUSD: dec("3.50")},
				{Chain: "SOLANA", SettlementSeconds: 2, FeeUSD: dec("0.01")},
				{Chain: "POLYGON", SettlementSeconds: 5, FeeUSD: dec("0.02")},
			},
			LiquidityScore: 98, Fees: StablecoinFees{TransferBps: 1}, Reliability: 0.98,
		},
		{
			Code: "USDT", Issuer: "Tether", PegCurrency: "USD", PegRatio: one, Regulated: false,
			Networks: []StablecoinNetwork{
				{Chain: "TRON", SettlementSeconds: 3, FeeUSD: dec("1.00")},
				{Chain: "ETHEREUM", SettlementSeconds: 60, FeeUSD: dec("4.00")},
			},
			LiquidityScore: 99, Fees: StablecoinFees{TransferBps: 2}, Reliability: 0.95,
		},
		{
			Code: "EURC", Issuer: "Circle", PegCurrency: "EUR", PegRatio: one, Regulated: true,
			Networks: []StablecoinNetwork{
				{Chain: "ETHEREUM", SettlementSeconds: 60, FeeUSD: dec("3.50")},
				{Chain: "SOLANA", SettlementSeconds: 2, FeeUSD: dec("0.01")},
			},
			LiquidityScore: 82, Fees: StablecoinFees{TransferBps: 1}, Reliability: 0.98,
		},
		{
			Code: "XSGD", Issuer: "StraitsX", PegCurrency: "SGD", PegRatio: one, Regulated: true,
			Networks: []StablecoinNetwork{
				{Chain: "ETHEREUM", SettlementSeconds: 60, FeeUSD: dec("3.00")},
				{Chain: "POLYGON", SettlementSeconds: 5, FeeUSD: dec("0.02")},
			},
			LiquidityScore: 65, Fees: StablecoinFees{MintBps: 10, RedeemBps: 10, TransferBps: 2}, Reliability: 0.96,
		},
		{
			Code: "DAI", Issuer: "MakerDAO", PegCurrency: "USD", PegRatio: one, Regulated: false,
			Networks: []StablecoinNetwork{
				{Chain: "ETHEREUM", SettlementSeconds: 60, FeeUSD: dec("4.00")},
			},
			LiquidityScore: 88, Fees: StablecoinFees{TransferBps: 2}, Reliability: 0.92,
		},
	}
}

func defaultRamps() []Ramp {
	return []Ramp{
		{ID: "CIRCLE", Name: "Circle Mint", Direction: RampBoth, Stablecoins: []string{"USDC", "EURC"}, FeeBps: 0, SettlementSeconds: 3600, Regulated: true, Reliability: 0.98},
		{ID: "COINBASE_PRIME", Name: "Coinbase Prime", Direction: RampBoth, Stablecoins: []string{"USDC", "USDT"}, FeeBps: 25, SettlementSeconds: 7200, Regulated: true, Reliability: 0.97},
		{ID: "STRAITSX", Name: "StraitsX", Direction: RampBoth, Stablecoins: []string{"XSGD"}, FeeBps: 10, SettlementSeconds: 3600, Regulated: true, Reliability: 0.96},
		{ID: "KRAKEN_OTC", Name: "Kraken OTC", Direction: RampBoth, Stablecoins: []string{"USDT", "DAI"}, FeeBps: 15, SettlementSeconds: 3600, Regulated: true, Reliability: 0.95},
	}
}

func defaultRails() []Rail {
	return []Rail{
		{Mechanism: "SWIFT", Name: "SWIFT Correspondent", Reliability: 0.97, Regulated: true, STPCapable: false},
		{Mechanism: "LOCAL_RAILS", Name: "Local Clearing", Reliability: 0.95, Regulated: true, STPCapable: true},
		{Mechanism: "FINTECH", Name: "Fintech Network", Reliability: 0.93, Regulated: true, STPCapable: true},
		{Mechanism: "CBDC_MINT", Name: "CBDC Issuance", Reliability: 0.99, Regulated: true, STPCapable: true},
		{Mechanism: "CBDC_REDEEM", Name: "CBDC Redemption", Reliability: 0.99, Regulated: true, STPCapable: true},
		{Mechanism: "MBRIDGE", Name: "mBridge PvP", Reliability: 0.95, Regulated: true, STPCapable: true},
		{Mechanism: "NEXUS", Name: "Project Nexus", Reliability: 0.96, Regulated: true, STPCapable: true},
		{Mechanism: "RAMP_ON", Name: "Stablecoin On-Ramp", Reliability: 0.98, Regulated: true, STPCapable: true},
		{Mechanism: "RAMP_OFF", Name: "Stablecoin Off-Ramp", Reliability: 0.98, Regulated: true, STPCapable: true},
		{Mechanism: "CEX_TRADE", Name: "Centralized Exchange", Reliability: 0.93, Regulated: true, STPCapable: true},
		{Mechanism: "OTC_DESK", Name: "OTC Desk", Reliability: 0.94, Regulated: true, STPCapable: false},
		{Mechanism: "CURVE_SWAP", Name: "Curve Pool", Reliability: 0.92, Regulated: false, STPCapable: true},
		{Mechanism: "UNISWAP_SWAP", Name: "Uniswap V3", Reliability: 0.90, Regulated: false, STPCapable: true},
		{Mechanism: "DEX_POOL", Name: "DeFi Liquidity Pool", Reliability: 0.88, Regulated: false, STPCapable: true},
		{Mechanism: "HTLC_SWAP", Name: "Atomic Swap (HTLC)", Reliability: 0.85, Regulated: false, STPCapable: true},
		{Mechanism: "FX", Name: "FX Conversion", Reliability: 0.97, Regulated: true, STPCapable: true},
	}
}

func defaultAtomicSwaps() []AtomicSwapPair {
	return []AtomicSwapPair{
		{CBDC: "e-INR", Stablecoin: "USDC", Status: "EXPERIMENTAL", FeeBps: 5, SettlementSeconds: 300},
		{CBDC: "e-SGD", Stablecoin: "XSGD", Status: "PILOT", FeeBps: 5, SettlementSeconds: 300},
		{CBDC: "e-SGD", Stablecoin: "USDC", Status: "PILOT", FeeBps: 5, SettlementSeconds: 300},
		{CBDC: "e-CNY", Stablecoin: "USDT", Status: "PLANNED", FeeBps: 5, SettlementSeconds: 300},
		{CBDC: "e-HKD", Stablecoin: "USDC", Status: "PLANNED", FeeBps: 5, SettlementSeconds: 300},
	}
}
