package profit

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PROFITABILITY GATE - Gas-tier-aware net profit check
// ═══════════════════════════════════════════════════════════════════════════════
//
// Pure: no I/O, no clocks. Callers supply the current gas price.
//
// Gas tier tables differ per chain class: L2/sidechain gwei levels sit
// roughly two orders of magnitude below mainnet levels.
//
// ═══════════════════════════════════════════════════════════════════════════════

// tierCut is one gas tier boundary: gwei at or below → tier
type tierCut struct {
	maxGwei decimal.Decimal
	tier    types.GasTier
}

var cheapChainTiers = []tierCut{
	{decimal.NewFromFloat(0.1), types.GasTierUltraLow},
	{decimal.NewFromFloat(1), types.GasTierLow},
	{decimal.NewFromFloat(5), types.GasTierMedium},
	{decimal.NewFromFloat(20), types.GasTierHigh},
}

var expensiveChainTiers = []tierCut{
	{decimal.NewFromFloat(10), types.GasTierUltraLow},
	{decimal.NewFromFloat(30), types.GasTierLow},
	{decimal.NewFromFloat(80), types.GasTierMedium},
	{decimal.NewFromFloat(150), types.GasTierHigh},
}

// minProfitAfterGas is the tier-relative profit floor in USD
var minProfitAfterGas = map[types.GasTier]decimal.Decimal{
	types.GasTierUltraLow: decimal.NewFromFloat(0.05),
	types.GasTierLow:      decimal.NewFromFloat(0.25),
	types.GasTierMedium:   decimal.NewFromFloat(1),
	types.GasTierHigh:     decimal.NewFromFloat(3),
	types.GasTierExtreme:  decimal.NewFromFloat(10),
}

// baseGasUSD is the estimated gas cost per operation class at the
// ultra_low tier, per chain class
var baseGasUSD = map[types.ChainClass]map[types.OperationClass]decimal.Decimal{
	types.ChainClassCheap: {
		types.OpSameChain:  decimal.NewFromFloat(0.05),
		types.OpCrossChain: decimal.NewFromFloat(0.10),
		types.OpFlashloan:  decimal.NewFromFloat(0.15),
		types.OpComplex:    decimal.NewFromFloat(0.20),
	},
	types.ChainClassExpensive: {
		types.OpSameChain:  decimal.NewFromFloat(2),
		types.OpCrossChain: decimal.NewFromFloat(5),
		types.OpFlashloan:  decimal.NewFromFloat(8),
		types.OpComplex:    decimal.NewFromFloat(12),
	},
}

// tierGasMultiplier scales base gas with the current fee level
var tierGasMultiplier = map[types.GasTier]decimal.Decimal{
	types.GasTierUltraLow: decimal.NewFromInt(1),
	types.GasTierLow:      decimal.NewFromInt(2),
	types.GasTierMedium:   decimal.NewFromInt(5),
	types.GasTierHigh:     decimal.NewFromInt(12),
	types.GasTierExtreme:  decimal.NewFromInt(30),
}

// Verdict is the gate's full reasoning, for logging and tests
type Verdict struct {
	Profitable bool
	Tier       types.GasTier
	GasCostUSD decimal.Decimal
	NetProfit  decimal.Decimal
	Reason     string
}

// Gate performs the gas-tier-aware net profit check
type Gate struct {
	absoluteFloor decimal.Decimal // per-trade minimum net profit, any tier
}

// NewGate creates a gate with the given absolute per-trade profit floor
func NewGate(absoluteFloor decimal.Decimal) *Gate {
	return &Gate{absoluteFloor: absoluteFloor}
}

// ClassifyTier buckets a gas price into a tier for the chain class
func ClassifyTier(gasGwei decimal.Decimal, class types.ChainClass) types.GasTier {
	cuts := cheapChainTiers
	if class == types.ChainClassExpensive {
		cuts = expensiveChainTiers
	}
	for _, cut := range cuts {
		if gasGwei.LessThanOrEqual(cut.maxGwei) {
			return cut.tier
		}
	}
	return types.GasTierExtreme
}

// EstimateGasUSD estimates the USD gas cost of an operation class at the
// current tier on the given chain class
func EstimateGasUSD(class types.ChainClass, op types.OperationClass, tier types.GasTier) decimal.Decimal {
	return baseGasUSD[class][op].Mul(tierGasMultiplier[tier])
}

// Evaluate nets gross profit against gas and bridge fees and applies both
// the absolute floor and the tier-relative floor.
func (g *Gate) Evaluate(opp *types.Opportunity, gasGwei decimal.Decimal, op types.OperationClass, bridgeFeeUSD decimal.Decimal) Verdict {
	class := opp.SourceChain.Class()
	tier := ClassifyTier(gasGwei, class)
	gasCost := EstimateGasUSD(class, op, tier)
	net := opp.GrossProfit.Sub(gasCost).Sub(bridgeFeeUSD)

	v := Verdict{Tier: tier, GasCostUSD: gasCost, NetProfit: net}

	tierFloor := minProfitAfterGas[tier]
	switch {
	case net.LessThan(g.absoluteFloor):
		v.Reason = "below absolute profit floor"
	case net.LessThan(tierFloor):
		v.Reason = "below " + string(tier) + " tier floor"
	default:
		v.Profitable = true
		v.Reason = "profitable"
	}

	if !v.Profitable {
		log.Debug().
			Str("opp", opp.ID).
			Str("tier", string(tier)).
			Str("net", net.StringFixed(2)).
			Str("reason", v.Reason).
			Msg("💸 Unprofitable at current gas")
	}

	return v
}

// IsProfitable is the boolean form of Evaluate
func (g *Gate) IsProfitable(opp *types.Opportunity, gasGwei decimal.Decimal, op types.OperationClass, bridgeFeeUSD decimal.Decimal) (bool, decimal.Decimal) {
	v := g.Evaluate(opp, gasGwei, op, bridgeFeeUSD)
	return v.Profitable, v.NetProfit
}
