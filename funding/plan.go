package funding

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONVERSION PLANNING - Pure selection of which asset covers a shortfall
// ═══════════════════════════════════════════════════════════════════════════════

// PlanConversion picks the single asset to convert to cover a shortfall.
//
// Assets are considered in the configured conversion priority order
// (lowest-liquidity first, native-adjacent last). Only the balance above
// each asset's minimum reserve is spendable. Among assets that can cover
// the shortfall alone, the one with the least spendable surplus wins, so
// large liquid balances are kept intact. When no single asset suffices the
// plan is not viable and reports total availability; multi-asset splits
// are not attempted.
func PlanConversion(snapshot *types.WalletSnapshot, shortfall decimal.Decimal, priority []string, minReserves map[string]decimal.Decimal) types.ConversionPlan {
	plan := types.ConversionPlan{TotalAvailable: decimal.Zero}

	bestAsset := ""
	bestSpendable := decimal.Zero

	for _, asset := range priority {
		balance, ok := snapshot.Balances[asset]
		if !ok {
			continue
		}

		spendable := balance.Sub(minReserves[asset])
		if !spendable.IsPositive() {
			continue
		}

		plan.TotalAvailable = plan.TotalAvailable.Add(spendable)

		if spendable.GreaterThanOrEqual(shortfall) {
			if bestAsset == "" || spendable.LessThan(bestSpendable) {
				bestAsset = asset
				bestSpendable = spendable
			}
		}
	}

	if bestAsset != "" {
		plan.Viable = true
		plan.SourceAsset = bestAsset
		plan.AmountUSD = shortfall
	}

	return plan
}
