package dex

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DEX ROUTER - Swap abstraction consumed by funding and saga
// ═══════════════════════════════════════════════════════════════════════════════

// SwapRequest describes one slippage-protected swap
type SwapRequest struct {
	Chain       types.Chain
	Venue       types.Venue
	FromAsset   string
	ToAsset     string
	AmountInUSD decimal.Decimal
	MaxSlippage decimal.Decimal // e.g. 0.005 = 0.5%
}

// Quote is an indicative price for a swap
type Quote struct {
	AmountOutUSD decimal.Decimal
	PriceImpact  decimal.Decimal
}

// Router executes swaps on a venue. Implementations own all venue-specific
// calldata encoding.
type Router interface {
	Quote(ctx context.Context, req SwapRequest) (Quote, error)
	Swap(ctx context.Context, req SwapRequest) (types.Receipt, error)
}
