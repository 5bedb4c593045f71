package dex

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER ROUTER - Simulated fills for dry runs
// ═══════════════════════════════════════════════════════════════════════════════

// PaperRouter simulates swaps with configurable slippage and fees
type PaperRouter struct {
	mu sync.Mutex

	slippageBps int64
	feeBps      int64
	gasUSD      decimal.Decimal
	seq         int64
}

// NewPaperRouter creates a simulated router (default 10bps slippage, 30bps fee)
func NewPaperRouter() *PaperRouter {
	return &PaperRouter{
		slippageBps: 10,
		feeBps:      30,
		gasUSD:      decimal.NewFromFloat(0.05),
	}
}

func (r *PaperRouter) haircut(amount decimal.Decimal) decimal.Decimal {
	bps := decimal.NewFromInt(r.slippageBps + r.feeBps).Div(decimal.NewFromInt(10000))
	return amount.Mul(decimal.NewFromInt(1).Sub(bps))
}

// Quote returns the simulated output amount
func (r *PaperRouter) Quote(_ context.Context, req SwapRequest) (Quote, error) {
	return Quote{
		AmountOutUSD: r.haircut(req.AmountInUSD),
		PriceImpact:  decimal.NewFromInt(r.slippageBps).Div(decimal.NewFromInt(10000)),
	}, nil
}

// Swap simulates an immediate fill
func (r *PaperRouter) Swap(_ context.Context, req SwapRequest) (types.Receipt, error) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()

	out := r.haircut(req.AmountInUSD)

	log.Info().
		Str("venue", req.Venue.Key()).
		Str("from", req.FromAsset).
		Str("to", req.ToAsset).
		Str("in", req.AmountInUSD.StringFixed(2)).
		Str("out", out.StringFixed(2)).
		Msg("📝 PAPER: swap filled")

	return types.Receipt{
		TxHash:    fmt.Sprintf("paper-%d-%d", time.Now().UnixNano(), seq),
		AmountIn:  req.AmountInUSD,
		AmountOut: out,
		GasUSD:    r.gasUSD,
		Timestamp: time.Now(),
	}, nil
}
