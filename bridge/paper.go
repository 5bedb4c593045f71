package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PAPER BRIDGE - Simulated transfers for dry runs
// ═══════════════════════════════════════════════════════════════════════════════

// PaperBridge simulates a bridge with fixed fee and lag
type PaperBridge struct {
	name   string
	feePct decimal.Decimal
	lag    time.Duration
}

// NewPaperBridge creates a simulated bridge provider
func NewPaperBridge(name string, feePct decimal.Decimal, lag time.Duration) *PaperBridge {
	return &PaperBridge{name: name, feePct: feePct, lag: lag}
}

func (b *PaperBridge) Name() string { return b.name }

// Supports accepts every cross-chain route
func (b *PaperBridge) Supports(route Route) bool {
	return route.Source != route.Target
}

// Quote returns the fixed fee schedule
func (b *PaperBridge) Quote(_ context.Context, _ Route, amountUSD decimal.Decimal) (Cost, error) {
	return Cost{
		FeeUSD:       amountUSD.Mul(b.feePct),
		EstimatedLag: b.lag,
		Timeout:      b.lag * 10,
	}, nil
}

// Transfer simulates initiating the transfer
func (b *PaperBridge) Transfer(_ context.Context, route Route, amountUSD decimal.Decimal) (Transfer, error) {
	fee := amountUSD.Mul(b.feePct)

	log.Info().
		Str("bridge", b.name).
		Str("token", route.Token).
		Str("amount", amountUSD.StringFixed(2)).
		Str("fee", fee.StringFixed(2)).
		Msg("📝 PAPER: bridge transfer initiated")

	return Transfer{
		Ref:         fmt.Sprintf("paper-%s-%d", b.name, time.Now().UnixNano()),
		Provider:    b.name,
		Route:       route,
		AmountUSD:   amountUSD,
		FeeUSD:      fee,
		InitiatedAt: time.Now(),
	}, nil
}

// AwaitCompletion simulates the transfer lag, honoring cancellation
func (b *PaperBridge) AwaitCompletion(ctx context.Context, transfer Transfer) (Completion, error) {
	select {
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	case <-time.After(b.lag):
	}

	return Completion{
		DeliveredUSD: transfer.AmountUSD.Sub(transfer.FeeUSD),
		CompletedAt:  time.Now(),
	}, nil
}
