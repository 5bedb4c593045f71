package bridge

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRIDGE PROVIDER - Cross-chain transfer abstraction
// ═══════════════════════════════════════════════════════════════════════════════

// Route is one (source, target, token) transfer lane
type Route struct {
	Source types.Chain
	Target types.Chain
	Token  string
}

// Cost is a bridge's current fee and latency estimate for a route
type Cost struct {
	FeeUSD       decimal.Decimal
	EstimatedLag time.Duration // expected transfer time
	Timeout      time.Duration // give-up horizon for awaiting completion
}

// Transfer is an initiated bridge transfer
type Transfer struct {
	Ref         string // provider-scoped reference for polling
	Provider    string
	Route       Route
	AmountUSD   decimal.Decimal
	FeeUSD      decimal.Decimal
	InitiatedAt time.Time
}

// Completion is the settled outcome of a transfer
type Completion struct {
	DeliveredUSD decimal.Decimal
	CompletedAt  time.Time
}

// Provider moves a token between chains. Implementations own the
// bridge-specific transfer APIs.
type Provider interface {
	Name() string
	Supports(route Route) bool
	Quote(ctx context.Context, route Route, amountUSD decimal.Decimal) (Cost, error)
	Transfer(ctx context.Context, route Route, amountUSD decimal.Decimal) (Transfer, error)
	AwaitCompletion(ctx context.Context, transfer Transfer) (Completion, error)
}
