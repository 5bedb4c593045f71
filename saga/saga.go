package saga

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/bridge"
	"github.com/web3guy0/chainarb/dex"
	"github.com/web3guy0/chainarb/funding"
	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CROSS-CHAIN ARBITRAGE SAGA - buy → bridge → await → sell
// ═══════════════════════════════════════════════════════════════════════════════
//
// No cross-chain atomicity exists: once capital crosses the bridge, the
// only terminal states are Sold or StrandedFunds. Every step failure maps
// to a distinct failure class so risk accounting and alerting can tell a
// cheap pre-bridge abort from money stuck on the far side.
//
// Steps are strictly sequential. The saga never retries; re-detection of
// the venue happens upstream in the opportunity loop.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the saga tunables
type Config struct {
	ExecutionWindow time.Duration   // max opportunity age at validation
	HardCapUSD      decimal.Decimal // absolute per-trade sizing cap
	WalletPctCap    decimal.Decimal // fraction of wallet total usable per trade
	SizeFloorUSD    decimal.Decimal
	ProfitScale     decimal.Decimal // heuristic: size ≈ gross profit × scale
	MaxSlippage     decimal.Decimal
	TradeAsset      string // settlement asset on both legs
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		ExecutionWindow: 15 * time.Second,
		TradeAsset:      "USDC",
		HardCapUSD:      decimal.NewFromInt(500),
		WalletPctCap:    decimal.NewFromFloat(0.25),
		SizeFloorUSD:    decimal.NewFromInt(25),
		ProfitScale:     decimal.NewFromInt(20),
		MaxSlippage:     decimal.NewFromFloat(0.005),
	}
}

// Saga orchestrates one cross-chain trade through injected collaborators
type Saga struct {
	cfg     Config
	funds   *funding.Manager
	router  dex.Router
	bridges *bridge.Registry
	routes  *RouteRegistry
	now     func() time.Time
}

// New creates a saga runner
func New(cfg Config, funds *funding.Manager, router dex.Router, bridges *bridge.Registry, routes *RouteRegistry) *Saga {
	return &Saga{
		cfg:     cfg,
		funds:   funds,
		router:  router,
		bridges: bridges,
		routes:  routes,
		now:     time.Now,
	}
}

// run carries the saga's mutable position; state only ever advances
type run struct {
	opp     *types.Opportunity
	state   types.SagaState
	outcome *types.TradeOutcome

	buyReceipt  types.Receipt
	provider    bridge.Provider
	transfer    bridge.Transfer
	bridgedUSD  decimal.Decimal
	sellReceipt types.Receipt
}

func (r *run) advance(state types.SagaState) {
	r.state = state
	r.outcome.FinalState = state

	log.Info().
		Str("opp", r.opp.ID).
		Str("state", string(state)).
		Msg("🧭 Saga advanced")
}

func (r *run) fail(state types.SagaState, kind types.FailureKind, err error) *types.TradeOutcome {
	r.outcome.FinalState = state
	r.outcome.Failure = kind
	if err != nil {
		r.outcome.Error = err.Error()
	}
	r.outcome.FinishedAt = time.Now()

	log.Warn().
		Str("opp", r.opp.ID).
		Str("state", string(state)).
		Str("failure", string(kind)).
		Err(err).
		Msg("❌ Saga aborted")

	return r.outcome
}

// Run executes the trade saga for one opportunity and returns a structured
// outcome. Errors never escape; every internal fault becomes an outcome.
func (s *Saga) Run(ctx context.Context, opp *types.Opportunity) *types.TradeOutcome {
	r := &run{
		opp: opp,
		outcome: &types.TradeOutcome{
			OpportunityID: opp.ID,
			StartedAt:     s.now(),
		},
	}

	// Duplicate route check: same token+chain-pair already in flight
	if !s.routes.Acquire(opp.RouteKey(), opp.ID) {
		return r.fail(types.SagaFailed, types.FailBlocked, nil)
	}
	defer s.routes.Release(opp.RouteKey())

	// ── Validate: cheapest possible abort, nothing has moved ──────────────
	if age := opp.Age(s.now()); age > s.cfg.ExecutionWindow {
		return r.fail(types.SagaFailed, types.FailFiltered, nil)
	}
	r.advance(types.SagaValidated)

	// ── Fund: just-in-time conversion on the buy chain ────────────────────
	size, outcome := s.fund(ctx, r)
	if outcome != nil {
		return outcome
	}
	r.advance(types.SagaFunded)

	// ── Buy: nothing has crossed a chain yet, failure aborts cleanly ──────
	if outcome := s.buy(ctx, r, size); outcome != nil {
		return outcome
	}
	r.advance(types.SagaBought)

	if opp.CrossChain() {
		// ── Bridge: initiation failure leaves funds on the source chain ───
		if outcome := s.initiateBridge(ctx, r); outcome != nil {
			return outcome
		}
		r.advance(types.SagaBridged)

		// ── Await: past this point Failed is no longer a legal terminal ───
		if outcome := s.awaitBridge(ctx, r); outcome != nil {
			return outcome
		}
		r.advance(types.SagaBridgeConfirmed)
	} else {
		r.bridgedUSD = r.buyReceipt.AmountOut
	}

	// ── Sell: failure after bridging strands funds on the target chain ────
	if outcome := s.sell(ctx, r); outcome != nil {
		return outcome
	}
	r.advance(types.SagaSold)

	o := r.outcome
	o.NetProfit = o.Proceeds.Sub(o.BuyCost).Sub(o.BridgeFee).Sub(o.GasSpent)
	o.FinishedAt = s.now()

	log.Info().
		Str("opp", opp.ID).
		Str("net_profit", o.NetProfit.StringFixed(2)).
		Str("proceeds", o.Proceeds.StringFixed(2)).
		Msg("✅ Saga completed")

	return o
}

// fund sizes the trade and ensures the buy chain can pay for it
func (s *Saga) fund(ctx context.Context, r *run) (decimal.Decimal, *types.TradeOutcome) {
	snapshot, err := s.funds.Snapshot(ctx, r.opp.SourceChain, false)
	if err != nil {
		return decimal.Zero, r.fail(types.SagaFailed, types.FailFunding, err)
	}

	size := s.SizeTrade(r.opp, snapshot.Total())

	result, err := s.funds.EnsureFunds(ctx, size, r.opp.SourceChain)
	if err != nil {
		return decimal.Zero, r.fail(types.SagaFailed, types.FailFunding, err)
	}
	if !result.Sufficient {
		log.Warn().
			Str("opp", r.opp.ID).
			Str("shortfall", result.ShortfallUSD.StringFixed(2)).
			Str("details", result.Details).
			Msg("💸 Funding insufficient")
		return decimal.Zero, r.fail(types.SagaFailed, types.FailFunding, nil)
	}

	return size, nil
}

// SizeTrade computes the buy size:
// min(hardCap, walletPct·walletTotal, max(profitScaled, floor))
func (s *Saga) SizeTrade(opp *types.Opportunity, walletTotal decimal.Decimal) decimal.Decimal {
	heuristic := opp.GrossProfit.Mul(s.cfg.ProfitScale)
	if heuristic.LessThan(s.cfg.SizeFloorUSD) {
		heuristic = s.cfg.SizeFloorUSD
	}

	size := heuristic
	if walletCap := walletTotal.Mul(s.cfg.WalletPctCap); size.GreaterThan(walletCap) {
		size = walletCap
	}
	if size.GreaterThan(s.cfg.HardCapUSD) {
		size = s.cfg.HardCapUSD
	}
	return size
}

func (s *Saga) buy(ctx context.Context, r *run, size decimal.Decimal) *types.TradeOutcome {
	receipt, err := s.router.Swap(ctx, dex.SwapRequest{
		Chain:       r.opp.SourceChain,
		Venue:       r.opp.SourceVenue,
		FromAsset:   s.cfg.TradeAsset,
		ToAsset:     r.opp.Token,
		AmountInUSD: size,
		MaxSlippage: s.cfg.MaxSlippage,
	})
	if err != nil {
		return r.fail(types.SagaFailed, types.FailBuy, err)
	}

	r.buyReceipt = receipt
	r.outcome.BuyTxHash = receipt.TxHash
	r.outcome.BuyCost = receipt.AmountIn
	r.outcome.GasSpent = r.outcome.GasSpent.Add(receipt.GasUSD)
	return nil
}

func (s *Saga) initiateBridge(ctx context.Context, r *run) *types.TradeOutcome {
	route := bridge.Route{
		Source: r.opp.SourceChain,
		Target: r.opp.TargetChain,
		Token:  r.opp.Token,
	}

	selection, err := s.bridges.Select(ctx, route, r.buyReceipt.AmountOut)
	if err != nil {
		// No transfer initiated: funds remain on the source chain
		return r.fail(types.SagaFailed, types.FailBridgeInitiation, err)
	}

	transfer, err := selection.Provider.Transfer(ctx, route, r.buyReceipt.AmountOut)
	if err != nil {
		return r.fail(types.SagaFailed, types.FailBridgeInitiation, err)
	}

	r.provider = selection.Provider
	r.transfer = transfer
	r.outcome.BridgeRef = transfer.Ref
	r.outcome.BridgeFee = transfer.FeeUSD
	return nil
}

// awaitBridge polls the provider up to its route-specific timeout. A
// timeout is its own failure class: funds are in flight with an unknown
// outcome, which is not the same thing as a realized loss.
func (s *Saga) awaitBridge(ctx context.Context, r *run) *types.TradeOutcome {
	cost, ok := s.bridges.CachedCost(r.transfer.Provider, r.transfer.Route)
	waitLimit := 10 * time.Minute
	if ok && cost.Timeout > 0 {
		waitLimit = cost.Timeout
	}

	awaitCtx, cancel := context.WithTimeout(ctx, waitLimit)
	defer cancel()

	completion, err := r.provider.AwaitCompletion(awaitCtx, r.transfer)
	if err != nil {
		// Capital has left the source chain either way
		r.outcome.StrandedUSD = r.transfer.AmountUSD

		if awaitCtx.Err() != nil {
			// Transfer still in flight, outcome unknown: flagged for the
			// operator, no loss booked
			return r.fail(types.SagaStrandedFunds, types.FailBridgeTimeout, err)
		}

		// The provider reported a definitive failure before the deadline;
		// book the fees already spent
		r.outcome.LossUSD = r.buyReceipt.GasUSD.Add(r.outcome.BridgeFee)
		return r.fail(types.SagaStrandedFunds, types.FailBridgeDelivery, err)
	}

	r.bridgedUSD = completion.DeliveredUSD
	return nil
}

func (s *Saga) sell(ctx context.Context, r *run) *types.TradeOutcome {
	receipt, err := s.router.Swap(ctx, dex.SwapRequest{
		Chain:       r.opp.TargetChain,
		Venue:       r.opp.TargetVenue,
		FromAsset:   r.opp.Token,
		ToAsset:     s.cfg.TradeAsset,
		AmountInUSD: r.bridgedUSD,
		MaxSlippage: s.cfg.MaxSlippage,
	})
	if err != nil {
		if r.state == types.SagaBridgeConfirmed {
			// Capital is confined to the destination chain. Loss is bounded
			// to the fees already spent; the held tokens are flagged for
			// out-of-band recovery, not written off.
			r.outcome.LossUSD = r.buyReceipt.GasUSD.Add(r.outcome.BridgeFee)
			r.outcome.StrandedUSD = r.bridgedUSD
			return r.fail(types.SagaStrandedFunds, types.FailStrandedFunds, err)
		}
		// Same-chain sell failure: nothing bridged, ordinary recoverable abort
		return r.fail(types.SagaFailed, types.FailSell, err)
	}

	r.sellReceipt = receipt
	r.outcome.SellTxHash = receipt.TxHash
	r.outcome.Proceeds = receipt.AmountOut
	r.outcome.GasSpent = r.outcome.GasSpent.Add(receipt.GasUSD)
	return nil
}
