package funding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/chain"
	"github.com/web3guy0/chainarb/dex"
	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SMART BALANCE MANAGER - Just-in-time funding of the trade currency
// ═══════════════════════════════════════════════════════════════════════════════
//
// Holds a short-lived balance snapshot per chain and converts a reserve
// asset into the trade currency only when a trade actually needs it.
// Conversions never dip an asset below its configured minimum reserve.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the balance manager tunables
type Config struct {
	CacheTTL           time.Duration
	TradeAsset         string          // what trades are funded in, e.g. USDC
	GasReserveUSD      decimal.Decimal // native value kept untouched for gas
	MaxSlippage        decimal.Decimal
	ConversionPriority []string // lowest-liquidity first, native-adjacent last
	MinReserves        map[string]decimal.Decimal
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		CacheTTL:      30 * time.Second,
		TradeAsset:    "USDC",
		GasReserveUSD: decimal.NewFromInt(5),
		MaxSlippage:   decimal.NewFromFloat(0.005),
		ConversionPriority: []string{
			"DAI", "USDT", "WBTC", "WETH", "NATIVE",
		},
		MinReserves: map[string]decimal.Decimal{
			"NATIVE": decimal.NewFromInt(10),
			"WETH":   decimal.NewFromInt(25),
			"WBTC":   decimal.NewFromInt(25),
			"USDT":   decimal.Zero,
			"DAI":    decimal.Zero,
		},
	}
}

// FundingResult reports how a funding request was satisfied
type FundingResult struct {
	Sufficient         bool
	ConversionExecuted bool
	Plan               types.ConversionPlan
	ShortfallUSD       decimal.Decimal
	Details            string
}

// Manager owns the per-chain balance cache and executes conversions
type Manager struct {
	mu sync.Mutex

	cfg     Config
	wallet  common.Address
	clients map[types.Chain]chain.Client
	router  dex.Router

	snapshots map[types.Chain]*types.WalletSnapshot
	now       func() time.Time
}

// NewManager creates a balance manager over the given chain clients
func NewManager(cfg Config, wallet common.Address, clients map[types.Chain]chain.Client, router dex.Router) *Manager {
	log.Info().
		Str("trade_asset", cfg.TradeAsset).
		Dur("cache_ttl", cfg.CacheTTL).
		Str("gas_reserve", cfg.GasReserveUSD.StringFixed(2)).
		Msg("💰 Balance manager initialized")

	return &Manager{
		cfg:       cfg,
		wallet:    wallet,
		clients:   clients,
		router:    router,
		snapshots: make(map[types.Chain]*types.WalletSnapshot),
		now:       time.Now,
	}
}

// Snapshot returns the cached balance snapshot for a chain, refreshing it
// when expired or when force is set.
func (m *Manager) Snapshot(ctx context.Context, ch types.Chain, force bool) (*types.WalletSnapshot, error) {
	m.mu.Lock()
	cached, ok := m.snapshots[ch]
	fresh := ok && m.now().Sub(cached.FetchedAt) < m.cfg.CacheTTL
	m.mu.Unlock()

	if fresh && !force {
		return cached, nil
	}

	client, ok := m.clients[ch]
	if !ok {
		return nil, fmt.Errorf("no chain client for %s", ch)
	}

	balances, err := client.AssetBalancesUSD(ctx, m.wallet)
	if err != nil {
		return nil, fmt.Errorf("refresh balances on %s: %w", ch, err)
	}

	snapshot := &types.WalletSnapshot{
		Chain:     ch,
		Balances:  balances,
		FetchedAt: m.now(),
	}

	m.mu.Lock()
	m.snapshots[ch] = snapshot
	m.mu.Unlock()

	return snapshot, nil
}

// Invalidate drops the cached snapshot for a chain
func (m *Manager) Invalidate(ch types.Chain) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, ch)
}

// EnsureFunds makes sure the trade asset balance on a chain covers the
// required amount plus the gas reserve, converting another held asset
// through the DEX router when necessary.
func (m *Manager) EnsureFunds(ctx context.Context, requiredUSD decimal.Decimal, ch types.Chain) (FundingResult, error) {
	snapshot, err := m.Snapshot(ctx, ch, false)
	if err != nil {
		return FundingResult{}, err
	}

	needed := requiredUSD.Add(m.cfg.GasReserveUSD)
	have := snapshot.Balances[m.cfg.TradeAsset]

	if have.GreaterThanOrEqual(needed) {
		return FundingResult{Sufficient: true, Details: "trade asset balance sufficient"}, nil
	}

	shortfall := needed.Sub(have)
	plan := PlanConversion(snapshot, shortfall, m.cfg.ConversionPriority, m.cfg.MinReserves)

	if !plan.Viable {
		log.Warn().
			Str("chain", string(ch)).
			Str("shortfall", shortfall.StringFixed(2)).
			Str("total_available", plan.TotalAvailable.StringFixed(2)).
			Msg("⚠️ Funding infeasible, no single asset covers shortfall")

		return FundingResult{
			Plan:         plan,
			ShortfallUSD: shortfall,
			Details: fmt.Sprintf("insufficient: need %s more, %s available above reserves",
				shortfall.StringFixed(2), plan.TotalAvailable.StringFixed(2)),
		}, nil
	}

	log.Info().
		Str("chain", string(ch)).
		Str("asset", plan.SourceAsset).
		Str("amount", plan.AmountUSD.StringFixed(2)).
		Msg("🔄 Converting reserve asset to trade currency")

	_, err = m.router.Swap(ctx, dex.SwapRequest{
		Chain:       ch,
		Venue:       types.Venue{Name: "funding", Chain: ch},
		FromAsset:   plan.SourceAsset,
		ToAsset:     m.cfg.TradeAsset,
		AmountInUSD: plan.AmountUSD,
		MaxSlippage: m.cfg.MaxSlippage,
	})
	if err != nil {
		// Conversion tx failed: funding failure, the saga must not buy
		return FundingResult{
			Plan:         plan,
			ShortfallUSD: shortfall,
			Details:      "conversion transaction failed",
		}, fmt.Errorf("convert %s→%s on %s: %w", plan.SourceAsset, m.cfg.TradeAsset, ch, err)
	}

	// Re-check with a forced refresh; the swap changed on-chain state
	m.Invalidate(ch)
	snapshot, err = m.Snapshot(ctx, ch, true)
	if err != nil {
		return FundingResult{ConversionExecuted: true, Plan: plan}, err
	}

	have = snapshot.Balances[m.cfg.TradeAsset]
	if have.LessThan(needed) {
		return FundingResult{
			ConversionExecuted: true,
			Plan:               plan,
			ShortfallUSD:       needed.Sub(have),
			Details:            "still short after conversion",
		}, nil
	}

	return FundingResult{
		Sufficient:         true,
		ConversionExecuted: true,
		Plan:               plan,
		Details:            "converted " + plan.SourceAsset + " to cover shortfall",
	}, nil
}
