// Chainarb - Multi-chain DEX arbitrage engine
//
// Detects price discrepancies for a token across DEX venues, possibly on
// different chains, and executes the round trip under a single-flight
// execution gate, a gas-tier profitability gate and a risk circuit breaker.
//
// Cross-chain trades run as a saga: buy → bridge → await → sell. There is
// no cross-chain atomicity, so partial failure handling, including funds
// stranded on the far chain, is first-class.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/bot"
	"github.com/web3guy0/chainarb/bridge"
	"github.com/web3guy0/chainarb/chain"
	"github.com/web3guy0/chainarb/coordinator"
	"github.com/web3guy0/chainarb/dex"
	"github.com/web3guy0/chainarb/engine"
	"github.com/web3guy0/chainarb/feeds"
	"github.com/web3guy0/chainarb/filter"
	"github.com/web3guy0/chainarb/funding"
	"github.com/web3guy0/chainarb/internal/config"
	"github.com/web3guy0/chainarb/profit"
	"github.com/web3guy0/chainarb/risk"
	"github.com/web3guy0/chainarb/saga"
	"github.com/web3guy0/chainarb/storage"
	"github.com/web3guy0/chainarb/types"
)

const version = "1.2.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load environment
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	log.Info().
		Str("version", version).
		Strs("chains", cfg.Chains).
		Bool("dry_run", cfg.DryRun).
		Msg("⚡ Chainarb starting...")

	// ====== PERSISTENCE ======
	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Recap from previous runs
	if pending, err := db.PendingStranded(); err == nil && len(pending) > 0 {
		log.Warn().
			Int("count", len(pending)).
			Msg("🚨 Stranded funds pending recovery from earlier runs, see /stranded")
	}
	if recent, err := db.RecentExecutions(5); err == nil && len(recent) > 0 {
		log.Info().
			Int("count", len(recent)).
			Str("last_status", recent[0].Status).
			Time("last_finished", recent[0].FinishedAt).
			Msg("📝 Recent execution history loaded")
	}

	// ====== CHAIN CLIENTS ======
	wallet := common.HexToAddress(cfg.Wallet)
	clients := make(map[types.Chain]chain.Client)
	for _, name := range cfg.Chains {
		ch := types.Chain(name)
		rpcURL, ok := cfg.RPCURLs[name]
		if !ok {
			log.Warn().Str("chain", name).Msg("⚠️ No RPC URL configured, chain disabled")
			continue
		}
		// TODO: feed native asset spot prices from the scanner stream
		client, err := chain.NewEthClient(ch, rpcURL, wallet, func() decimal.Decimal {
			return decimal.NewFromInt(1)
		})
		if err != nil {
			log.Fatal().Err(err).Str("chain", name).Msg("Failed to connect chain client")
		}
		clients[ch] = client
	}

	// ====== TRADING COLLABORATORS ======
	// Live venue routers and bridge integrations plug in here; the paper
	// implementations simulate fills and transfers for dry runs.
	router := dex.NewPaperRouter()
	bridges := bridge.NewRegistry(
		bridge.NewPaperBridge("hop", decimal.NewFromFloat(0.003), 30*time.Second),
		bridge.NewPaperBridge("across", decimal.NewFromFloat(0.002), 45*time.Second),
	)

	fundingCfg := funding.DefaultConfig()
	fundingCfg.TradeAsset = cfg.TradeAsset
	fundingCfg.GasReserveUSD = cfg.GasReserveUSD
	fundingCfg.MaxSlippage = cfg.MaxSlippage
	funds := funding.NewManager(fundingCfg, wallet, clients, router)

	// ====== CORE COMPONENTS ======
	filterCfg := filter.DefaultConfig()
	filterCfg.MaxAge = cfg.MaxOpportunityAge
	filterCfg.MinProfitAfterDecay = cfg.MinProfitDecayed
	oppFilter := filter.New(filterCfg, filter.NewVenueBook())

	gate := profit.NewGate(cfg.AbsoluteProfitFloor)

	riskCfg := risk.DefaultConfig()
	riskCfg.MaxConsecutiveFailures = cfg.MaxConsecutiveFailures
	riskCfg.MaxDailyLossUSD = cfg.MaxDailyLossUSD
	governor := risk.NewGovernor(riskCfg)

	coord := coordinator.New(cfg.ExecutionTimeout)

	sagaCfg := saga.DefaultConfig()
	sagaCfg.ExecutionWindow = cfg.MaxOpportunityAge
	sagaCfg.HardCapUSD = cfg.TradeHardCapUSD
	sagaCfg.WalletPctCap = cfg.WalletPctCap
	sagaCfg.SizeFloorUSD = cfg.TradeFloorUSD
	sagaCfg.MaxSlippage = cfg.MaxSlippage
	sagaCfg.TradeAsset = cfg.TradeAsset
	routes := saga.NewRouteRegistry()
	trader := saga.New(sagaCfg, funds, router, bridges, routes)

	eng := engine.New(oppFilter, gate, governor, coord, trader, routes, bridges, clients, db, nil)

	// ====== TELEGRAM BOT ======
	var telegramBot *bot.TelegramBot
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		telegramBot, err = bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, eng)
		if err != nil {
			log.Warn().Err(err).Msg("⚠️ Telegram disabled")
		} else {
			eng.SetAlerter(telegramBot)
			go telegramBot.Start()
		}
	} else {
		log.Warn().Msg("⚠️ No Telegram credentials, alerts go to logs only")
	}

	// ====== BACKGROUND LOOPS ======
	eng.Start()
	bridges.StartCostRefresh(60*time.Second, func() []bridge.Route {
		var out []bridge.Route
		for src := range clients {
			for dst := range clients {
				if src != dst {
					out = append(out, bridge.Route{Source: src, Target: dst, Token: "WETH"})
				}
			}
		}
		return out
	}, decimal.NewFromInt(100))

	var scanner *feeds.Scanner
	if cfg.ScannerURL != "" {
		scanner = feeds.NewScanner(cfg.ScannerURL, cfg.ScannerMinSpread, eng)
		scanner.Start()
	} else {
		log.Warn().Msg("⚠️ No scanner URL, waiting for submitted opportunities only")
	}

	log.Info().Msg("✅ All systems online")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("🛑 Received shutdown signal")

	// Graceful shutdown: drain loops, then surface anything stranded
	if scanner != nil {
		scanner.Stop()
	}
	if telegramBot != nil {
		telegramBot.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stranded := eng.Shutdown(shutdownCtx)
	for _, outcome := range stranded {
		log.Error().
			Str("opp", outcome.OpportunityID).
			Str("bridge_ref", outcome.BridgeRef).
			Str("stranded_usd", outcome.StrandedUSD.StringFixed(2)).
			Msg("🚨 Needs recovery")
	}

	log.Info().Msg("👋 Goodbye!")
}
