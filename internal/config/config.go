package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all configuration for the engine
type Config struct {
	// Mode
	DryRun bool
	Debug  bool

	// Chains
	Chains  []string          // enabled chains
	RPCURLs map[string]string // chain → RPC endpoint
	Wallet  string

	// Scanner
	ScannerURL       string
	ScannerMinSpread decimal.Decimal

	// Filter
	MaxOpportunityAge time.Duration
	MinProfitDecayed  decimal.Decimal

	// Profitability
	AbsoluteProfitFloor decimal.Decimal

	// Sizing
	TradeHardCapUSD decimal.Decimal
	WalletPctCap    decimal.Decimal
	TradeFloorUSD   decimal.Decimal

	// Funding
	TradeAsset    string
	GasReserveUSD decimal.Decimal
	MaxSlippage   decimal.Decimal

	// Risk
	MaxConsecutiveFailures int
	MaxDailyLossUSD        decimal.Decimal

	// Coordinator
	ExecutionTimeout time.Duration

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Database
	DatabasePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DryRun: getEnvBool("DRY_RUN", true),
		Debug:  getEnvBool("DEBUG", false),

		Chains:  strings.Split(getEnv("CHAINS", "polygon,arbitrum"), ","),
		RPCURLs: make(map[string]string),
		Wallet:  os.Getenv("WALLET_ADDRESS"),

		ScannerURL:       getEnv("SCANNER_WS_URL", ""),
		ScannerMinSpread: getEnvDecimal("SCANNER_MIN_SPREAD", decimal.NewFromFloat(0.01)),

		MaxOpportunityAge: getEnvDuration("MAX_OPPORTUNITY_AGE", 15*time.Second),
		MinProfitDecayed:  getEnvDecimal("MIN_PROFIT_DECAYED", decimal.NewFromInt(1)),

		AbsoluteProfitFloor: getEnvDecimal("ABSOLUTE_PROFIT_FLOOR", decimal.NewFromFloat(0.5)),

		TradeHardCapUSD: getEnvDecimal("TRADE_HARD_CAP", decimal.NewFromInt(500)),
		WalletPctCap:    getEnvDecimal("WALLET_PCT_CAP", decimal.NewFromFloat(0.25)),
		TradeFloorUSD:   getEnvDecimal("TRADE_FLOOR", decimal.NewFromInt(25)),

		TradeAsset:    getEnv("TRADE_ASSET", "USDC"),
		GasReserveUSD: getEnvDecimal("GAS_RESERVE_USD", decimal.NewFromInt(5)),
		MaxSlippage:   getEnvDecimal("MAX_SLIPPAGE", decimal.NewFromFloat(0.005)),

		MaxConsecutiveFailures: getEnvInt("MAX_CONSECUTIVE_FAILURES", 5),
		MaxDailyLossUSD:        getEnvDecimal("MAX_DAILY_LOSS_USD", decimal.NewFromInt(250)),

		ExecutionTimeout: getEnvDuration("EXECUTION_TIMEOUT", 300*time.Second),

		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),

		DatabasePath: getEnv("DATABASE_PATH", "data/chainarb.db"),
	}

	for _, ch := range cfg.Chains {
		ch = strings.TrimSpace(ch)
		key := "RPC_URL_" + strings.ToUpper(ch)
		if url := os.Getenv(key); url != "" {
			cfg.RPCURLs[ch] = url
		}
	}

	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.TelegramChatID = id
	}

	if !cfg.DryRun && cfg.Wallet == "" {
		return nil, fmt.Errorf("WALLET_ADDRESS is required for live trading")
	}

	return cfg, nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
