package bot

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Alerts and operator commands
// ═══════════════════════════════════════════════════════════════════════════════
//
// Stranded funds and bridge timeouts get their own loud alert format;
// everything else is routine trade notification.
//
// Commands: /status, /risk, /stranded, /recovered, /reset
//
// ═══════════════════════════════════════════════════════════════════════════════

// StatusProvider is the engine surface the bot reports from
type StatusProvider interface {
	StatusText() string
	RiskText() string
	StrandedText() string
	ResetRisk()
	MarkStrandedRecovered(id uint) error
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	status  StatusProvider
	stopCh  chan struct{}
	running bool
}

// NewTelegramBot creates the alerting bot
func NewTelegramBot(token string, chatID int64, status StatusProvider) (*TelegramBot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	log.Info().Str("bot", api.Self.UserName).Msg("🤖 Telegram bot connected")

	return &TelegramBot{
		api:    api,
		chatID: chatID,
		status: status,
		stopCh: make(chan struct{}),
	}, nil
}

// Start begins polling for commands
func (b *TelegramBot) Start() {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-b.stopCh:
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(update.Message)
		}
	}
}

// Stop halts command polling
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		close(b.stopCh)
		b.running = false
	}
}

func (b *TelegramBot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "status":
		b.send(b.status.StatusText())
	case "risk":
		b.send(b.status.RiskText())
	case "stranded":
		b.send(b.status.StrandedText())
	case "reset":
		b.status.ResetRisk()
		b.send("✅ Risk governor reset")
	case "recovered":
		b.handleRecovered(msg.CommandArguments())
	case "help":
		b.send("Commands:\n/status - execution stats\n/risk - circuit breaker state\n/stranded - funds pending recovery\n/recovered <id> - close a stranded ledger entry\n/reset - clear the risk halt")
	}
}

func (b *TelegramBot) handleRecovered(args string) {
	id, err := strconv.ParseUint(strings.TrimSpace(args), 10, 64)
	if err != nil {
		b.send("Usage: /recovered <ledger id>")
		return
	}
	if err := b.status.MarkStrandedRecovered(uint(id)); err != nil {
		b.send(fmt.Sprintf("❌ %v", err))
		return
	}
	b.send(fmt.Sprintf("✅ Ledger entry #%d closed", id))
}

// AlertStranded sends the distinct stranded-funds / bridge-timeout alert
func (b *TelegramBot) AlertStranded(outcome *types.TradeOutcome) {
	header := "🚨 STRANDED FUNDS"
	if outcome.Failure == types.FailBridgeTimeout {
		header = "⏰ BRIDGE TIMEOUT - funds in flight"
	}

	b.send(fmt.Sprintf(
		"%s\n\nOpportunity: %s\nBridge ref: %s\nValue on far side: $%s\nFees lost: $%s\n\nManual recovery required.",
		header,
		outcome.OpportunityID,
		outcome.BridgeRef,
		outcome.StrandedUSD.StringFixed(2),
		outcome.LossUSD.StringFixed(2),
	))
}

// NotifyTrade sends a routine trade result notification
func (b *TelegramBot) NotifyTrade(outcome *types.TradeOutcome) {
	if outcome.Success() {
		b.send(fmt.Sprintf("✅ Trade complete: %s\nNet profit: $%s",
			outcome.OpportunityID, outcome.NetProfit.StringFixed(2)))
		return
	}
	b.send(fmt.Sprintf("❌ Trade failed: %s\nStage: %s\nFailure: %s",
		outcome.OpportunityID, outcome.FinalState, outcome.Failure))
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
