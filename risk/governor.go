package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK GOVERNOR - Circuit breaker over consecutive failures and daily loss
// ═══════════════════════════════════════════════════════════════════════════════
//
// Checked BEFORE the coordinator slot: a doomed trade must never consume
// the single concurrency slot.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the governor's ceilings
type Config struct {
	MaxConsecutiveFailures int
	MaxDailyLossUSD        decimal.Decimal
	Cooldown               time.Duration // 0 means manual reset only
}

// DefaultConfig returns the production ceilings
func DefaultConfig() Config {
	return Config{
		MaxConsecutiveFailures: 5,
		MaxDailyLossUSD:        decimal.NewFromInt(250),
		Cooldown:               0,
	}
}

// Status is a snapshot of the governor's state for reporting
type Status struct {
	Date                string // day the loss accumulator covers, YYYY-MM-DD
	Permitted           bool
	Tripped             bool
	Reason              string
	ConsecutiveFailures int
	DailyLossUSD        decimal.Decimal
	TrippedAt           time.Time
}

// Governor tracks failure runs and daily loss and vetoes execution
type Governor struct {
	mu sync.RWMutex

	cfg Config

	consecutiveFailures int
	dailyLoss           decimal.Decimal
	tripped             bool
	trippedAt           time.Time
	reason              string
	lastResetDate       string

	now func() time.Time
}

// NewGovernor creates a risk governor
func NewGovernor(cfg Config) *Governor {
	log.Info().
		Int("max_consecutive_failures", cfg.MaxConsecutiveFailures).
		Str("max_daily_loss", cfg.MaxDailyLossUSD.StringFixed(2)).
		Dur("cooldown", cfg.Cooldown).
		Msg("🛡️ Risk governor initialized")

	return &Governor{cfg: cfg, now: time.Now}
}

// Permits reports whether trading is currently allowed
func (g *Governor) Permits() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()

	if !g.tripped {
		return true
	}

	if g.cfg.Cooldown > 0 && g.now().Sub(g.trippedAt) > g.cfg.Cooldown {
		g.resetLocked()
		log.Info().Msg("✅ Risk governor reset after cooldown")
		return true
	}

	return false
}

// Record folds one trade outcome into the counters. Any success clears the
// failure run. Blocked and filtered verdicts never reach here; they are
// policy, not outcomes.
func (g *Governor) Record(outcome *types.TradeOutcome) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()

	if outcome.Success() {
		g.consecutiveFailures = 0
		return
	}

	g.consecutiveFailures++
	if outcome.LossUSD.IsPositive() {
		g.dailyLoss = g.dailyLoss.Add(outcome.LossUSD)
	}

	if g.consecutiveFailures >= g.cfg.MaxConsecutiveFailures {
		g.trip("max consecutive failures")
	}
	if g.dailyLoss.GreaterThanOrEqual(g.cfg.MaxDailyLossUSD) {
		g.trip("max daily loss exceeded")
	}
}

// trip halts trading; callers hold the lock
func (g *Governor) trip(reason string) {
	if g.tripped {
		return
	}
	g.tripped = true
	g.trippedAt = g.now()
	g.reason = reason

	log.Warn().
		Str("reason", reason).
		Int("consecutive_failures", g.consecutiveFailures).
		Str("daily_loss", g.dailyLoss.StringFixed(2)).
		Msg("🚨 RISK GOVERNOR TRIPPED")
}

// rollDay resets the daily loss accumulator on the date boundary;
// callers hold the lock
func (g *Governor) rollDay() {
	today := g.now().Format("2006-01-02")
	if g.lastResetDate != today {
		g.dailyLoss = decimal.Zero
		g.lastResetDate = today
	}
}

func (g *Governor) resetLocked() {
	g.consecutiveFailures = 0
	g.dailyLoss = decimal.Zero
	g.tripped = false
	g.reason = ""
}

// Reset manually clears the governor
func (g *Governor) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
	log.Info().Msg("Risk governor manually reset")
}

// GetStatus returns a snapshot for reporting
func (g *Governor) GetStatus() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()

	date := g.lastResetDate
	if date == "" {
		date = g.now().Format("2006-01-02")
	}

	return Status{
		Date:                date,
		Permitted:           !g.tripped,
		Tripped:             g.tripped,
		Reason:              g.reason,
		ConsecutiveFailures: g.consecutiveFailures,
		DailyLossUSD:        g.dailyLoss,
		TrippedAt:           g.trippedAt,
	}
}
