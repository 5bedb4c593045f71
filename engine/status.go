package engine

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// Text renderers backing the operator bot commands.

// StatusText formats the execution snapshot for display
func (e *Engine) StatusText() string {
	status := e.GetExecutionStatus()

	var sb strings.Builder
	sb.WriteString("📊 Execution status\n")
	fmt.Fprintf(&sb, "Total: %d  ✅ %d  ❌ %d  ⏰ %d\n",
		status.Stats.Total, status.Stats.Succeeded, status.Stats.Failed, status.Stats.Abandoned)
	fmt.Fprintf(&sb, "Lock violations: %d\n", status.Stats.LockViolations)
	fmt.Fprintf(&sb, "Queue depth: %d\n", status.QueueDepth)

	if status.Executing != nil {
		fmt.Fprintf(&sb, "In flight: %s (%s)\n",
			status.Executing.Opportunity.ID, status.Executing.Initiator)
	} else {
		sb.WriteString("In flight: none\n")
	}

	if len(status.ActiveRoutes) > 0 {
		sb.WriteString("Active routes:\n")
		for route, opp := range status.ActiveRoutes {
			fmt.Fprintf(&sb, "  %s ← %s\n", route, opp)
		}
	}
	return sb.String()
}

// RiskText formats the governor state for display
func (e *Engine) RiskText() string {
	s := e.GetRiskStatus()

	state := "🟢 trading permitted"
	if s.Tripped {
		state = "🔴 HALTED: " + s.Reason
	}
	return fmt.Sprintf("🛡️ Risk\n%s\nConsecutive failures: %d\nDaily loss: $%s",
		state, s.ConsecutiveFailures, s.DailyLossUSD.StringFixed(2))
}

// StrandedText lists sagas pending out-of-band recovery: this run's
// in-memory list plus the persisted ledger from earlier runs.
func (e *Engine) StrandedText() string {
	e.mu.RLock()
	stranded := make([]*types.TradeOutcome, len(e.stranded))
	copy(stranded, e.stranded)
	e.mu.RUnlock()

	var ledger []types.StrandedEntry
	if e.recorder != nil {
		entries, err := e.recorder.PendingStranded()
		if err != nil {
			log.Error().Err(err).Msg("Failed to load stranded ledger")
		}
		ledger = entries
	}

	if len(stranded) == 0 && len(ledger) == 0 {
		return "No stranded funds 🎉"
	}

	var sb strings.Builder
	if len(stranded) > 0 {
		fmt.Fprintf(&sb, "🚨 %d saga(s) stranded this run\n", len(stranded))
		for _, o := range stranded {
			fmt.Fprintf(&sb, "  %s: $%s on far side, fees lost $%s (%s)\n",
				o.OpportunityID, o.StrandedUSD.StringFixed(2), o.LossUSD.StringFixed(2), o.Failure)
		}
	}
	if len(ledger) > 0 {
		fmt.Fprintf(&sb, "📝 %d ledger entries pending, /recovered <id> to close\n", len(ledger))
		for _, entry := range ledger {
			fmt.Fprintf(&sb, "  #%d %s: $%s on far side via %s (%s)\n",
				entry.ID, entry.OpportunityID, entry.StrandedUSD.StringFixed(2), entry.BridgeRef, entry.Failure)
		}
	}
	return sb.String()
}
