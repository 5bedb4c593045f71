package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/bridge"
	"github.com/web3guy0/chainarb/chain"
	"github.com/web3guy0/chainarb/coordinator"
	"github.com/web3guy0/chainarb/filter"
	"github.com/web3guy0/chainarb/profit"
	"github.com/web3guy0/chainarb/risk"
	"github.com/web3guy0/chainarb/saga"
	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ENGINE - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Scanner → Filter → Profit gate → Risk governor → Coordinator → Saga
//
// The governor is consulted before the coordinator so a doomed trade never
// consumes the single execution slot. All background loops funnel actual
// execution through that one slot.
//
// ═══════════════════════════════════════════════════════════════════════════════

// Alerter receives distinct notifications for outcomes that need an
// operator: stranded funds and bridge timeouts.
type Alerter interface {
	AlertStranded(outcome *types.TradeOutcome)
	NotifyTrade(outcome *types.TradeOutcome)
}

// Recorder persists completed executions, the stranded-funds ledger and the
// daily risk state
type Recorder interface {
	SaveExecution(record types.ExecutionRecord) error
	SaveStranded(outcome *types.TradeOutcome) error
	SaveRiskDay(status risk.Status) error
	PendingStranded() ([]types.StrandedEntry, error)
	MarkRecovered(id uint) error
}

// ExecutionStatus is the engine's public execution snapshot
type ExecutionStatus struct {
	Executing    *types.ExecutionRecord
	Stats        coordinator.Stats
	ActiveRoutes map[string]string
	QueueDepth   int
}

// Engine wires the trading core together and owns the background loops
type Engine struct {
	mu sync.RWMutex

	filter  *filter.Filter
	gate    *profit.Gate
	gov     *risk.Governor
	coord   *coordinator.Coordinator
	saga    *saga.Saga
	routes  *saga.RouteRegistry
	bridges *bridge.Registry
	clients map[types.Chain]chain.Client

	recorder Recorder // optional
	alerter  Alerter  // optional

	queue    *oppQueue
	pending  chan pendingTx
	stopCh   chan struct{}
	doneWg   sync.WaitGroup
	running  bool
	stranded []*types.TradeOutcome // sagas needing out-of-band recovery
}

// New creates an engine; recorder and alerter may be nil
func New(
	f *filter.Filter,
	gate *profit.Gate,
	gov *risk.Governor,
	coord *coordinator.Coordinator,
	sg *saga.Saga,
	routes *saga.RouteRegistry,
	bridges *bridge.Registry,
	clients map[types.Chain]chain.Client,
	recorder Recorder,
	alerter Alerter,
) *Engine {
	return &Engine{
		filter:   f,
		gate:     gate,
		gov:      gov,
		coord:    coord,
		saga:     sg,
		routes:   routes,
		bridges:  bridges,
		clients:  clients,
		recorder: recorder,
		alerter:  alerter,
		queue:    newOppQueue(64),
		pending:  make(chan pendingTx, 64),
		stopCh:   make(chan struct{}),
	}
}

// SetAlerter wires the operator alert channel after construction
func (e *Engine) SetAlerter(a Alerter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alerter = a
}

// Start launches the decision loop and the reporting loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.doneWg.Add(3)
	go e.decisionLoop()
	go e.watchLoop()
	go e.reportLoop()

	log.Info().Msg("⚡ Arbitrage engine started")
}

// SubmitOpportunities feeds a batch of scanned opportunities to the engine
func (e *Engine) SubmitOpportunities(batch []types.Opportunity) {
	for _, opp := range batch {
		e.queue.push(opp)
	}
}

// decisionLoop drains the queue and pushes candidates through the pipeline
func (e *Engine) decisionLoop() {
	defer e.doneWg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case opp := <-e.queue.pop():
			e.consider(&opp)
		}
	}
}

// consider runs one opportunity through filter → profit → risk → execute
func (e *Engine) consider(opp *types.Opportunity) {
	verdict := e.filter.Check(opp)
	if !verdict.ShouldExecute {
		return
	}

	gasGwei, opClass, ok := e.gasContext(opp)
	if !ok {
		log.Warn().
			Str("opp", opp.ID).
			Str("chain", string(opp.SourceChain)).
			Msg("⚠️ Gas price unknown, skipping opportunity")
		return
	}
	profitable, net := e.gate.IsProfitable(opp, gasGwei, opClass, e.bridgeFeeEstimate(opp))
	if !profitable {
		return
	}

	if !e.gov.Permits() {
		log.Warn().
			Str("opp", opp.ID).
			Msg("🛑 Risk governor veto, trade skipped")
		return
	}

	log.Info().
		Str("opp", opp.ID).
		Str("token", opp.Token).
		Float64("priority", verdict.PriorityScore).
		Str("est_net", net.StringFixed(2)).
		Msg("🎯 Executing opportunity")

	result := e.coord.Execute(context.Background(), *opp, "decision_loop", func(ctx context.Context) *types.TradeOutcome {
		return e.saga.Run(ctx, opp)
	})
	if result.Blocked {
		return
	}

	e.recordOutcome(result)
}

// recordOutcome feeds an execution result to risk, learning and persistence
func (e *Engine) recordOutcome(result coordinator.Result) {
	outcome := result.Outcome
	if outcome == nil {
		return
	}

	e.mu.RLock()
	alerter := e.alerter
	e.mu.RUnlock()

	e.gov.Record(outcome)
	if e.recorder != nil {
		if err := e.recorder.SaveRiskDay(e.gov.GetStatus()); err != nil {
			log.Error().Err(err).Msg("Failed to persist risk state")
		}
	}

	// Post-hoc venue learning
	elapsed := result.Record.FinishedAt.Sub(result.Record.StartedAt)
	opp := result.Record.Opportunity
	e.filter.Venues().Observe(opp.SourceVenue.Key(), elapsed, outcome.Success())
	e.filter.Venues().Observe(opp.TargetVenue.Key(), elapsed, outcome.Success())

	// Hand submitted legs to the confirmation watch
	e.trackTx(opp.SourceChain, outcome.BuyTxHash)
	e.trackTx(opp.TargetChain, outcome.SellTxHash)

	if e.recorder != nil {
		if err := e.recorder.SaveExecution(result.Record); err != nil {
			log.Error().Err(err).Msg("Failed to persist execution record")
		}
	}

	if outcome.Failure.NeedsAlert() {
		e.mu.Lock()
		e.stranded = append(e.stranded, outcome)
		e.mu.Unlock()

		if e.recorder != nil {
			if err := e.recorder.SaveStranded(outcome); err != nil {
				log.Error().Err(err).Msg("Failed to persist stranded record")
			}
		}
		if alerter != nil {
			alerter.AlertStranded(outcome)
		}
		log.Error().
			Str("opp", outcome.OpportunityID).
			Str("failure", string(outcome.Failure)).
			Str("stranded", outcome.StrandedUSD.StringFixed(2)).
			Msg("🚨 STRANDED FUNDS - manual recovery required")
		return
	}

	if alerter != nil {
		alerter.NotifyTrade(outcome)
	}
}

// gasContext reads the current gas price for the buy chain. A missing client
// or failed read returns ok=false; an unknown gas price must never pass the
// profit gate as cheap gas.
func (e *Engine) gasContext(opp *types.Opportunity) (decimal.Decimal, types.OperationClass, bool) {
	opClass := types.OpSameChain
	if opp.CrossChain() {
		opClass = types.OpCrossChain
	}

	client, ok := e.clients[opp.SourceChain]
	if !ok {
		return decimal.Zero, opClass, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gasGwei, err := client.GasPriceGwei(ctx)
	if err != nil {
		log.Warn().Err(err).Str("chain", string(opp.SourceChain)).Msg("⚠️ Gas price read failed")
		return decimal.Zero, opClass, false
	}
	return gasGwei, opClass, true
}

// bridgeFeeEstimate returns the cached fee for the opportunity's route
func (e *Engine) bridgeFeeEstimate(opp *types.Opportunity) decimal.Decimal {
	if !opp.CrossChain() || e.bridges == nil {
		return decimal.Zero
	}
	route := bridge.Route{Source: opp.SourceChain, Target: opp.TargetChain, Token: opp.Token}
	if fee, ok := e.bridges.CheapestCachedFee(route); ok {
		return fee
	}
	return decimal.Zero
}

// reportLoop periodically logs aggregate execution and risk state
func (e *Engine) reportLoop() {
	defer e.doneWg.Done()

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			stats := e.coord.GetStats()
			status := e.gov.GetStatus()
			log.Info().
				Int64("total", stats.Total).
				Int64("succeeded", stats.Succeeded).
				Int64("failed", stats.Failed).
				Int64("lock_violations", stats.LockViolations).
				Int("consecutive_failures", status.ConsecutiveFailures).
				Str("daily_loss", status.DailyLossUSD.StringFixed(2)).
				Msg("📊 Periodic report")
		}
	}
}

// GetExecutionStatus returns the live execution snapshot
func (e *Engine) GetExecutionStatus() ExecutionStatus {
	status := ExecutionStatus{
		Stats:        e.coord.GetStats(),
		ActiveRoutes: e.routes.Active(),
		QueueDepth:   len(e.queue.ch),
	}
	if record, ok := e.coord.Executing(); ok {
		status.Executing = &record
	}
	return status
}

// GetRiskStatus returns the governor's snapshot
func (e *Engine) GetRiskStatus() risk.Status {
	return e.gov.GetStatus()
}

// ResetRisk manually clears the risk governor
func (e *Engine) ResetRisk() {
	e.gov.Reset()
}

// MarkStrandedRecovered closes one stranded-funds ledger entry
func (e *Engine) MarkStrandedRecovered(id uint) error {
	if e.recorder == nil {
		return fmt.Errorf("no persistence configured")
	}
	if err := e.recorder.MarkRecovered(id); err != nil {
		return fmt.Errorf("mark stranded entry %d recovered: %w", id, err)
	}
	log.Info().Uint("id", id).Msg("✅ Stranded entry marked recovered")
	return nil
}

// Shutdown stops background loops, waits for any in-flight saga to reach a
// terminal state, and reports sagas that stranded funds.
func (e *Engine) Shutdown(ctx context.Context) []*types.TradeOutcome {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	if e.bridges != nil {
		e.bridges.Stop()
	}

	done := make(chan struct{})
	go func() {
		e.doneWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if record, ok := e.coord.Executing(); ok {
			log.Warn().
				Str("opp", record.Opportunity.ID).
				Str("initiator", record.Initiator).
				Msg("⚠️ Abandoning in-flight execution at shutdown")
		}
	}

	e.mu.RLock()
	stranded := make([]*types.TradeOutcome, len(e.stranded))
	copy(stranded, e.stranded)
	e.mu.RUnlock()

	if len(stranded) > 0 {
		log.Error().
			Int("count", len(stranded)).
			Msg("🚨 Shutdown with stranded-funds sagas pending recovery")
	} else {
		log.Info().Msg("👋 Engine stopped clean")
	}

	return stranded
}
