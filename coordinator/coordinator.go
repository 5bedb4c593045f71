package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EXECUTION COORDINATOR - Process-wide single-flight trade gate
// ═══════════════════════════════════════════════════════════════════════════════
//
// At most one trade executes at a time. Contenders are never queued: a
// held lock means the world has moved on by the time the slot frees, so
// callers get Blocked=true immediately and re-decide from fresh data.
//
// The lock is released on every exit path: success, failure, panic,
// timeout. A callback that outruns its deadline loses the slot and its
// eventual result is dropped.
//
// ═══════════════════════════════════════════════════════════════════════════════

// DefaultTimeout is the hard ceiling on one execution callback
const DefaultTimeout = 300 * time.Second

const historySize = 100

// Callback performs the actual trade under the coordinator's slot.
// It must return a structured outcome; errors never propagate past here.
type Callback func(ctx context.Context) *types.TradeOutcome

// Result is what a caller gets back from Execute
type Result struct {
	Blocked bool
	Record  types.ExecutionRecord
	Outcome *types.TradeOutcome
}

// Stats are the coordinator's aggregate counters
type Stats struct {
	Total          int64
	Succeeded      int64
	Failed         int64
	Abandoned      int64
	LockViolations int64
	AvgDuration    time.Duration
}

// Coordinator owns the global execution lock and per-execution records
type Coordinator struct {
	slot    sync.Mutex // the single execution slot
	timeout time.Duration

	mu      sync.Mutex // guards everything below
	current *types.ExecutionRecord
	history []types.ExecutionRecord // ring of last completed records
	next    int
	filled  bool

	total          int64
	succeeded      int64
	failed         int64
	abandoned      int64
	lockViolations int64
	totalDuration  time.Duration
}

// New creates a coordinator with the given callback timeout
func New(timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log.Info().
		Dur("timeout", timeout).
		Msg("⚡ Execution coordinator initialized")

	return &Coordinator{
		timeout: timeout,
		history: make([]types.ExecutionRecord, historySize),
	}
}

// Execute runs the callback under the global slot. If the slot is held the
// call returns immediately with Blocked=true and no side effects.
func (c *Coordinator) Execute(ctx context.Context, opp types.Opportunity, initiator string, cb Callback) Result {
	if !c.slot.TryLock() {
		c.mu.Lock()
		c.lockViolations++
		violations := c.lockViolations
		c.mu.Unlock()

		log.Warn().
			Str("opp", opp.ID).
			Str("initiator", initiator).
			Int64("lock_violations", violations).
			Msg("🔒 Execution blocked, slot held")

		return Result{Blocked: true}
	}

	record := types.ExecutionRecord{
		ID:          uuid.NewString(),
		Initiator:   initiator,
		Opportunity: opp,
		Status:      types.ExecExecuting,
		StartedAt:   time.Now(),
	}

	c.mu.Lock()
	c.total++
	c.current = &record
	c.mu.Unlock()

	outcome := c.runGuarded(ctx, opp, cb)

	// Finalize under the lock: Executing() snapshots *c.current, which still
	// points at this record until it is dropped below
	c.mu.Lock()
	record.FinishedAt = time.Now()
	record.Result = outcome
	record.Status = statusFor(outcome)
	switch record.Status {
	case types.ExecSucceeded:
		c.succeeded++
	case types.ExecTimedOut, types.ExecAbandoned:
		c.abandoned++
	default:
		c.failed++
	}
	c.totalDuration += record.FinishedAt.Sub(record.StartedAt)
	c.pushHistory(record)
	c.current = nil
	c.mu.Unlock()

	c.slot.Unlock()

	return Result{Record: record, Outcome: outcome}
}

// runGuarded invokes the callback under the hard timeout, converting panics
// and overruns into failed outcomes.
func (c *Coordinator) runGuarded(ctx context.Context, opp types.Opportunity, cb Callback) *types.TradeOutcome {
	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan *types.TradeOutcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Str("opp", opp.ID).
					Interface("panic", r).
					Msg("❌ Execution callback panicked")
				done <- &types.TradeOutcome{
					OpportunityID: opp.ID,
					FinalState:    types.SagaFailed,
					Failure:       types.FailInternal,
					Error:         fmt.Sprintf("callback panic: %v", r),
				}
			}
		}()
		done <- cb(runCtx)
	}()

	select {
	case outcome := <-done:
		if outcome == nil {
			outcome = &types.TradeOutcome{
				OpportunityID: opp.ID,
				FinalState:    types.SagaFailed,
				Failure:       types.FailInternal,
				Error:         "callback returned no outcome",
			}
		}
		return outcome
	case <-runCtx.Done():
		log.Error().
			Str("opp", opp.ID).
			Dur("timeout", c.timeout).
			Msg("⏰ Execution timed out, abandoning slot")
		return &types.TradeOutcome{
			OpportunityID: opp.ID,
			FinalState:    types.SagaFailed,
			Failure:       types.FailTimeout,
			Error:         "execution exceeded hard timeout",
		}
	}
}

func statusFor(outcome *types.TradeOutcome) types.ExecStatus {
	switch {
	case outcome.Success():
		return types.ExecSucceeded
	case outcome.Failure == types.FailTimeout:
		return types.ExecTimedOut
	default:
		return types.ExecFailed
	}
}

func (c *Coordinator) pushHistory(record types.ExecutionRecord) {
	c.history[c.next] = record
	c.next = (c.next + 1) % len(c.history)
	if c.next == 0 {
		c.filled = true
	}
}

// Executing returns the live record, if an execution is in flight
func (c *Coordinator) Executing() (types.ExecutionRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return types.ExecutionRecord{}, false
	}
	return *c.current, true
}

// History returns completed records, most recent first
func (c *Coordinator) History() []types.ExecutionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next
	if c.filled {
		n = len(c.history)
	}

	out := make([]types.ExecutionRecord, 0, n)
	for i := 1; i <= n; i++ {
		idx := (c.next - i + len(c.history)) % len(c.history)
		out = append(out, c.history[idx])
	}
	return out
}

// GetStats returns the aggregate counters
func (c *Coordinator) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Total:          c.total,
		Succeeded:      c.succeeded,
		Failed:         c.failed,
		Abandoned:      c.abandoned,
		LockViolations: c.lockViolations,
	}
	completed := c.succeeded + c.failed + c.abandoned
	if completed > 0 {
		stats.AvgDuration = c.totalDuration / time.Duration(completed)
	}
	return stats
}
