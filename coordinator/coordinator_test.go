package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/web3guy0/chainarb/types"
)

func testOpp(id string) types.Opportunity {
	return types.Opportunity{
		ID:           id,
		Token:        "WETH",
		SourceChain:  types.ChainPolygon,
		TargetChain:  types.ChainArbitrum,
		DiscoveredAt: time.Now(),
	}
}

func soldOutcome(oppID string) *types.TradeOutcome {
	return &types.TradeOutcome{OpportunityID: oppID, FinalState: types.SagaSold}
}

func TestExecuteRunsCallbackAndRecordsSuccess(t *testing.T) {
	c := New(time.Second)

	result := c.Execute(context.Background(), testOpp("opp-1"), "test", func(ctx context.Context) *types.TradeOutcome {
		return soldOutcome("opp-1")
	})

	if result.Blocked {
		t.Fatal("unexpected blocked result")
	}
	if result.Record.Status != types.ExecSucceeded {
		t.Fatalf("status = %s, want %s", result.Record.Status, types.ExecSucceeded)
	}

	stats := c.GetStats()
	if stats.Total != 1 || stats.Succeeded != 1 {
		t.Fatalf("stats = %+v, want total=1 succeeded=1", stats)
	}
}

func TestConcurrentExecuteAtMostOneExecuting(t *testing.T) {
	c := New(5 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})

	var firstResult Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstResult = c.Execute(context.Background(), testOpp("opp-1"), "holder", func(ctx context.Context) *types.TradeOutcome {
			close(started)
			<-release
			return soldOutcome("opp-1")
		})
	}()

	<-started

	// Same opportunity id from a second caller: must observe blocked with
	// no side effects, never queue.
	for i := 0; i < 4; i++ {
		result := c.Execute(context.Background(), testOpp("opp-1"), "contender", func(ctx context.Context) *types.TradeOutcome {
			t.Error("blocked caller's callback must never run")
			return nil
		})
		if !result.Blocked {
			t.Fatal("expected blocked result while slot held")
		}
	}

	if _, ok := c.Executing(); !ok {
		t.Fatal("expected a live execution record")
	}

	close(release)
	wg.Wait()

	if firstResult.Blocked {
		t.Fatal("holder should not be blocked")
	}

	stats := c.GetStats()
	if stats.Total != 1 {
		t.Fatalf("total = %d, want 1 (blocked calls are not executions)", stats.Total)
	}
	if stats.LockViolations != 4 {
		t.Fatalf("lock_violations = %d, want 4", stats.LockViolations)
	}
}

func TestCallbackPanicReleasesLock(t *testing.T) {
	c := New(time.Second)

	result := c.Execute(context.Background(), testOpp("opp-1"), "test", func(ctx context.Context) *types.TradeOutcome {
		panic("boom")
	})

	if result.Blocked {
		t.Fatal("unexpected blocked result")
	}
	if result.Outcome.Failure != types.FailInternal {
		t.Fatalf("failure = %s, want %s", result.Outcome.Failure, types.FailInternal)
	}

	// Slot must be usable again
	again := c.Execute(context.Background(), testOpp("opp-2"), "test", func(ctx context.Context) *types.TradeOutcome {
		return soldOutcome("opp-2")
	})
	if again.Blocked {
		t.Fatal("lock was not released after panic")
	}
}

func TestHangingCallbackTimesOutAndFreesSlot(t *testing.T) {
	c := New(100 * time.Millisecond)

	start := time.Now()
	result := c.Execute(context.Background(), testOpp("opp-1"), "test", func(ctx context.Context) *types.TradeOutcome {
		time.Sleep(2 * time.Second)
		return soldOutcome("opp-1")
	})
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("Execute took %v, want return within timeout+ε", elapsed)
	}
	if result.Record.Status != types.ExecTimedOut {
		t.Fatalf("status = %s, want %s", result.Record.Status, types.ExecTimedOut)
	}
	if result.Outcome.Failure != types.FailTimeout {
		t.Fatalf("failure = %s, want %s", result.Outcome.Failure, types.FailTimeout)
	}

	again := c.Execute(context.Background(), testOpp("opp-2"), "test", func(ctx context.Context) *types.TradeOutcome {
		return soldOutcome("opp-2")
	})
	if again.Blocked {
		t.Fatal("lock was not released after timeout")
	}

	stats := c.GetStats()
	if stats.Abandoned != 1 {
		t.Fatalf("abandoned = %d, want 1", stats.Abandoned)
	}
}

func TestHistoryIsBoundedAndMostRecentFirst(t *testing.T) {
	c := New(time.Second)

	for i := 0; i < historySize+25; i++ {
		c.Execute(context.Background(), testOpp("opp"), "test", func(ctx context.Context) *types.TradeOutcome {
			return soldOutcome("opp")
		})
	}

	history := c.History()
	if len(history) != historySize {
		t.Fatalf("history length = %d, want %d", len(history), historySize)
	}
}

func TestExecutingSnapshotSafeWhileExecutionsComplete(t *testing.T) {
	c := New(time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.Execute(context.Background(), testOpp("opp"), "test", func(ctx context.Context) *types.TradeOutcome {
				return soldOutcome("opp")
			})
		}
	}()

	// Snapshot the live record concurrently; run under -race
	for {
		select {
		case <-done:
			return
		default:
			if record, ok := c.Executing(); ok && record.ID == "" {
				t.Fatal("live record snapshot missing ID")
			}
		}
	}
}
