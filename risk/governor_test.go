package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

func failedOutcome(lossUSD float64) *types.TradeOutcome {
	return &types.TradeOutcome{
		FinalState: types.SagaFailed,
		Failure:    types.FailSell,
		LossUSD:    decimal.NewFromFloat(lossUSD),
	}
}

func soldOutcome() *types.TradeOutcome {
	return &types.TradeOutcome{FinalState: types.SagaSold}
}

func TestConsecutiveFailuresTripAtCeiling(t *testing.T) {
	g := NewGovernor(DefaultConfig())

	for i := 0; i < 4; i++ {
		g.Record(failedOutcome(0))
		if !g.Permits() {
			t.Fatalf("tripped after %d failures, ceiling is 5", i+1)
		}
	}

	g.Record(failedOutcome(0))
	if g.Permits() {
		t.Fatal("five consecutive failures must halt trading")
	}

	status := g.GetStatus()
	if status.Reason != "max consecutive failures" {
		t.Fatalf("reason = %q", status.Reason)
	}

	// Cooldown 0: stays halted until manual reset
	if g.Permits() {
		t.Fatal("governor must stay tripped without manual reset")
	}
	g.Reset()
	if !g.Permits() {
		t.Fatal("manual reset must resume trading")
	}
}

func TestSuccessClearsFailureRun(t *testing.T) {
	g := NewGovernor(DefaultConfig())

	for i := 0; i < 4; i++ {
		g.Record(failedOutcome(0))
	}
	g.Record(soldOutcome())
	for i := 0; i < 4; i++ {
		g.Record(failedOutcome(0))
	}

	if !g.Permits() {
		t.Fatal("success must reset the consecutive failure count")
	}
	if got := g.GetStatus().ConsecutiveFailures; got != 4 {
		t.Fatalf("consecutive failures = %d, want 4", got)
	}
}

func TestDailyLossCeilingTrips(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 100 // isolate the loss ceiling
	g := NewGovernor(cfg)

	g.Record(failedOutcome(200))
	g.Record(soldOutcome())
	if !g.Permits() {
		t.Fatal("loss under ceiling must not trip")
	}

	g.Record(failedOutcome(60))
	if g.Permits() {
		t.Fatal("260 daily loss must trip the 250 ceiling")
	}
	if got := g.GetStatus().Reason; got != "max daily loss exceeded" {
		t.Fatalf("reason = %q", got)
	}
}

func TestDailyLossResetsAtDateBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 100
	g := NewGovernor(cfg)

	day1 := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return day1 }

	g.Record(failedOutcome(200))
	if got := g.GetStatus().DailyLossUSD; !got.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("daily loss = %s, want 200", got)
	}

	g.now = func() time.Time { return day1.Add(2 * time.Hour) } // next day
	if !g.Permits() {
		t.Fatal("new day, trading must be permitted")
	}
	if got := g.GetStatus().DailyLossUSD; !got.IsZero() {
		t.Fatalf("daily loss = %s, want reset to zero", got)
	}
}

func TestCooldownAutoReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Cooldown = time.Hour
	g := NewGovernor(cfg)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		g.Record(failedOutcome(0))
	}
	if g.Permits() {
		t.Fatal("governor should be tripped")
	}

	g.now = func() time.Time { return base.Add(30 * time.Minute) }
	if g.Permits() {
		t.Fatal("cooldown not elapsed yet")
	}

	g.now = func() time.Time { return base.Add(2 * time.Hour) }
	if !g.Permits() {
		t.Fatal("cooldown elapsed, trading must resume")
	}
}

func TestLossOnlyCountsRealizedLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 100
	g := NewGovernor(cfg)

	// Bridge timeout: stranded capital, no realized loss
	g.Record(&types.TradeOutcome{
		FinalState:  types.SagaStrandedFunds,
		Failure:     types.FailBridgeTimeout,
		StrandedUSD: decimal.NewFromInt(500),
	})

	if got := g.GetStatus().DailyLossUSD; !got.IsZero() {
		t.Fatalf("daily loss = %s, stranded capital is not a loss", got)
	}
}
