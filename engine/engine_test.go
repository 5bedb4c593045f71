package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/bridge"
	"github.com/web3guy0/chainarb/chain"
	"github.com/web3guy0/chainarb/coordinator"
	"github.com/web3guy0/chainarb/dex"
	"github.com/web3guy0/chainarb/filter"
	"github.com/web3guy0/chainarb/funding"
	"github.com/web3guy0/chainarb/profit"
	"github.com/web3guy0/chainarb/risk"
	"github.com/web3guy0/chainarb/saga"
	"github.com/web3guy0/chainarb/types"
)

type stubClient struct {
	chain    types.Chain
	balances map[string]decimal.Decimal
	gasErr   error
	receipts chan common.Hash
}

func (s *stubClient) Chain() types.Chain { return s.chain }

func (s *stubClient) NativeBalanceUSD(ctx context.Context, wallet common.Address) (decimal.Decimal, error) {
	return s.balances["NATIVE"], nil
}

func (s *stubClient) AssetBalancesUSD(ctx context.Context, wallet common.Address) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

func (s *stubClient) GasPriceGwei(ctx context.Context) (decimal.Decimal, error) {
	if s.gasErr != nil {
		return decimal.Zero, s.gasErr
	}
	return decimal.NewFromFloat(0.05), nil
}

func (s *stubClient) SubmitSignedTx(ctx context.Context, tx *ethtypes.Transaction) (common.Hash, error) {
	return common.Hash{}, nil
}

func (s *stubClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	if s.receipts != nil {
		s.receipts <- hash
	}
	return &ethtypes.Receipt{}, nil
}

type memRecorder struct {
	executions []types.ExecutionRecord
	stranded   []*types.TradeOutcome
	riskDays   []risk.Status
	ledger     []types.StrandedEntry
	recovered  []uint
}

func (m *memRecorder) SaveExecution(record types.ExecutionRecord) error {
	m.executions = append(m.executions, record)
	return nil
}

func (m *memRecorder) SaveStranded(outcome *types.TradeOutcome) error {
	m.stranded = append(m.stranded, outcome)
	return nil
}

func (m *memRecorder) SaveRiskDay(status risk.Status) error {
	m.riskDays = append(m.riskDays, status)
	return nil
}

func (m *memRecorder) PendingStranded() ([]types.StrandedEntry, error) {
	return m.ledger, nil
}

func (m *memRecorder) MarkRecovered(id uint) error {
	m.recovered = append(m.recovered, id)
	return nil
}

type memAlerter struct {
	alerts  int
	notices int
}

func (m *memAlerter) AlertStranded(outcome *types.TradeOutcome) { m.alerts++ }
func (m *memAlerter) NotifyTrade(outcome *types.TradeOutcome)   { m.notices++ }

func newTestEngine(recorder *memRecorder, alerter *memAlerter) *Engine {
	client := &stubClient{
		chain:    types.ChainPolygon,
		balances: map[string]decimal.Decimal{"USDC": decimal.NewFromInt(10000)},
	}
	clients := map[types.Chain]chain.Client{types.ChainPolygon: client}

	router := dex.NewPaperRouter()
	bridges := bridge.NewRegistry(
		bridge.NewPaperBridge("hop", decimal.NewFromFloat(0.003), 10*time.Millisecond),
	)
	funds := funding.NewManager(funding.DefaultConfig(), common.Address{}, clients, router)
	routes := saga.NewRouteRegistry()
	sg := saga.New(saga.DefaultConfig(), funds, router, bridges, routes)

	return New(
		filter.New(filter.DefaultConfig(), filter.NewVenueBook()),
		profit.NewGate(decimal.NewFromFloat(0.5)),
		risk.NewGovernor(risk.DefaultConfig()),
		coordinator.New(10*time.Second),
		sg,
		routes,
		bridges,
		clients,
		recorder,
		alerter,
	)
}

func crossChainOpp(grossUSD int64) types.Opportunity {
	return types.Opportunity{
		ID:           "opp-1",
		Token:        "WETH",
		SourceChain:  types.ChainPolygon,
		TargetChain:  types.ChainArbitrum,
		SourceVenue:  types.Venue{Name: "quickswap", Chain: types.ChainPolygon},
		TargetVenue:  types.Venue{Name: "camelot", Chain: types.ChainArbitrum},
		BuyPrice:     decimal.NewFromInt(3000),
		SellPrice:    decimal.NewFromInt(3030),
		GrossProfit:  decimal.NewFromInt(grossUSD),
		Volatility:   0.05,
		DiscoveredAt: time.Now(),
	}
}

func TestConsiderExecutesFullPipeline(t *testing.T) {
	recorder := &memRecorder{}
	alerter := &memAlerter{}
	e := newTestEngine(recorder, alerter)

	opp := crossChainOpp(30)
	e.consider(&opp)

	stats := e.coord.GetStats()
	if stats.Total != 1 {
		t.Fatalf("total executions = %d, want 1", stats.Total)
	}
	if len(recorder.executions) != 1 {
		t.Fatalf("persisted executions = %d, want 1", len(recorder.executions))
	}
	if alerter.notices != 1 {
		t.Fatalf("trade notices = %d, want 1", alerter.notices)
	}
	if alerter.alerts != 0 {
		t.Fatalf("stranded alerts = %d, want 0", alerter.alerts)
	}
}

func TestConsiderSkipsFilteredOpportunity(t *testing.T) {
	recorder := &memRecorder{}
	e := newTestEngine(recorder, &memAlerter{})

	// Gross profit too small to clear the priority threshold
	opp := crossChainOpp(1)
	e.consider(&opp)

	if stats := e.coord.GetStats(); stats.Total != 0 {
		t.Fatalf("total executions = %d, want 0", stats.Total)
	}
	if len(recorder.executions) != 0 {
		t.Fatal("filtered opportunity must not be persisted")
	}
}

func TestConsiderHonorsRiskVeto(t *testing.T) {
	recorder := &memRecorder{}
	e := newTestEngine(recorder, &memAlerter{})

	for i := 0; i < 5; i++ {
		e.gov.Record(&types.TradeOutcome{FinalState: types.SagaFailed, Failure: types.FailSell})
	}

	opp := crossChainOpp(30)
	e.consider(&opp)

	if stats := e.coord.GetStats(); stats.Total != 0 {
		t.Fatalf("total executions = %d, tripped governor must veto", stats.Total)
	}
}

func TestConsiderSkipsWhenGasPriceUnknown(t *testing.T) {
	recorder := &memRecorder{}
	e := newTestEngine(recorder, &memAlerter{})
	e.clients[types.ChainPolygon].(*stubClient).gasErr = errors.New("rpc unavailable")

	// Large gross would sail through an ultra_low tier check; an unreadable
	// gas price must fail closed instead
	opp := crossChainOpp(30)
	e.consider(&opp)

	if stats := e.coord.GetStats(); stats.Total != 0 {
		t.Fatalf("total executions = %d, unknown gas price must skip", stats.Total)
	}
	if len(recorder.executions) != 0 {
		t.Fatal("skipped opportunity must not be persisted")
	}
}

func TestVenueProfilesLearnFromOutcome(t *testing.T) {
	e := newTestEngine(&memRecorder{}, &memAlerter{})

	opp := crossChainOpp(30)
	before := e.filter.Venues().Get(opp.SourceVenue.Key())
	e.consider(&opp)
	after := e.filter.Venues().Get(opp.SourceVenue.Key())

	if after.Reliability <= before.Reliability {
		t.Fatalf("reliability %.3f → %.3f, a win must raise it", before.Reliability, after.Reliability)
	}
}

func TestRecordOutcomePersistsRiskState(t *testing.T) {
	recorder := &memRecorder{}
	e := newTestEngine(recorder, &memAlerter{})

	opp := crossChainOpp(30)
	e.consider(&opp)

	if len(recorder.riskDays) != 1 {
		t.Fatalf("persisted risk snapshots = %d, want 1", len(recorder.riskDays))
	}
	if recorder.riskDays[0].Date == "" {
		t.Fatal("risk snapshot missing date")
	}
}

func TestStrandedTextIncludesPersistedLedger(t *testing.T) {
	recorder := &memRecorder{ledger: []types.StrandedEntry{{
		ID:            7,
		OpportunityID: "opp-old",
		Failure:       types.FailStrandedFunds,
		StrandedUSD:   decimal.NewFromInt(99),
		BridgeRef:     "hop-1",
	}}}
	e := newTestEngine(recorder, &memAlerter{})

	text := e.StrandedText()
	if !strings.Contains(text, "opp-old") || !strings.Contains(text, "#7") {
		t.Fatalf("stranded text missing ledger entry: %q", text)
	}
}

func TestMarkStrandedRecoveredDelegates(t *testing.T) {
	recorder := &memRecorder{}
	e := newTestEngine(recorder, &memAlerter{})

	if err := e.MarkStrandedRecovered(7); err != nil {
		t.Fatal(err)
	}
	if len(recorder.recovered) != 1 || recorder.recovered[0] != 7 {
		t.Fatalf("recovered ids = %v, want [7]", recorder.recovered)
	}
}

func TestWatchLoopConfirmsTrackedTx(t *testing.T) {
	e := newTestEngine(&memRecorder{}, &memAlerter{})
	client := e.clients[types.ChainPolygon].(*stubClient)
	client.receipts = make(chan common.Hash, 2)

	e.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		e.Shutdown(ctx)
	}()

	e.trackTx(types.ChainPolygon, "0xabc")

	select {
	case hash := <-client.receipts:
		if hash != common.HexToHash("0xabc") {
			t.Fatalf("confirmed hash = %s, want 0xabc", hash.Hex())
		}
	case <-time.After(time.Second):
		t.Fatal("tracked tx was never confirmed")
	}
}

func TestShutdownReportsStranded(t *testing.T) {
	e := newTestEngine(&memRecorder{}, &memAlerter{})
	e.Start()

	e.mu.Lock()
	e.stranded = append(e.stranded, &types.TradeOutcome{
		OpportunityID: "opp-x",
		FinalState:    types.SagaStrandedFunds,
		Failure:       types.FailStrandedFunds,
	})
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stranded := e.Shutdown(ctx)
	if len(stranded) != 1 {
		t.Fatalf("stranded count = %d, want 1", len(stranded))
	}
}
