package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Chain identifies a supported network
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainArbitrum Chain = "arbitrum"
	ChainPolygon  Chain = "polygon"
	ChainBase     Chain = "base"
	ChainBSC      Chain = "bsc"
)

// ChainClass buckets chains by their typical gas cost regime
type ChainClass string

const (
	ChainClassCheap     ChainClass = "cheap"     // Polygon, BSC, L2s
	ChainClassExpensive ChainClass = "expensive" // Ethereum mainnet
)

// Class returns the gas cost regime for a chain
func (c Chain) Class() ChainClass {
	if c == ChainEthereum {
		return ChainClassExpensive
	}
	return ChainClassCheap
}

// Venue is a DEX/liquidity source on a given chain
type Venue struct {
	Name  string
	Chain Chain
}

// Key returns the venue identity used for profile lookups
func (v Venue) Key() string {
	return string(v.Chain) + ":" + v.Name
}

// Opportunity is a detected price discrepancy for one token between two
// (venue, chain) pairs. Immutable, produced by a scanner.
type Opportunity struct {
	ID           string
	Token        string
	SourceChain  Chain
	TargetChain  Chain
	SourceVenue  Venue
	TargetVenue  Venue
	BuyPrice     decimal.Decimal
	SellPrice    decimal.Decimal
	GrossProfit  decimal.Decimal // Estimated gross profit in USD
	Volatility   float64         // Recent volatility estimate, e.g. 0.05 = 5%
	DiscoveredAt time.Time
}

// Age returns how long ago the opportunity was discovered
func (o *Opportunity) Age(now time.Time) time.Duration {
	return now.Sub(o.DiscoveredAt)
}

// CrossChain reports whether the trade spans two chains
func (o *Opportunity) CrossChain() bool {
	return o.SourceChain != o.TargetChain
}

// RouteKey identifies the (token, chain-pair) route for in-flight dedup
func (o *Opportunity) RouteKey() string {
	return o.Token + ":" + string(o.SourceChain) + "->" + string(o.TargetChain)
}

// PairKey identifies the (token, venue-pair) for duplicate detection
func (o *Opportunity) PairKey() string {
	return o.Token + ":" + o.SourceVenue.Key() + ">" + o.TargetVenue.Key()
}

// FilterVerdict is the outcome of scoring one opportunity
type FilterVerdict struct {
	ShouldExecute bool
	Reason        string
	PriorityScore float64 // [0,1]
	EstimatedTime time.Duration
	DecayFactor   float64
}

// GasTier buckets current network fee levels
type GasTier string

const (
	GasTierUltraLow GasTier = "ultra_low"
	GasTierLow      GasTier = "low"
	GasTierMedium   GasTier = "medium"
	GasTierHigh     GasTier = "high"
	GasTierExtreme  GasTier = "extreme"
)

// OperationClass selects the gas cost model for a trade shape
type OperationClass string

const (
	OpSameChain  OperationClass = "same_chain"
	OpCrossChain OperationClass = "cross_chain"
	OpFlashloan  OperationClass = "flashloan"
	OpComplex    OperationClass = "complex"
)

// WalletSnapshot holds per-asset USD balances for a wallet on one chain
type WalletSnapshot struct {
	Chain     Chain
	Balances  map[string]decimal.Decimal // asset symbol → USD value
	FetchedAt time.Time
}

// Total sums all asset balances in the snapshot
func (w *WalletSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, v := range w.Balances {
		total = total.Add(v)
	}
	return total
}

// ConversionPlan describes a single-asset conversion to cover a shortfall
type ConversionPlan struct {
	SourceAsset    string
	AmountUSD      decimal.Decimal
	Viable         bool
	TotalAvailable decimal.Decimal // Spendable across all assets, above reserves
}

// ExecStatus is the lifecycle state of one execution slot
type ExecStatus string

const (
	ExecQueued    ExecStatus = "queued"
	ExecExecuting ExecStatus = "executing"
	ExecSucceeded ExecStatus = "succeeded"
	ExecFailed    ExecStatus = "failed"
	ExecTimedOut  ExecStatus = "timed_out"
	ExecAbandoned ExecStatus = "abandoned"
)

// ExecutionRecord tracks one execution's lifetime under the coordinator
type ExecutionRecord struct {
	ID          string
	Initiator   string
	Opportunity Opportunity
	Status      ExecStatus
	StartedAt   time.Time
	FinishedAt  time.Time
	Result      *TradeOutcome
}

// SagaState is the position of a cross-chain trade saga
type SagaState string

const (
	SagaValidated       SagaState = "validated"
	SagaFunded          SagaState = "funded"
	SagaBought          SagaState = "bought"
	SagaBridged         SagaState = "bridged"
	SagaBridgeConfirmed SagaState = "bridge_confirmed"
	SagaSold            SagaState = "sold"
	SagaFailed          SagaState = "failed"
	SagaStrandedFunds   SagaState = "stranded_funds"
)

// Terminal reports whether the saga can make no further progress
func (s SagaState) Terminal() bool {
	return s == SagaSold || s == SagaFailed || s == SagaStrandedFunds
}

// FailureKind classifies trade failures for risk accounting and alerting
type FailureKind string

const (
	FailNone             FailureKind = ""
	FailBlocked          FailureKind = "blocked"
	FailFiltered         FailureKind = "filtered"
	FailFunding          FailureKind = "funding_failure"
	FailBuy              FailureKind = "buy_failure"
	FailSell             FailureKind = "sell_failure"
	FailBridgeInitiation FailureKind = "bridge_initiation_failure"
	FailBridgeTimeout    FailureKind = "bridge_timeout"
	FailBridgeDelivery   FailureKind = "bridge_delivery_failure"
	FailStrandedFunds    FailureKind = "stranded_funds"
	FailRiskHalt         FailureKind = "risk_halt"
	FailTimeout          FailureKind = "timeout"
	FailInternal         FailureKind = "internal"
)

// NeedsAlert reports whether the failure warrants a distinct operator alert
func (f FailureKind) NeedsAlert() bool {
	return f == FailStrandedFunds || f == FailBridgeTimeout || f == FailBridgeDelivery
}

// TradeOutcome is the structured result of one saga run
type TradeOutcome struct {
	OpportunityID string
	FinalState    SagaState
	Failure       FailureKind
	Error         string

	BuyCost     decimal.Decimal // USD spent on the buy leg
	Proceeds    decimal.Decimal // USD realized on the sell leg
	BridgeFee   decimal.Decimal
	GasSpent    decimal.Decimal // buy gas + sell gas, USD
	NetProfit   decimal.Decimal // Proceeds - BuyCost - BridgeFee - GasSpent
	LossUSD     decimal.Decimal // Realized loss when the saga did not complete
	StrandedUSD decimal.Decimal // Token value held on the destination chain
	BuyTxHash   string
	BridgeRef   string
	SellTxHash  string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Success reports whether the trade completed its full round trip
func (t *TradeOutcome) Success() bool {
	return t.FinalState == SagaSold
}

// StrandedEntry is a persisted stranded-funds ledger row awaiting recovery
type StrandedEntry struct {
	ID            uint
	OpportunityID string
	Failure       FailureKind
	StrandedUSD   decimal.Decimal
	FeesLostUSD   decimal.Decimal
	BridgeRef     string
	CreatedAt     time.Time
}

// Receipt is the realized result of a single swap leg
type Receipt struct {
	TxHash    string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	GasUSD    decimal.Decimal
	Timestamp time.Time
}
