package filter

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OPPORTUNITY FILTER - Staged scoring and pruning of raw opportunities
// ═══════════════════════════════════════════════════════════════════════════════
//
// Stages, short-circuiting:
//   1. Freshness + duplicate suppression
//   2. Profit decay (volatility-scaled)
//   3. Execution speed estimate from venue profiles
//   4. Volatility band fit
//   5. Weighted priority score
//
// ═══════════════════════════════════════════════════════════════════════════════

// Config holds the filter tunables
type Config struct {
	MaxAge              time.Duration
	DuplicateWindow     time.Duration
	MaxSeenEntries      int
	BaseDecayRate       float64 // per second, scaled by volatility
	DecayFloor          float64
	MinProfitAfterDecay decimal.Decimal
	SpeedCeiling        time.Duration
	CoordOverhead       time.Duration
	SpeedScoreFloor     float64
	VolatilityLow       float64 // optimal band lower edge
	VolatilityHigh      float64 // optimal band upper edge
	PriorityThreshold   float64
	ProfitNormalizer    decimal.Decimal // profit at which profitScore saturates
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		MaxAge:              15 * time.Second,
		DuplicateWindow:     5 * time.Second,
		MaxSeenEntries:      512,
		BaseDecayRate:       0.02,
		DecayFloor:          0.1,
		MinProfitAfterDecay: decimal.NewFromInt(1),
		SpeedCeiling:        30 * time.Second,
		CoordOverhead:       2 * time.Second,
		SpeedScoreFloor:     0.3,
		VolatilityLow:       0.02,
		VolatilityHigh:      0.08,
		PriorityThreshold:   0.5,
		ProfitNormalizer:    decimal.NewFromInt(50),
	}
}

// Filter scores and prunes opportunities before execution
type Filter struct {
	mu sync.Mutex

	cfg    Config
	venues *VenueBook
	seen   map[string]seenEntry // pair key → first sighting in window
	now    func() time.Time
}

type seenEntry struct {
	oppID string
	at    time.Time
}

// New creates a filter over the given venue book
func New(cfg Config, venues *VenueBook) *Filter {
	return &Filter{
		cfg:    cfg,
		venues: venues,
		seen:   make(map[string]seenEntry),
		now:    time.Now,
	}
}

// Venues exposes the profile book for post-execution feedback
func (f *Filter) Venues() *VenueBook {
	return f.venues
}

// Check scores one opportunity and decides whether it should execute
func (f *Filter) Check(opp *types.Opportunity) types.FilterVerdict {
	now := f.now()
	age := opp.Age(now)

	// Stage 1: freshness
	if age > f.cfg.MaxAge {
		return reject("stale: age exceeds max age")
	}
	if f.isDuplicate(opp, now) {
		return reject("duplicate: same token/venue pair seen recently")
	}

	// Stage 2: profit decay
	decay := f.DecayFactor(age, opp.Volatility)
	decayed := opp.GrossProfit.Mul(decimal.NewFromFloat(decay))
	if decayed.LessThan(f.cfg.MinProfitAfterDecay) {
		return types.FilterVerdict{
			Reason:      "decayed profit below floor",
			DecayFactor: decay,
		}
	}

	// Stage 3: execution speed
	estimate, speedScore := f.speedEstimate(opp)
	if estimate > f.cfg.SpeedCeiling {
		return types.FilterVerdict{
			Reason:        "estimated execution too slow",
			EstimatedTime: estimate,
			DecayFactor:   decay,
		}
	}

	// Stage 4: volatility fit
	volScore := f.volatilityScore(opp.Volatility)

	// Stage 5: weighted priority
	profitScore := f.profitScore(decayed)
	freshScore := 1 - float64(age)/float64(f.cfg.MaxAge)
	if freshScore < 0 {
		freshScore = 0
	}

	priority := 0.4*profitScore + 0.3*speedScore + 0.2*volScore + 0.1*freshScore

	verdict := types.FilterVerdict{
		PriorityScore: priority,
		EstimatedTime: estimate,
		DecayFactor:   decay,
	}

	switch {
	case priority < f.cfg.PriorityThreshold:
		verdict.Reason = "priority below threshold"
	case speedScore < f.cfg.SpeedScoreFloor:
		verdict.Reason = "speed score below floor"
	default:
		verdict.ShouldExecute = true
		verdict.Reason = "accepted"
	}

	log.Debug().
		Str("opp", opp.ID).
		Bool("execute", verdict.ShouldExecute).
		Str("reason", verdict.Reason).
		Float64("priority", priority).
		Msg("🔍 Opportunity filtered")

	return verdict
}

// DecayFactor computes the volatility-scaled freshness decay of profit.
// Monotonically non-increasing in age, bounded below by the floor.
func (f *Filter) DecayFactor(age time.Duration, volatility float64) float64 {
	rate := f.cfg.BaseDecayRate * (1 + 10*volatility)
	factor := 1 - rate*age.Seconds()
	if factor < f.cfg.DecayFloor {
		factor = f.cfg.DecayFloor
	}
	return factor
}

func (f *Filter) profitScore(decayedProfit decimal.Decimal) float64 {
	score, _ := decayedProfit.Div(f.cfg.ProfitNormalizer).Float64()
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func (f *Filter) speedEstimate(opp *types.Opportunity) (time.Duration, float64) {
	src := f.venues.Get(opp.SourceVenue.Key())
	dst := f.venues.Get(opp.TargetVenue.Key())

	estimate := src.AvgTime + dst.AvgTime + f.cfg.CoordOverhead

	score := 1 - float64(estimate)/float64(f.cfg.SpeedCeiling)
	if score < 0 {
		score = 0
	}
	// Discount by joint venue reliability
	score *= src.Reliability * dst.Reliability

	return estimate, score
}

// volatilityScore is 1.0 inside the optimal band. Below the band spreads
// are rarer, a moderate penalty; above it spreads vanish fast, a steeper one.
func (f *Filter) volatilityScore(vol float64) float64 {
	low, high := f.cfg.VolatilityLow, f.cfg.VolatilityHigh

	switch {
	case vol >= low && vol <= high:
		return 1.0
	case vol < low:
		score := 0.5 + 0.5*vol/low
		return score
	default:
		score := 1 - 2*(vol-high)/high
		if score < 0.1 {
			score = 0.1
		}
		return score
	}
}

// isDuplicate suppresses re-discovered copies of an opportunity: a second
// opportunity on the same (token, venue-pair) within the window. Re-checking
// the same opportunity ID is not a duplicate, so repeated filtering of an
// unchanged opportunity stays deterministic.
func (f *Filter) isDuplicate(opp *types.Opportunity, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := opp.PairKey()
	entry, ok := f.seen[key]
	if ok && now.Sub(entry.at) <= f.cfg.DuplicateWindow {
		return entry.oppID != opp.ID
	}

	// Keep the seen-set bounded: expired entries go first
	if len(f.seen) >= f.cfg.MaxSeenEntries {
		for k, e := range f.seen {
			if now.Sub(e.at) > f.cfg.DuplicateWindow {
				delete(f.seen, k)
			}
		}
	}
	// Still full means a burst of live pairs; drop one arbitrarily
	if len(f.seen) >= f.cfg.MaxSeenEntries {
		for k := range f.seen {
			delete(f.seen, k)
			break
		}
	}

	f.seen[key] = seenEntry{oppID: opp.ID, at: now}
	return false
}

func reject(reason string) types.FilterVerdict {
	return types.FilterVerdict{Reason: reason}
}
