package filter

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// VENUE PROFILES - Learned execution time and reliability per venue
// ═══════════════════════════════════════════════════════════════════════════════

const (
	timeLearningRate   = 0.2 // EMA weight for new execution time samples
	reliabilityOnWin   = 0.01
	reliabilityOnLoss  = 0.05
	reliabilityCeiling = 0.99
	reliabilityFloor   = 0.1
	defaultVenueTime   = 8 * time.Second
	defaultReliability = 0.9
)

// VenueProfile is the learned execution characteristics of one venue
type VenueProfile struct {
	AvgTime     time.Duration
	Reliability float64 // [0.1, 0.99]
}

// VenueBook holds profiles keyed by venue, updated post-hoc after trades
type VenueBook struct {
	mu       sync.RWMutex
	profiles map[string]VenueProfile
}

// NewVenueBook creates an empty profile book
func NewVenueBook() *VenueBook {
	return &VenueBook{profiles: make(map[string]VenueProfile)}
}

// Get returns the profile for a venue key, defaulting for unseen venues
func (b *VenueBook) Get(key string) VenueProfile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if p, ok := b.profiles[key]; ok {
		return p
	}
	return VenueProfile{AvgTime: defaultVenueTime, Reliability: defaultReliability}
}

// Observe folds an execution outcome into a venue's profile.
// Time learns by EMA; reliability moves up slowly and down fast.
func (b *VenueBook) Observe(key string, elapsed time.Duration, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	p, ok := b.profiles[key]
	if !ok {
		p = VenueProfile{AvgTime: defaultVenueTime, Reliability: defaultReliability}
	}

	if elapsed > 0 {
		p.AvgTime = time.Duration(float64(p.AvgTime)*(1-timeLearningRate) + float64(elapsed)*timeLearningRate)
	}

	if success {
		p.Reliability += reliabilityOnWin
	} else {
		p.Reliability -= reliabilityOnLoss
	}
	if p.Reliability > reliabilityCeiling {
		p.Reliability = reliabilityCeiling
	}
	if p.Reliability < reliabilityFloor {
		p.Reliability = reliabilityFloor
	}

	b.profiles[key] = p

	log.Debug().
		Str("venue", key).
		Dur("avg_time", p.AvgTime).
		Float64("reliability", p.Reliability).
		Msg("📊 Venue profile updated")
}
