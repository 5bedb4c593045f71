package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BRIDGE REGISTRY - Provider selection by fee and speed
// ═══════════════════════════════════════════════════════════════════════════════

const (
	feeWeight   = 0.6
	speedWeight = 0.4
)

// Selection is the winning provider with its quoted cost
type Selection struct {
	Provider Provider
	Cost     Cost
	Score    float64
}

// Registry holds the known bridge providers and a cost cache refreshed in
// the background.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	costs     map[string]Cost // provider+route → last quoted cost
	stopCh    chan struct{}
	running   bool
}

// NewRegistry creates a registry over the given providers
func NewRegistry(providers ...Provider) *Registry {
	return &Registry{
		providers: providers,
		costs:     make(map[string]Cost),
		stopCh:    make(chan struct{}),
	}
}

func costKey(p Provider, route Route) string {
	return p.Name() + "|" + string(route.Source) + ">" + string(route.Target) + "|" + route.Token
}

// Select picks the provider maximizing 0.6·feeScore + 0.4·speedScore among
// providers supporting the route. Scores are normalized against the best
// candidate: the cheapest bridge gets feeScore 1.0, the fastest speedScore 1.0.
func (r *Registry) Select(ctx context.Context, route Route, amountUSD decimal.Decimal) (Selection, error) {
	type candidate struct {
		provider Provider
		cost     Cost
	}

	var candidates []candidate
	for _, p := range r.providers {
		if !p.Supports(route) {
			continue
		}
		cost, err := p.Quote(ctx, route, amountUSD)
		if err != nil {
			log.Warn().
				Err(err).
				Str("bridge", p.Name()).
				Str("token", route.Token).
				Msg("⚠️ Bridge quote failed, skipping")
			continue
		}
		candidates = append(candidates, candidate{p, cost})

		r.mu.Lock()
		r.costs[costKey(p, route)] = cost
		r.mu.Unlock()
	}

	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("no bridge supports %s %s→%s", route.Token, route.Source, route.Target)
	}

	minFee := candidates[0].cost.FeeUSD
	minLag := candidates[0].cost.EstimatedLag
	for _, c := range candidates[1:] {
		if c.cost.FeeUSD.LessThan(minFee) {
			minFee = c.cost.FeeUSD
		}
		if c.cost.EstimatedLag < minLag {
			minLag = c.cost.EstimatedLag
		}
	}

	best := Selection{Score: -1}
	for _, c := range candidates {
		feeScore := 1.0
		if c.cost.FeeUSD.IsPositive() {
			score, _ := minFee.Div(c.cost.FeeUSD).Float64()
			feeScore = score
		}
		speedScore := 1.0
		if c.cost.EstimatedLag > 0 {
			speedScore = float64(minLag) / float64(c.cost.EstimatedLag)
		}

		score := feeWeight*feeScore + speedWeight*speedScore
		if score > best.Score {
			best = Selection{Provider: c.provider, Cost: c.cost, Score: score}
		}
	}

	log.Debug().
		Str("bridge", best.Provider.Name()).
		Str("fee", best.Cost.FeeUSD.StringFixed(2)).
		Dur("lag", best.Cost.EstimatedLag).
		Float64("score", best.Score).
		Msg("🌉 Bridge selected")

	return best, nil
}

// StartCostRefresh begins refreshing cached costs for the given routes
func (r *Registry) StartCostRefresh(interval time.Duration, routes func() []Route, amountUSD decimal.Decimal) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				for _, route := range routes() {
					for _, p := range r.providers {
						if !p.Supports(route) {
							continue
						}
						cost, err := p.Quote(ctx, route, amountUSD)
						if err != nil {
							continue
						}
						r.mu.Lock()
						r.costs[costKey(p, route)] = cost
						r.mu.Unlock()
					}
				}
				cancel()
			}
		}
	}()
}

// Stop halts the background cost refresh
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		close(r.stopCh)
		r.running = false
	}
}

// CheapestCachedFee returns the lowest cached fee across providers for a
// route, if any quote has been cached.
func (r *Registry) CheapestCachedFee(route Route) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	found := false
	cheapest := decimal.Zero
	for _, p := range r.providers {
		cost, ok := r.costs[costKey(p, route)]
		if !ok {
			continue
		}
		if !found || cost.FeeUSD.LessThan(cheapest) {
			cheapest = cost.FeeUSD
			found = true
		}
	}
	return cheapest, found
}

// CachedCost returns the last quoted cost for a provider/route, if any
func (r *Registry) CachedCost(provider string, route Route) (Cost, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.Name() == provider {
			cost, ok := r.costs[costKey(p, route)]
			return cost, ok
		}
	}
	return Cost{}, false
}
