package saga

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ACTIVE ROUTES - At-most-one saga per (token, chain-pair)
// ═══════════════════════════════════════════════════════════════════════════════
//
// Second line of defense behind the coordinator's global slot: even if the
// slot frees mid-bridge (it does not today), a duplicate trade on a route
// with capital already in flight must be refused.
//
// ═══════════════════════════════════════════════════════════════════════════════

// RouteRegistry tracks routes with capital currently in flight
type RouteRegistry struct {
	mu     sync.Mutex
	active map[string]string // route key → opportunity id
}

// NewRouteRegistry creates an empty registry
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{active: make(map[string]string)}
}

// Acquire claims a route for an opportunity. Returns false if the route
// already has a saga in flight.
func (r *RouteRegistry) Acquire(routeKey, oppID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.active[routeKey]; ok {
		log.Warn().
			Str("route", routeKey).
			Str("holder", holder).
			Str("contender", oppID).
			Msg("🔒 Route already in flight")
		return false
	}

	r.active[routeKey] = oppID
	return true
}

// Release frees a route after its saga reached a terminal state
func (r *RouteRegistry) Release(routeKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, routeKey)
}

// Active returns a copy of the in-flight routes
func (r *RouteRegistry) Active() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.active))
	for k, v := range r.active {
		out[k] = v
	}
	return out
}
