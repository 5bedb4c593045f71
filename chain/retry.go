package chain

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RETRY POLICY - Single backoff policy shared by chain and bridge clients
// ═══════════════════════════════════════════════════════════════════════════════
//
// Retries live here, at the collaborator edge. The saga never retries:
// a failed step is a failed step, re-detection happens upstream.
//
// ═══════════════════════════════════════════════════════════════════════════════

// RetryPolicy retries transient RPC failures with exponential backoff
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns the policy used by all RPC-facing clients
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    3 * time.Second,
	}
}

// Do runs fn, retrying on error until attempts are exhausted or ctx ends
func (p *RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	var err error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}

		if attempt == p.MaxAttempts {
			break
		}

		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("⚠️ RPC call failed, retrying...")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return err
}
