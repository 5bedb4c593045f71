package chain

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// NONCE MANAGER - Monotonic per-chain nonce issuance
// ═══════════════════════════════════════════════════════════════════════════════
//
// Nonces are issued last-known+1 while confident, and reconciled against
// the chain's pending nonce whenever a submission failed or state is
// unknown. Conflicting concurrent submissions are prevented by issuing
// under one mutex per manager.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PendingNonceReader is the slice of ethclient the manager needs
type PendingNonceReader interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

var _ PendingNonceReader = (*ethclient.Client)(nil)

// NonceManager issues monotonic nonces for one wallet on one chain
type NonceManager struct {
	mu sync.Mutex

	chain   types.Chain
	wallet  common.Address
	rpc     PendingNonceReader
	next    uint64
	certain bool // false until reconciled against the chain
}

// NewNonceManager creates a manager that starts uncertain
func NewNonceManager(chain types.Chain, wallet common.Address, rpc PendingNonceReader) *NonceManager {
	return &NonceManager{
		chain:  chain,
		wallet: wallet,
		rpc:    rpc,
	}
}

// Next returns the nonce for the next submission. Fetches fresh from the
// chain when uncertain, otherwise last-known+1.
func (n *NonceManager) Next(ctx context.Context) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.certain {
		pending, err := n.rpc.PendingNonceAt(ctx, n.wallet)
		if err != nil {
			return 0, err
		}
		// Never regress below what we already handed out
		if pending > n.next {
			n.next = pending
		}
		n.certain = true

		log.Debug().
			Str("chain", string(n.chain)).
			Uint64("nonce", n.next).
			Msg("🔄 Nonce reconciled with chain")
	}

	nonce := n.next
	n.next++
	return nonce, nil
}

// Invalidate marks the local sequence untrusted after a failed submission
func (n *NonceManager) Invalidate() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.certain = false
}
