package engine

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/chainarb/types"
)

// txConfirmTimeout bounds how long the watch waits for one tx to be mined
const txConfirmTimeout = 2 * time.Minute

// pendingTx is a submitted transaction awaiting on-chain confirmation
type pendingTx struct {
	chain types.Chain
	hash  common.Hash
}

// trackTx queues a submitted transaction for the confirmation watch
func (e *Engine) trackTx(chainID types.Chain, hashHex string) {
	if hashHex == "" {
		return
	}
	select {
	case e.pending <- pendingTx{chain: chainID, hash: common.HexToHash(hashHex)}:
	default:
		log.Warn().Str("tx", hashHex).Msg("⚠️ Pending-tx queue full, dropping watch")
	}
}

// watchLoop confirms queued transactions against their chain. A tx that does
// not mine within the timeout is flagged for the operator; the saga has
// already settled its outcome, this is the re-org and stuck-tx backstop.
func (e *Engine) watchLoop() {
	defer e.doneWg.Done()

	for {
		select {
		case <-e.stopCh:
			return
		case tx := <-e.pending:
			e.confirmTx(tx)
		}
	}
}

func (e *Engine) confirmTx(tx pendingTx) {
	client, ok := e.clients[tx.chain]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), txConfirmTimeout)
	defer cancel()

	if _, err := client.WaitForReceipt(ctx, tx.hash); err != nil {
		log.Error().
			Err(err).
			Str("chain", string(tx.chain)).
			Str("tx", tx.hash.Hex()).
			Msg("⏰ Submitted tx unconfirmed within timeout")
		return
	}

	log.Debug().
		Str("chain", string(tx.chain)).
		Str("tx", tx.hash.Hex()).
		Msg("✅ Tx confirmed")
}
