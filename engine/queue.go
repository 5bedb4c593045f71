package engine

import (
	"sync"

	"github.com/web3guy0/chainarb/types"
)

// oppQueue buffers scanned opportunities for the decision loop. When full,
// the oldest entry is dropped: a stale opportunity is worth less than a
// fresh one, never more.
type oppQueue struct {
	mu sync.Mutex
	ch chan types.Opportunity
}

func newOppQueue(size int) *oppQueue {
	return &oppQueue{ch: make(chan types.Opportunity, size)}
}

func (q *oppQueue) push(opp types.Opportunity) {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case q.ch <- opp:
	default:
		select {
		case <-q.ch:
		default:
		}
		q.ch <- opp
	}
}

func (q *oppQueue) pop() <-chan types.Opportunity {
	return q.ch
}
