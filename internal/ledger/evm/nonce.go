package evm

import (
	"context"
	"sync"
)

// nonceManager hands out account nonces one submission at a time.
//
// The nonce is fetched from the node once and then advanced locally after
// each accepted submission. A failed submission forgets the local value so
// the next one re-reads the node's pending count.
type nonceManager struct {
	mu    sync.Mutex
	next  uint64
	known bool
	fetch func(ctx context.Context) (uint64, error)
}

// acquire locks the manager and returns the nonce to use. The caller must
// call release exactly once; accepted reports whether the node took the tx.
func (n *nonceManager) acquire(ctx context.Context) (uint64, func(accepted bool), error) {
	n.mu.Lock()
	if !n.known {
		v, err := n.fetch(ctx)
		if err != nil {
			n.mu.Unlock()
			return 0, nil, err
		}
		n.next, n.known = v, true
	}
	nonce := n.next
	release := func(accepted bool) {
		if accepted {
			n.next++
		} else {
			n.known = false
		}
		n.mu.Unlock()
	}
	return nonce, release, nil
}
