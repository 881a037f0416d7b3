// Package mempool implements the shared transaction pool that the
// Microblock Pipeline drains from and the inbound transaction handler
// inserts into (spec §4.6 / C6).
package mempool

import (
	"sync"

	"github.com/qnet-project/qnet-core/pkg/types"
)

// Mempool is a bounded, FIFO-ish pool of pending transaction bytes,
// deduplicated by content hash.
type Mempool struct {
	mu       sync.Mutex
	capacity int
	order    [][]byte
	seen     map[types.Hash]struct{}
}

// New creates a Mempool bounded to capacity transactions.
func New(capacity int) *Mempool {
	if capacity <= 0 {
		capacity = 100_000
	}
	return &Mempool{
		capacity: capacity,
		seen:     make(map[types.Hash]struct{}),
	}
}

// Insert adds tx to the pool, deduplicating by hash and refusing once
// capacity is reached. Returns false if tx was a duplicate or the pool
// was full.
func (m *Mempool) Insert(tx []byte, hash types.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[hash]; dup {
		return false
	}
	if len(m.order) >= m.capacity {
		return false
	}
	m.seen[hash] = struct{}{}
	m.order = append(m.order, tx)
	return true
}

// Drain removes and returns up to n pending transactions, in FIFO order
// (spec §4.6: the microblock driver drains a batch every tick).
func (m *Mempool) Drain(n int) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n > len(m.order) {
		n = len(m.order)
	}
	out := m.order[:n]
	m.order = m.order[n:]
	return out
}

// Len returns the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}
