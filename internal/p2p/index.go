package p2p

import (
	"sync"

	"github.com/dolthub/swiss"
)

// lockfreeThreshold is the peer count at which the dual index switches
// from a mutex-guarded map to the swiss-table-backed lock-reduced mode
// (spec §4.3: "auto-scaling lock-free mode" — reduces contention on the
// hot read path once a node carries enough peers for lock contention to
// show up in profiles).
const lockfreeThreshold = 50

// peerKey is the key the swiss table indexes peers by: the full node_id,
// so two peers whose ids share a long common prefix never share a slot.
type peerKey string

func keyFor(nodeID string) peerKey {
	return peerKey(nodeID)
}

// dualIndex maps both address->node_id and node_id->PeerInfo, bidirectionally,
// switching its backing structure between a plain mutex-guarded map (legacy
// mode, default) and a swiss.Map (lock-reduced mode) once the peer count
// crosses lockfreeThreshold.
type dualIndex struct {
	mu sync.RWMutex

	byID      map[string]PeerInfo
	byAddress map[string]string // address -> node_id

	lockfree    bool
	swissByID   *swiss.Map[peerKey, PeerInfo]
}

func newDualIndex() *dualIndex {
	return &dualIndex{
		byID:      make(map[string]PeerInfo),
		byAddress: make(map[string]string),
	}
}

// Put inserts or updates a peer record in both indexes. If this insertion
// crosses lockfreeThreshold, the index migrates its id-keyed storage to
// the swiss-table-backed mode.
func (d *dualIndex) Put(info PeerInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.byAddress[info.Address] = info.NodeID

	if d.lockfree {
		d.swissByID.Put(keyFor(info.NodeID), info)
		return
	}

	d.byID[info.NodeID] = info
	if len(d.byID) >= lockfreeThreshold {
		d.migrateToLockfreeLocked()
	}
}

func (d *dualIndex) migrateToLockfreeLocked() {
	sm := swiss.NewMap[peerKey, PeerInfo](uint32(len(d.byID) * 2))
	for id, info := range d.byID {
		sm.Put(keyFor(id), info)
	}
	d.swissByID = sm
	d.byID = nil
	d.lockfree = true
}

// GetByID returns the peer record for nodeID, if known.
func (d *dualIndex) GetByID(nodeID string) (PeerInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lockfree {
		return d.swissByID.Get(keyFor(nodeID))
	}
	info, ok := d.byID[nodeID]
	return info, ok
}

// GetByAddress returns the peer record for address, if known.
func (d *dualIndex) GetByAddress(address string) (PeerInfo, bool) {
	d.mu.RLock()
	id, ok := d.byAddress[address]
	d.mu.RUnlock()
	if !ok {
		return PeerInfo{}, false
	}
	return d.GetByID(id)
}

// Remove deletes a peer from both indexes.
func (d *dualIndex) Remove(nodeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var addr string
	if d.lockfree {
		if info, ok := d.swissByID.Get(keyFor(nodeID)); ok {
			addr = info.Address
		}
		d.swissByID.Delete(keyFor(nodeID))
	} else {
		if info, ok := d.byID[nodeID]; ok {
			addr = info.Address
		}
		delete(d.byID, nodeID)
	}
	if addr != "" {
		delete(d.byAddress, addr)
	}
}

// Len returns the number of known peers.
func (d *dualIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.lockfree {
		return d.swissByID.Count()
	}
	return len(d.byID)
}

// All returns a snapshot of every known peer.
func (d *dualIndex) All() []PeerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerInfo, 0, d.Len())
	if d.lockfree {
		d.swissByID.Iter(func(_ peerKey, v PeerInfo) bool {
			out = append(out, v)
			return false
		})
		return out
	}
	for _, v := range d.byID {
		out = append(out, v)
	}
	return out
}

// IsLockfree reports whether the index is currently in lock-reduced mode.
func (d *dualIndex) IsLockfree() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lockfree
}
