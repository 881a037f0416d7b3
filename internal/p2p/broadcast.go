package p2p

import (
	"context"
	"sync"
)

// broadcastFanout is the number of closest-by-XOR-distance peers a single
// node relays a broadcast message to directly; the K-bucket structure
// keeps total network-wide traffic near O(n log n) instead of O(n^2)
// (spec §4.3 broadcast).
const broadcastFanout = 8

// Sender delivers a single message to one peer over the transport. The
// Peer Fabric doesn't own the wire format — internal/api does — so
// Broadcast takes a Sender closure rather than importing internal/api.
type Sender func(ctx context.Context, peer PeerInfo, payload []byte) error

// Broadcast relays payload to the broadcastFanout peers closest to the
// local node_id by XOR distance, fanning sends out concurrently. Errors
// from individual sends are collected but never abort the others.
func (f *Fabric) Broadcast(ctx context.Context, payload []byte, send Sender) []error {
	targets := f.buckets.Closest(f.selfID, broadcastFanout)

	var wg sync.WaitGroup
	errCh := make(chan error, len(targets))
	for _, nodeID := range targets {
		info, ok := f.index.GetByID(nodeID)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(p PeerInfo) {
			defer wg.Done()
			if err := send(ctx, p, payload); err != nil {
				errCh <- err
			}
		}(info)
	}
	wg.Wait()
	close(errCh)

	var errs []error
	for err := range errCh {
		errs = append(errs, err)
	}
	return errs
}
