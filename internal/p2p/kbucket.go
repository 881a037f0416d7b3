package p2p

import (
	"sort"
	"sync"

	kbucket "github.com/libp2p/go-libp2p-kbucket"
)

// bucketSize is the maximum number of peers held per CPL bucket (the
// classic Kademlia k=20).
const bucketSize = 20

// numBuckets covers every possible common-prefix-length value for a
// 256-bit key space (SHA-256-derived kbucket.ID).
const numBuckets = 256

// bucketEntry is one peer held in a bucket, carrying the reputation score
// it was admitted with so a later overflowing candidate can be compared
// against the bucket's weakest member (spec §4.3 K-bucket eviction).
type bucketEntry struct {
	nodeID     string
	reputation float64
}

// BucketTable groups known peers by their XOR distance from the local
// node, bucketed by common prefix length against kbucket.ConvertKey,
// exactly the structure a Kademlia-style DHT uses to bound gossip fanout
// to O(log n) buckets instead of every peer (spec §4.3 K-bucket index).
type BucketTable struct {
	mu      sync.RWMutex
	localID kbucket.ID
	buckets [numBuckets][]bucketEntry // one slice per CPL
}

// NewBucketTable builds a table centered on localNodeID.
func NewBucketTable(localNodeID string) *BucketTable {
	return &BucketTable{localID: kbucket.ConvertKey(localNodeID)}
}

func (t *BucketTable) bucketIndex(nodeID string) int {
	cpl := kbucket.CommonPrefixLen(t.localID, kbucket.ConvertKey(nodeID))
	if cpl >= numBuckets {
		cpl = numBuckets - 1
	}
	return cpl
}

// Add inserts nodeID into its bucket at the given reputation score. If the
// bucket has room, nodeID is admitted unconditionally. If the bucket is
// full, nodeID is admitted only when its reputation strictly exceeds the
// bucket's current minimum, which is evicted to make room; otherwise Add
// rejects the candidate and leaves the bucket untouched (spec §4.3: a
// reputation-gated eviction policy, not a blind oldest-evicted one).
func (t *BucketTable) Add(nodeID string, reputation float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(nodeID)
	bucket := t.buckets[idx]
	for i, existing := range bucket {
		if existing.nodeID == nodeID {
			bucket[i].reputation = reputation
			return true
		}
	}

	if len(bucket) < bucketSize {
		t.buckets[idx] = append(bucket, bucketEntry{nodeID: nodeID, reputation: reputation})
		return true
	}

	minIdx := 0
	for i, e := range bucket {
		if e.reputation < bucket[minIdx].reputation {
			minIdx = i
		}
	}
	if reputation <= bucket[minIdx].reputation {
		return false
	}
	bucket[minIdx] = bucketEntry{nodeID: nodeID, reputation: reputation}
	return true
}

// Remove deletes nodeID from its bucket.
func (t *BucketTable) Remove(nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := t.bucketIndex(nodeID)
	bucket := t.buckets[idx]
	for i, existing := range bucket {
		if existing.nodeID == nodeID {
			t.buckets[idx] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// Closest returns up to n node_ids ordered by descending common-prefix
// length with target, so nearer XOR buckets come first; ids sharing the
// same prefix length are not ordered among themselves. Used to select
// broadcast/relay fanout peers (spec §4.3).
func (t *BucketTable) Closest(target string, n int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	targetID := kbucket.ConvertKey(target)
	type candidate struct {
		id  string
		cpl int
	}
	var all []candidate
	for _, bucket := range t.buckets {
		for _, e := range bucket {
			all = append(all, candidate{id: e.nodeID, cpl: kbucket.CommonPrefixLen(targetID, kbucket.ConvertKey(e.nodeID))})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].cpl > all[j].cpl })

	if n > len(all) {
		n = len(all)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = all[i].id
	}
	return out
}

// Size returns the total number of peers held across every bucket.
func (t *BucketTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, b := range t.buckets {
		n += len(b)
	}
	return n
}
