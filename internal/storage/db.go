// Package storage implements the Storage Contract (spec §4.4 / C4): a
// write-ahead-logged, memtable-backed engine for microblocks and
// macroblocks with immutable SST segments, a Bloom filter per segment, an
// LRU block cache, and compaction run inline when a flush leaves enough
// segments; plus a small embedded key-value store for lower-throughput
// records (internal/node keeps reputation scores there) that don't need
// the WAL/SST treatment.
package storage

// DB is a generic embedded key-value store for records that are read far
// more often than written, such as the node's persisted reputation scores.
type DB interface {
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Has(key []byte) (bool, error)
	// ForEach iterates over all keys with the given prefix. The callback
	// receives a copy of the key and value. Returning a non-nil error from
	// fn stops iteration early.
	ForEach(prefix []byte, fn func(key, value []byte) error) error
	Close() error
}
