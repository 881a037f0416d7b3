package storage

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/greatroar/blobloom"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/qnet-project/qnet-core/internal/errs"
)

// wal operation codes, the last byte of every WAL record (spec §4.4 WAL
// framing: ts‖klen‖k‖vlen‖v‖op).
const (
	opPut byte = iota
	opDelete
)

const (
	// walSyncInterval bounds how long unflushed writes can sit in the OS
	// page cache before an explicit fsync.
	walSyncInterval = 1 * time.Second

	// memtableFlushThreshold is the number of entries at which the active
	// memtable is frozen and flushed to an immutable SST segment.
	memtableFlushThreshold = 10_000

	// compactionTrigger is the number of SST segments at which a
	// background compaction merges them into one.
	compactionTrigger = 4

	// bloomFalsePositiveRate targets a low false-positive rate for the
	// per-segment Bloom filter while keeping it small relative to the
	// keys it covers.
	bloomFalsePositiveRate = 0.01
)

// record is a single logical WAL/memtable/SST entry.
type record struct {
	key   []byte
	value []byte
	op    byte
}

// segment is one immutable, on-disk SST file: a sorted slice of records,
// a Bloom filter over its keys, and the path it was written to.
type segment struct {
	path   string
	bloom  *blobloom.Filter
	index  map[string]int // key -> offset into records, loaded lazily
	records []record
}

func (s *segment) has(key []byte) bool {
	return s.bloom.Has(hashKey(key))
}

func (s *segment) get(key []byte) ([]byte, bool) {
	if !s.has(key) {
		return nil, false
	}
	if idx, ok := s.index[string(key)]; ok {
		r := s.records[idx]
		if r.op == opDelete {
			return nil, false
		}
		return r.value, true
	}
	return nil, false
}

func hashKey(key []byte) uint64 {
	// FNV-1a, fast and deterministic — the Bloom filter only needs a good
	// hash, not a cryptographic one.
	h := uint64(14695981039346656037)
	for _, b := range key {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return h
}

// Engine is the Storage Contract's block-data path: a write-ahead log, an
// active in-memory memtable, a chain of immutable SST segments, a
// per-segment Bloom filter, and an LRU read cache (spec §4.4). It is
// independent of the record-oriented DB used for peers/activations.
type Engine struct {
	mu sync.Mutex

	dir        string
	walFile    *os.File
	walWriter  *bufio.Writer
	lastSync   time.Time

	memtable   map[string]record
	memOrder   []string // insertion order, for deterministic flush
	segments   []*segment

	cache *lru.Cache[string, []byte]
}

// NewEngine opens (or creates) an Engine rooted at dir, replaying any
// existing WAL and loading existing SST segments.
func NewEngine(dir string, cacheSize int) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Io, "create storage dir", err)
	}
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	cache, err := lru.New[string, []byte](cacheSize)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "create read cache", err)
	}

	e := &Engine{
		dir:      dir,
		memtable: make(map[string]record),
		cache:    cache,
	}

	if err := e.loadSegments(); err != nil {
		return nil, err
	}
	if err := e.openWAL(); err != nil {
		return nil, err
	}
	if err := e.replayWAL(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) walPath() string { return filepath.Join(e.dir, "wal.log") }

func (e *Engine) openWAL() error {
	f, err := os.OpenFile(e.walPath(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return errs.Wrap(errs.Io, "open WAL", err)
	}
	e.walFile = f
	e.walWriter = bufio.NewWriter(f)
	e.lastSync = time.Now()
	return nil
}

// replayWAL reconstructs the memtable from any records left in the WAL
// from an unclean shutdown (spec §4.4 crash recovery).
func (e *Engine) replayWAL() error {
	if _, err := e.walFile.Seek(0, 0); err != nil {
		return errs.Wrap(errs.Io, "seek WAL", err)
	}
	r := bufio.NewReader(e.walFile)
	for {
		rec, err := readWALRecord(r)
		if err != nil {
			break // truncated tail record from a crash mid-write; stop replay here
		}
		e.applyToMemtable(rec)
	}
	if _, err := e.walFile.Seek(0, 2); err != nil {
		return errs.Wrap(errs.Io, "seek WAL to end", err)
	}
	return nil
}

func writeWALRecord(w *bufio.Writer, rec record) error {
	ts := uint64(time.Now().UnixNano())
	if err := binary.Write(w, binary.LittleEndian, ts); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.key))); err != nil {
		return err
	}
	if _, err := w.Write(rec.key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(rec.value))); err != nil {
		return err
	}
	if _, err := w.Write(rec.value); err != nil {
		return err
	}
	return w.WriteByte(rec.op)
}

func readWALRecord(r *bufio.Reader) (record, error) {
	var ts uint64
	if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
		return record{}, err
	}
	var klen uint32
	if err := binary.Read(r, binary.LittleEndian, &klen); err != nil {
		return record{}, err
	}
	key := make([]byte, klen)
	if _, err := readFull(r, key); err != nil {
		return record{}, err
	}
	var vlen uint32
	if err := binary.Read(r, binary.LittleEndian, &vlen); err != nil {
		return record{}, err
	}
	value := make([]byte, vlen)
	if _, err := readFull(r, value); err != nil {
		return record{}, err
	}
	op, err := r.ReadByte()
	if err != nil {
		return record{}, err
	}
	return record{key: key, value: value, op: op}, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (e *Engine) applyToMemtable(rec record) {
	key := string(rec.key)
	if _, exists := e.memtable[key]; !exists {
		e.memOrder = append(e.memOrder, key)
	}
	e.memtable[key] = rec
}

// Put writes key/value, appending to the WAL before applying to the
// memtable (spec §4.4: WAL-before-memtable ordering on every write).
func (e *Engine) Put(key, value []byte) error {
	return e.write(record{key: append([]byte(nil), key...), value: append([]byte(nil), value...), op: opPut})
}

// Delete tombstones key (spec §4.4: deletes are WAL records too, resolved
// at read time and physically removed during compaction).
func (e *Engine) Delete(key []byte) error {
	return e.write(record{key: append([]byte(nil), key...), op: opDelete})
}

func (e *Engine) write(rec record) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := writeWALRecord(e.walWriter, rec); err != nil {
		return errs.Wrap(errs.Io, "append WAL", err)
	}
	if err := e.maybeSync(); err != nil {
		return err
	}
	e.applyToMemtable(rec)
	e.cache.Remove(string(rec.key))

	if len(e.memtable) >= memtableFlushThreshold {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) maybeSync() error {
	if time.Since(e.lastSync) < walSyncInterval {
		return e.walWriter.Flush()
	}
	if err := e.walWriter.Flush(); err != nil {
		return errs.Wrap(errs.Io, "flush WAL", err)
	}
	if err := e.walFile.Sync(); err != nil {
		return errs.Wrap(errs.Io, "fsync WAL", err)
	}
	e.lastSync = time.Now()
	return nil
}

// Get reads key, checking the LRU cache, then the active memtable, then
// immutable segments newest-first (spec §4.4 read path).
func (e *Engine) Get(key []byte) ([]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v, ok := e.cache.Get(string(key)); ok {
		return v, v != nil
	}
	if rec, ok := e.memtable[string(key)]; ok {
		if rec.op == opDelete {
			e.cache.Add(string(key), nil)
			return nil, false
		}
		e.cache.Add(string(key), rec.value)
		return rec.value, true
	}
	for i := len(e.segments) - 1; i >= 0; i-- {
		if v, ok := e.segments[i].get(key); ok {
			e.cache.Add(string(key), v)
			return v, true
		}
	}
	return nil, false
}

// flushLocked freezes the active memtable into a new immutable SST
// segment on disk and resets the memtable. Caller must hold e.mu.
func (e *Engine) flushLocked() error {
	if len(e.memOrder) == 0 {
		return nil
	}

	keys := append([]string(nil), e.memOrder...)
	sort.Strings(keys)

	filter := blobloom.NewOptimized(blobloom.Config{
		Capacity: uint64(len(keys)),
		FPRate:   bloomFalsePositiveRate,
	})
	seg := &segment{
		index: make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		rec := e.memtable[k]
		seg.index[k] = len(seg.records)
		seg.records = append(seg.records, rec)
		filter.Add(hashKey(rec.key))
	}
	seg.bloom = filter

	path := filepath.Join(e.dir, fmt.Sprintf("sst_%d.qnet", time.Now().UnixNano()))
	if err := writeSegmentFile(path, seg.records); err != nil {
		return err
	}
	seg.path = path

	e.segments = append(e.segments, seg)
	e.memtable = make(map[string]record)
	e.memOrder = nil

	if len(e.segments) >= compactionTrigger {
		return e.compactLocked()
	}
	return nil
}

// Flush forces the active memtable to disk regardless of size.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

func writeSegmentFile(path string, records []record) error {
	f, err := os.Create(path)
	if err != nil {
		return errs.Wrap(errs.Io, "create SST segment", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, rec := range records {
		if err := writeWALRecord(w, rec); err != nil {
			return errs.Wrap(errs.Io, "write SST record", err)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.Wrap(errs.Io, "flush SST segment", err)
	}
	return f.Sync()
}

func loadSegmentFile(path string) (*segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.Io, "open SST segment", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	seg := &segment{path: path, index: make(map[string]int)}
	filter := blobloom.NewOptimized(blobloom.Config{Capacity: 1024, FPRate: bloomFalsePositiveRate})
	for {
		rec, err := readWALRecord(r)
		if err != nil {
			break
		}
		seg.index[string(rec.key)] = len(seg.records)
		seg.records = append(seg.records, rec)
		filter.Add(hashKey(rec.key))
	}
	seg.bloom = filter
	return seg, nil
}

func (e *Engine) loadSegments() error {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errs.Wrap(errs.Io, "list storage dir", err)
	}
	var paths []string
	for _, ent := range entries {
		name := ent.Name()
		if (len(name) > 4 && name[:4] == "sst_" || len(name) > 7 && name[:7] == "merged_") && filepath.Ext(name) == ".qnet" {
			paths = append(paths, filepath.Join(e.dir, name))
		}
	}
	sort.Strings(paths)
	for _, p := range paths {
		seg, err := loadSegmentFile(p)
		if err != nil {
			return err
		}
		e.segments = append(e.segments, seg)
	}
	return nil
}

// compactLocked merges all current segments into a single new segment,
// resolving duplicate keys in favor of the newest write and dropping
// tombstones whose deletes have now propagated everywhere they're visible
// (spec §4.4 compaction: merge when segment count >= 4).
func (e *Engine) compactLocked() error {
	merged := make(map[string]record)
	var order []string
	for _, seg := range e.segments {
		for _, rec := range seg.records {
			key := string(rec.key)
			if _, exists := merged[key]; !exists {
				order = append(order, key)
			}
			merged[key] = rec
		}
	}
	sort.Strings(order)

	var records []record
	filter := blobloom.NewOptimized(blobloom.Config{Capacity: uint64(len(order)), FPRate: bloomFalsePositiveRate})
	index := make(map[string]int, len(order))
	for _, k := range order {
		rec := merged[k]
		if rec.op == opDelete {
			continue // tombstone fully resolved by compaction
		}
		index[k] = len(records)
		records = append(records, rec)
		filter.Add(hashKey(rec.key))
	}

	path := filepath.Join(e.dir, fmt.Sprintf("merged_%d.qnet", time.Now().UnixNano()))
	if err := writeSegmentFile(path, records); err != nil {
		return err
	}

	oldPaths := make([]string, 0, len(e.segments))
	for _, seg := range e.segments {
		oldPaths = append(oldPaths, seg.path)
	}

	e.segments = []*segment{{path: path, records: records, index: index, bloom: filter}}

	for _, p := range oldPaths {
		_ = os.Remove(p)
	}
	return nil
}

// SegmentCount returns the number of immutable SST segments currently on
// disk, exposed for tests and the disk-usage monitor.
func (e *Engine) SegmentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.segments)
}

// Close flushes the active memtable and closes the WAL file.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.flushLocked(); err != nil {
		return err
	}
	if err := e.walWriter.Flush(); err != nil {
		return errs.Wrap(errs.Io, "flush WAL on close", err)
	}
	return e.walFile.Close()
}
