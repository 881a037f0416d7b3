package storage

import (
	"fmt"
	"testing"
)

func TestEngine_PutGet(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	if err := e.Put([]byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, ok := e.Get([]byte("k1"))
	if !ok || string(v) != "v1" {
		t.Errorf("Get = %q, %v", v, ok)
	}
}

func TestEngine_DeleteTombstones(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	e.Put([]byte("k1"), []byte("v1"))
	e.Delete([]byte("k1"))

	if _, ok := e.Get([]byte("k1")); ok {
		t.Error("expected key to be absent after Delete")
	}
}

func TestEngine_FlushAndReadFromSegment(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	e.Put([]byte("k1"), []byte("v1"))
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if e.SegmentCount() != 1 {
		t.Fatalf("SegmentCount = %d, want 1", e.SegmentCount())
	}

	v, ok := e.Get([]byte("k1"))
	if !ok || string(v) != "v1" {
		t.Errorf("Get after flush = %q, %v", v, ok)
	}
}

func TestEngine_CompactionMergesSegments(t *testing.T) {
	e, err := NewEngine(t.TempDir(), 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer e.Close()

	for i := 0; i < compactionTrigger; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		e.Put(key, []byte("v"))
		if err := e.Flush(); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
	}

	if e.SegmentCount() != 1 {
		t.Errorf("expected compaction to merge down to 1 segment, got %d", e.SegmentCount())
	}
	for i := 0; i < compactionTrigger; i++ {
		key := []byte(fmt.Sprintf("k%d", i))
		if _, ok := e.Get(key); !ok {
			t.Errorf("key %s missing after compaction", key)
		}
	}
}

func TestEngine_ReplaysWALOnReopen(t *testing.T) {
	dir := t.TempDir()
	e, err := NewEngine(dir, 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	e.Put([]byte("k1"), []byte("v1"))
	// Simulate an unclean shutdown: close only the file handles, not via
	// the normal Close path that would flush to a segment.
	e.walWriter.Flush()
	e.walFile.Close()

	e2, err := NewEngine(dir, 16)
	if err != nil {
		t.Fatalf("reopen NewEngine: %v", err)
	}
	defer e2.Close()

	v, ok := e2.Get([]byte("k1"))
	if !ok || string(v) != "v1" {
		t.Errorf("Get after WAL replay = %q, %v", v, ok)
	}
}
