// Package index implements the in-memory mapping from block-id to its
// physical location and metadata (spec §3 "Index entry", §4.4). Durability
// lives in the slabs; the index is derived state, rebuilt at startup by
// replaying every slab in creation order (spec §4.4's rationale).
//
// The map is striped by block-id hash (spec §5: "a striped lock
// suffices"), following the teacher's use of a fast non-cryptographic
// hash for in-memory key routing.
package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/storeerr"
)

// shardCount is the number of stripes the index is split into. A power
// of two keeps the shard-selection mask cheap.
const shardCount = 64

// Entry is the metadata stored for each live block-id (spec §3 "Index
// entry").
type Entry struct {
	SlabID             uint64
	RecordOffset       int64
	RecordLength       int64
	UncompressedLength uint32
	Compression        codec.Compression
	HashFunction       codec.HashFunction
	Hash               codec.Digest
	ObjectID           string
	ContentType        string
	Generation         uint64
	CreationTimeMillis uint64
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Index is the striped-lock block-id -> Entry map.
type Index struct {
	shards [shardCount]*shard
}

// New returns an empty Index.
func New() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{entries: make(map[string]Entry)}
	}
	return idx
}

func (idx *Index) shardFor(blockID string) *shard {
	h := xxhash.Sum64String(blockID)
	return idx.shards[h&(shardCount-1)]
}

// Get returns the entry for blockID, if any.
func (idx *Index) Get(blockID string) (Entry, bool) {
	s := idx.shardFor(blockID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[blockID]
	return e, ok
}

// InsertNew inserts an entry for a block-id that must not already exist.
// Fails with storeerr.Exists otherwise (spec §4.4).
func (idx *Index) InsertNew(blockID string, e Entry) error {
	s := idx.shardFor(blockID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[blockID]; ok {
		return storeerr.Exists
	}
	s.entries[blockID] = e
	return nil
}

// Upsert inserts or replaces the entry for blockID, returning the
// previous entry if one existed.
func (idx *Index) Upsert(blockID string, e Entry) (prev Entry, hadPrev bool) {
	s := idx.shardFor(blockID)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev = s.entries[blockID]
	s.entries[blockID] = e
	return prev, hadPrev
}

// Delete removes the entry for blockID, returning it if present.
func (idx *Index) Delete(blockID string) (prev Entry, hadPrev bool) {
	s := idx.shardFor(blockID)
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev = s.entries[blockID]
	if hadPrev {
		delete(s.entries, blockID)
	}
	return prev, hadPrev
}

// CompareAndRelocate atomically updates the slab location of blockID's
// entry, provided it still points at fromSlabID/fromOffset. Used by the
// compactor to move a live record's entry to its new slab without
// disturbing a concurrent newer write or delete (spec §4.5.6).
func (idx *Index) CompareAndRelocate(blockID string, fromSlabID uint64, fromOffset int64, toSlabID uint64, toOffset int64) bool {
	s := idx.shardFor(blockID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[blockID]
	if !ok || e.SlabID != fromSlabID || e.RecordOffset != fromOffset {
		return false
	}
	e.SlabID = toSlabID
	e.RecordOffset = toOffset
	s.entries[blockID] = e
	return true
}

// Len returns the number of live entries (spec §3 I4's "objects").
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry currently in the index. fn must not
// call back into the Index.
func (idx *Index) Range(fn func(blockID string, e Entry)) {
	for _, s := range idx.shards {
		s.mu.RLock()
		for k, v := range s.entries {
			fn(k, v)
		}
		s.mu.RUnlock()
	}
}
