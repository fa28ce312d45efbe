// Package slabset maintains the process-wide ordered collection of
// slabs (spec §3 "Slab" lifecycle, §4.3). It tracks which slab is
// active, iterates sealed slabs, and picks a compaction victim using a
// heap ordered by live ratio, the same shape as the Storj hashstore's log-file
// heap (other_examples/.../storagenode-hashstore-store.go) generalized
// to this engine's configurable live-ratio threshold and minimum age.
package slabset

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Elzor/vstorage/internal/slab"
	"github.com/Elzor/vstorage/internal/storeerr"
)

const slabFilePrefix = "slab-"
const slabFileSuffix = ".dat"

// Set owns every slab file in a directory: at most one active, any
// number sealed, and any being retired.
type Set struct {
	dir      string
	capacity int64

	mu      sync.RWMutex
	active  *slab.Slab
	sealed  map[uint64]*slab.Slab
	nextID  uint64
}

// Open scans dir, opening every slab file found (sorted by slab-id
// ascending, so replay proceeds in creation order per spec §4.3), and
// either promotes the highest-id non-full slab to active or creates a
// fresh one.
func Open(dir string, capacity int64) (*Set, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(storeerr.New(storeerr.KindIOError, err.Error()), "slabset.Open %q", dir)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(storeerr.New(storeerr.KindIOError, err.Error()), "slabset.Open %q", dir)
	}

	var ids []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseSlabFilename(e.Name())
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	s := &Set{dir: dir, capacity: capacity, sealed: make(map[uint64]*slab.Slab)}
	for _, id := range ids {
		sl, err := slab.Open(s.filename(id))
		if err != nil {
			return nil, err
		}
		s.sealed[id] = sl
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}

	// The slab with the highest id and a non-full watermark becomes
	// active; if none qualifies, create a new one (spec §4.3).
	if len(ids) > 0 {
		lastID := ids[len(ids)-1]
		last := s.sealed[lastID]
		if !last.Sealed() && last.Watermark() < capacity {
			delete(s.sealed, lastID)
			s.active = last
		}
	}
	if s.active == nil {
		sl, err := s.createLocked()
		if err != nil {
			return nil, err
		}
		s.active = sl
	}
	return s, nil
}

func (s *Set) filename(id uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", slabFilePrefix, id, slabFileSuffix))
}

func parseSlabFilename(name string) (uint64, bool) {
	if !strings.HasPrefix(name, slabFilePrefix) || !strings.HasSuffix(name, slabFileSuffix) {
		return 0, false
	}
	numPart := strings.TrimSuffix(strings.TrimPrefix(name, slabFilePrefix), slabFileSuffix)
	id, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (s *Set) createLocked() (*slab.Slab, error) {
	id := s.nextID
	s.nextID++
	return slab.Create(s.filename(id), id, s.capacity)
}

// Active returns the current active slab.
func (s *Set) Active() *slab.Slab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// SealActiveAndPromote seals the current active slab and creates a
// fresh one to take its place, used when an append doesn't fit (spec
// §4.5.1's "seal the active slab, create a new one, retry once").
func (s *Set) SealActiveAndPromote() (*slab.Slab, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.active
	old.Seal()
	s.sealed[old.ID] = old
	fresh, err := s.createLocked()
	if err != nil {
		// No successor could be created: the old slab stays sealed and
		// remains the active pointer, and the failure surfaces as NoSpace.
		return nil, errors.Wrap(storeerr.NoSpace, "slabset.SealActiveAndPromote")
	}
	s.active = fresh
	return fresh, nil
}

// Get returns the slab with the given id, whether active or sealed.
func (s *Set) Get(id uint64) (*slab.Slab, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active != nil && s.active.ID == id {
		return s.active, true
	}
	sl, ok := s.sealed[id]
	return sl, ok
}

// SealedSlabs returns a snapshot of every sealed slab, ordered by id
// ascending (replay order).
func (s *Set) SealedSlabs() []*slab.Slab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*slab.Slab, 0, len(s.sealed))
	for _, sl := range s.sealed {
		out = append(out, sl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AllSlabsAscending returns every slab (active and sealed), ordered by
// id ascending — the order index replay must follow (spec §4.4).
func (s *Set) AllSlabsAscending() []*slab.Slab {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*slab.Slab, 0, len(s.sealed)+1)
	for _, sl := range s.sealed {
		out = append(out, sl)
	}
	if s.active != nil {
		out = append(out, s.active)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Retire unlinks a sealed slab once every live record has been migrated
// out of it (spec §4.5.6).
func (s *Set) Retire(id uint64) error {
	s.mu.Lock()
	sl, ok := s.sealed[id]
	if !ok {
		s.mu.Unlock()
		return errors.Newf("slabset.Retire: unknown slab %d", id)
	}
	delete(s.sealed, id)
	s.mu.Unlock()
	return sl.Unlink()
}

// victim pairs a slab with its live ratio for the compaction heap.
type victim struct {
	slab      *slab.Slab
	liveRatio float64
	createdAt time.Time
}

type victimHeap []victim

func (h victimHeap) Len() int            { return len(h) }
func (h victimHeap) Less(i, j int) bool  { return h[i].liveRatio < h[j].liveRatio }
func (h victimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *victimHeap) Push(x interface{}) { *h = append(*h, x.(victim)) }
func (h *victimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// PickVictim selects the sealed slab with the lowest live-ratio below
// threshold, skipping any younger than minAge, per spec §4.3.
// isLive tests whether the index still considers blockID (at offset)
// the current live location.
func (s *Set) PickVictim(threshold float64, minAge time.Duration, now time.Time, isLive func(blockID string, offset int64) bool) (*slab.Slab, bool) {
	candidates := s.SealedSlabs()
	h := &victimHeap{}
	heap.Init(h)
	for _, sl := range candidates {
		ratio := sl.LiveRatio(isLive)
		if ratio >= threshold {
			continue
		}
		createdAt := sl.CreatedAt()
		if now.Sub(createdAt) < minAge {
			continue
		}
		heap.Push(h, victim{slab: sl, liveRatio: ratio, createdAt: createdAt})
	}
	if h.Len() == 0 {
		return nil, false
	}
	return heap.Pop(h).(victim).slab, true
}
