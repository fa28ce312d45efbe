package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Elzor/vstorage/internal/record"
	"github.com/Elzor/vstorage/internal/slab"
)

// compactInterval is how often the compactor wakes up on its own, absent
// an explicit TriggerCompaction signal.
const compactInterval = 30 * time.Second

// compactorLoop is the background task of spec.md §9: fed by a
// single-producer signal channel, draining to quiescence on shutdown
// before the caller unlinks retired slabs. Mirrors the teacher's
// compact.ValueSeparation task shape, generalized to this engine's
// single compaction-at-a-time discipline (Storj hashstore's compactMu
// idiom: one cycle runs at a time, never overlapping itself).
func (e *Engine) compactorLoop() {
	defer close(e.compactDone)
	ticker := time.NewTicker(compactInterval)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-e.compactSignal:
			if !ok {
				return
			}
			e.runCompactionCycle()
		case <-ticker.C:
			e.runCompactionCycle()
		}
	}
}

// runCompactionCycle picks one victim slab and migrates its live records,
// per spec.md §4.5.6. A record found dead or superseded mid-migration is
// skipped; unreadable or corrupt records are logged and skipped rather than aborting
// the cycle (spec.md §7's compactor propagation rule).
func (e *Engine) runCompactionCycle() {
	e.compactMu.Lock()
	defer e.compactMu.Unlock()

	start := time.Now()
	victim, ok := e.slabs.PickVictim(e.cfg.CompactLiveRatioThreshold, e.cfg.CompactMinAge, time.Now(), e.isLiveAt)
	if !ok {
		return
	}
	if e.cfg.Metrics != nil {
		defer func() { e.cfg.Metrics.ObserveCompactionMillis(time.Since(start).Milliseconds()) }()
	}

	// Every non-tombstone record found in victim, whether still live,
	// already superseded, or orphaned by a lost relocation race, occupies
	// bytes that only retiring the slab actually reclaims. migrateRecord
	// reports each one's uncompressed length so the full sum can be
	// credited back to avail_bytes once (and only if) the slab is gone;
	// a record it manages to migrate also earns an extra debit at its
	// new location, so the two cancel out and only genuinely dead bytes
	// move the counter (spec.md §8).
	var freed int64
	for _, re := range victim.Records() {
		if re.Tombstone {
			continue
		}
		freed += e.migrateRecord(victim, re)
	}

	if err := e.slabs.Retire(victim.ID); err != nil {
		// The victim's file couldn't be removed (e.g. a concurrent writer
		// still holds it open on some platforms). Retire has already
		// dropped it from the slab set and closed it, so it is not picked
		// again; its bytes are not credited back to avail_bytes.
		_ = errors.Wrap(err, "engine.runCompactionCycle: retire")
		return
	}
	if freed != 0 {
		atomic.AddInt64(&e.availBytes, freed)
	}
}

// migrateRecord copies one still-live record out of victim into the
// active slab and repoints the index at its new location, all without
// bumping the generation (spec.md §4.5.6). It returns the record's
// uncompressed length, the amount runCompactionCycle should credit back
// to avail_bytes once victim is retired, or 0 if the record could not
// even be decoded (a corrupt record's length is unknown, so its bytes
// are conservatively left uncounted).
func (e *Engine) migrateRecord(victim *slab.Slab, re slab.RecordEntry) int64 {
	buf, err := victim.Read(re.Offset, re.Length)
	if err != nil {
		slog.Warn("compactor: skipping unreadable record", "slab", victim.ID, "offset", re.Offset, "error", err)
		return 0
	}
	rec, err := record.Decode(buf)
	if err != nil {
		slog.Warn("compactor: skipping corrupt record", "slab", victim.ID, "offset", re.Offset, "error", err)
		return 0
	}
	freed := int64(rec.UncompressedLength)

	entry, ok := e.idx.Get(re.BlockID)
	if !ok || entry.SlabID != victim.ID || entry.RecordOffset != re.Offset {
		// Deleted or superseded since the scan; nothing to migrate, but
		// its bytes are still reclaimed when victim goes away.
		return freed
	}

	sl, offset, err := e.appendRecord(rec)
	if err != nil {
		return freed
	}

	if !e.idx.CompareAndRelocate(re.BlockID, victim.ID, re.Offset, sl.ID, offset) {
		// Lost the race: someone else wrote a newer generation while we
		// were copying. The copy we just wrote is orphaned but harmless;
		// it will be reclaimed the next time this new slab is compacted.
		return freed
	}
	atomic.AddInt64(&e.moveBytes, freed)
	atomic.AddInt64(&e.availBytes, -freed)
	return freed
}

// isLiveAt answers the slab's LiveRatio callback: does the index's current
// entry for blockID sit at offset? The entry's slab id is not compared, so
// a record at the same offset in another slab also counts as live.
func (e *Engine) isLiveAt(blockID string, offset int64) bool {
	entry, ok := e.idx.Get(blockID)
	return ok && entry.RecordOffset == offset
}
