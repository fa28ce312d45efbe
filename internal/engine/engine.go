// Package engine orchestrates writes, reads, deletes and appends over a
// slab set and block index, drives the background compactor, and
// publishes statistics (spec §4.5). It is the explicit value the
// front-ends are handed at startup and shut down through — no process
// singleton, per spec §9's "Global engine state" redesign note.
package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/index"
	"github.com/Elzor/vstorage/internal/metrics"
	"github.com/Elzor/vstorage/internal/record"
	"github.com/Elzor/vstorage/internal/slab"
	"github.com/Elzor/vstorage/internal/slabset"
	"github.com/Elzor/vstorage/internal/storeerr"
)

// Config carries the tunables named in spec.md §6's configuration table.
type Config struct {
	DataDir                  string
	SlabCapacity             int64
	CompactLiveRatioThreshold float64
	CompactMinAge            time.Duration
	VerifyOnRead             bool
	DefaultCompression       codec.Compression

	// Metrics is optional; when set, the compactor reports cycle latency
	// into it.
	Metrics *metrics.Registry
}

// DefaultConfig returns the documented defaults.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:                   dataDir,
		SlabCapacity:              256 << 20,
		CompactLiveRatioThreshold: 0.5,
		CompactMinAge:             60 * time.Second,
		VerifyOnRead:              false,
		DefaultCompression:        codec.CompressionNone,
	}
}

// WriteOptions carries the per-call knobs accepted by Insert/Upsert/Append
// (spec §4.5.1's `options`, the HTTP `v-hash*`/`v-compress` headers, and
// the RPC `WriteOptions` message).
type WriteOptions struct {
	ContentType string
	Compress    codec.Compression
	Hash        codec.Digest
	HasHash     bool
	HashFunc    codec.HashFunction
}

// Meta is returned alongside a block-id on every successful write and on
// Get (spec §4.5.1's `meta`).
type Meta struct {
	Size               uint32
	Hash               codec.Digest
	Generation         uint64
	CreationTimeMillis uint64
	ContentType        string
	ObjectID           string
	Compression        codec.Compression
}

// GetResult is returned by Get.
type GetResult struct {
	Payload        []byte
	Meta           Meta
	NotModified    bool
	ContentEncoded bool // true when Payload is still lz4-compressed
}

// Stats is the snapshot structure of spec.md §4.5.7. Status is excluded
// from its JSON form (httpapi nests it under the sibling `node` object
// instead); every other field uses the snake_case wire names spec.md §6
// documents for the `storage` object.
type Stats struct {
	Status      string `json:"-"`
	InitBytes   int64  `json:"init_bytes"`
	ActiveSlots int    `json:"active_slots"`
	GCBytes     int64  `json:"gc_bytes"`
	MoveBytes   int64  `json:"move_bytes"`
	Objects     int    `json:"objects"`
	AvailBytes  int64  `json:"avail_bytes"`
}

// Engine is the explicit, non-singleton value wiring the slab set and
// index together. Create it with Open; shut it down with Close.
type Engine struct {
	cfg   Config
	slabs *slabset.Set
	idx   *index.Index

	initBytes  int64
	gcBytes    int64
	moveBytes  int64
	availBytes int64

	compactSignal chan struct{}
	compactDone   chan struct{}
	closeOnce     sync.Once

	// compactMu serializes compaction cycles: the background loop and an
	// offline CompactNow call must never run concurrently, mirroring the
	// teacher's hashstore compactMu idiom.
	compactMu sync.Mutex
}

// Open replays every slab in cfg.DataDir (in creation order, per spec
// §4.4) to rebuild the index, then starts the background compactor.
func Open(cfg Config) (*Engine, error) {
	slabs, err := slabset.Open(cfg.DataDir, cfg.SlabCapacity)
	if err != nil {
		return nil, errors.Wrap(err, "engine.Open")
	}
	idx := index.New()

	e := &Engine{
		cfg:           cfg,
		slabs:         slabs,
		idx:           idx,
		initBytes:     cfg.SlabCapacity,
		compactSignal: make(chan struct{}, 1),
		compactDone:   make(chan struct{}),
	}
	if err := e.replay(); err != nil {
		return nil, errors.Wrap(err, "engine.Open: replay")
	}
	// Seed avail_bytes once from whatever slabs replay found; from here on
	// it is maintained incrementally by writes, slab creation and
	// compaction, never recomputed from the live set (see Stats).
	e.availBytes = cfg.SlabCapacity*int64(len(e.slabs.AllSlabsAscending())) - e.liveBytes()
	go e.compactorLoop()
	return e, nil
}

// replay rebuilds the index from every slab, fanning the per-slab scans
// out across goroutines the way perkeep's diskpacked.StatBlobs uses
// syncutil.Group to parallelize per-file stat work, then applying each
// slab's records to the index sequentially in slab-id order so that a
// later slab's writes correctly displace an earlier slab's (spec §4.4).
func (e *Engine) replay() error {
	slabs := e.slabs.AllSlabsAscending()
	perSlab := make([][]slab.RecordEntry, len(slabs))

	g, _ := errgroup.WithContext(context.Background())
	for i, sl := range slabs {
		i, sl := i, sl
		g.Go(func() error {
			perSlab[i] = sl.Records()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, sl := range slabs {
		for _, rec := range perSlab[i] {
			e.applyReplayedRecord(sl, rec)
		}
	}
	return nil
}

func (e *Engine) applyReplayedRecord(sl *slab.Slab, re slab.RecordEntry) {
	buf, err := sl.Read(re.Offset, re.Length)
	if err != nil {
		return
	}
	rec, err := record.Decode(buf)
	if err != nil {
		return
	}
	h := rec.Header
	if h.Tombstone {
		if prev, ok := e.idx.Get(re.BlockID); ok && prev.Generation <= h.Generation {
			e.idx.Delete(re.BlockID)
		}
		return
	}
	entry := index.Entry{
		SlabID:             sl.ID,
		RecordOffset:       re.Offset,
		RecordLength:       re.Length,
		UncompressedLength: h.UncompressedLength,
		Compression:        h.Compression,
		HashFunction:        h.HashFunction,
		Hash:               h.Hash,
		ObjectID:           rec.ObjectID,
		ContentType:        rec.ContentType,
		Generation:         h.Generation,
		CreationTimeMillis: h.CreationTimeMillis,
	}
	if prev, ok := e.idx.Get(re.BlockID); !ok || h.Generation > prev.Generation {
		e.idx.Upsert(re.BlockID, entry)
	}
}

func nowMillis() uint64 { return uint64(time.Now().UnixMilli()) }

func generateBlockID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(storeerr.New(storeerr.KindIOError, err.Error()), "engine.generateBlockID")
	}
	return hex.EncodeToString(b), nil
}

// appendRecord writes rec to the active slab, sealing and retrying once
// on Full per spec.md §4.5.1.
func (e *Engine) appendRecord(rec record.Record) (*slab.Slab, int64, error) {
	buf := record.Encode(rec)
	active := e.slabs.Active()
	offset, err := active.Append(rec.BlockID, rec.Tombstone, buf)
	if err == nil {
		if ferr := active.Flush(); ferr != nil {
			return nil, 0, errors.Wrap(ferr, "engine.appendRecord: flush")
		}
		return active, offset, nil
	}
	if !errors.Is(err, slab.Full) {
		return nil, 0, errors.Wrap(err, "engine.appendRecord")
	}
	if int64(len(buf)) > e.cfg.SlabCapacity {
		return nil, 0, storeerr.New(storeerr.KindTooLarge, "record exceeds slab capacity")
	}
	fresh, serr := e.slabs.SealActiveAndPromote()
	if serr != nil {
		return nil, 0, errors.Wrap(serr, "engine.appendRecord: seal and promote")
	}
	atomic.AddInt64(&e.availBytes, e.cfg.SlabCapacity)
	offset, err = fresh.Append(rec.BlockID, rec.Tombstone, buf)
	if err != nil {
		return nil, 0, errors.Wrap(err, "engine.appendRecord: retry")
	}
	if ferr := fresh.Flush(); ferr != nil {
		return nil, 0, errors.Wrap(ferr, "engine.appendRecord: flush retry")
	}
	return fresh, offset, nil
}

func (e *Engine) buildRecord(blockID, objectID string, payload []byte, opts WriteOptions, generation uint64) (record.Record, error) {
	hashFn := opts.HashFunc
	digest, err := codec.Hash(payload, hashFn)
	if err != nil {
		return record.Record{}, err
	}
	if opts.HasHash && opts.Hash != digest {
		return record.Record{}, storeerr.New(storeerr.KindHashMismatch, "computed hash does not match caller-supplied hash")
	}
	want := opts.Compress
	if want == codec.CompressionNone {
		want = e.cfg.DefaultCompression
	}
	compressed, effective, err := codec.Compress(payload, want)
	if err != nil {
		return record.Record{}, err
	}
	return record.New(blockID, objectID, opts.ContentType, compressed, hashFn, effective, digest, uint32(len(payload)), generation, nowMillis()), nil
}

// Insert implements spec.md §4.5.1.
func (e *Engine) Insert(blockID, objectID string, payload []byte, opts WriteOptions) (string, Meta, error) {
	if blockID == "" {
		id, err := generateBlockID()
		if err != nil {
			return "", Meta{}, err
		}
		blockID = id
	}
	if _, ok := e.idx.Get(blockID); ok {
		return "", Meta{}, storeerr.Exists
	}

	rec, err := e.buildRecord(blockID, objectID, payload, opts, 1)
	if err != nil {
		return "", Meta{}, err
	}
	sl, offset, err := e.appendRecord(rec)
	if err != nil {
		return "", Meta{}, err
	}

	entry := index.Entry{
		SlabID:             sl.ID,
		RecordOffset:       offset,
		RecordLength:       rec.TotalLen(),
		UncompressedLength: rec.UncompressedLength,
		Compression:        rec.Compression,
		HashFunction:        rec.HashFunction,
		Hash:               rec.Hash,
		ObjectID:           objectID,
		ContentType:        rec.ContentType,
		Generation:         rec.Generation,
		CreationTimeMillis: rec.CreationTimeMillis,
	}
	if err := e.idx.InsertNew(blockID, entry); err != nil {
		return "", Meta{}, err
	}
	atomic.AddInt64(&e.availBytes, -int64(rec.UncompressedLength))
	return blockID, metaOf(rec), nil
}

// Upsert implements spec.md §4.5.2.
func (e *Engine) Upsert(blockID, objectID string, payload []byte, opts WriteOptions) (Meta, error) {
	prev, hadPrev := e.idx.Get(blockID)
	generation := uint64(1)
	if hadPrev {
		generation = prev.Generation + 1
	}

	rec, err := e.buildRecord(blockID, objectID, payload, opts, generation)
	if err != nil {
		return Meta{}, err
	}
	sl, offset, err := e.appendRecord(rec)
	if err != nil {
		return Meta{}, err
	}

	entry := index.Entry{
		SlabID:             sl.ID,
		RecordOffset:       offset,
		RecordLength:       rec.TotalLen(),
		UncompressedLength: rec.UncompressedLength,
		Compression:        rec.Compression,
		HashFunction:        rec.HashFunction,
		Hash:               rec.Hash,
		ObjectID:           objectID,
		ContentType:        rec.ContentType,
		Generation:         rec.Generation,
		CreationTimeMillis: rec.CreationTimeMillis,
	}
	old, hadOld := e.idx.Upsert(blockID, entry)
	if hadOld {
		atomic.AddInt64(&e.gcBytes, int64(old.UncompressedLength))
	}
	atomic.AddInt64(&e.availBytes, -int64(rec.UncompressedLength))
	return metaOf(rec), nil
}

// Get implements spec.md §4.5.3.
func (e *Engine) Get(blockID string, crc codec.Digest, hasCRC bool, allowCompressed bool) (GetResult, error) {
	entry, ok := e.idx.Get(blockID)
	if !ok {
		return GetResult{}, storeerr.NotFound
	}
	if hasCRC && crc == entry.Hash {
		return GetResult{NotModified: true, Meta: metaOfEntry(entry)}, nil
	}

	sl, ok := e.slabs.Get(entry.SlabID)
	if !ok {
		e.idx.Delete(blockID)
		return GetResult{}, storeerr.New(storeerr.KindCorruption, "index points at an unknown slab")
	}
	buf, err := sl.Read(entry.RecordOffset, entry.RecordLength)
	if err != nil {
		e.idx.Delete(blockID)
		return GetResult{}, errors.Wrap(err, "engine.Get")
	}
	rec, err := record.Decode(buf)
	if err != nil {
		e.idx.Delete(blockID)
		return GetResult{}, errors.Wrap(err, "engine.Get")
	}

	if rec.Compression == codec.CompressionLZ4 && allowCompressed {
		return GetResult{Payload: rec.Payload, Meta: metaOfEntry(entry), ContentEncoded: true}, nil
	}
	payload, err := codec.Decompress(rec.Payload, rec.Compression, int(rec.UncompressedLength))
	if err != nil {
		e.idx.Delete(blockID)
		return GetResult{}, err
	}
	if e.cfg.VerifyOnRead {
		digest, herr := codec.Hash(payload, rec.HashFunction)
		if herr != nil || digest != rec.Hash {
			e.idx.Delete(blockID)
			return GetResult{}, storeerr.New(storeerr.KindCorruption, "payload hash verification failed")
		}
	}
	return GetResult{Payload: payload, Meta: metaOfEntry(entry)}, nil
}

// Append implements spec.md §4.5.4: a read-modify-write, not a physical
// append onto an existing record, to keep records immutable within a slab.
func (e *Engine) Append(blockID string, suffix []byte, opts WriteOptions) (Meta, error) {
	cur, err := e.Get(blockID, codec.Digest{}, false, false)
	if err != nil {
		return Meta{}, err
	}
	combined := make([]byte, 0, len(cur.Payload)+len(suffix))
	combined = append(combined, cur.Payload...)
	combined = append(combined, suffix...)
	opts.ContentType = cur.Meta.ContentType
	return e.Upsert(blockID, cur.Meta.ObjectID, combined, opts)
}

// Delete implements spec.md §4.5.5.
func (e *Engine) Delete(blockID string) error {
	prev, ok := e.idx.Delete(blockID)
	if !ok {
		return storeerr.NotFound
	}
	tomb := record.Tombstone(blockID, prev.Generation+1, nowMillis())
	if _, _, err := e.appendRecord(tomb); err != nil {
		return errors.Wrap(err, "engine.Delete: tombstone")
	}
	atomic.AddInt64(&e.gcBytes, int64(prev.UncompressedLength))
	return nil
}

// Stats implements spec.md §4.5.7. active_slots is the count of slabs
// currently open (active + sealed), per the Open Question resolution in
// DESIGN.md. avail_bytes is an explicit running counter (see Insert,
// Upsert, appendRecord and the compactor), not recomputed from the live
// index here: deriving it from capacity minus live bytes on every call
// would make it swing on Delete, since the index entry is gone before
// Stats ever reads it (spec §4.5.5 requires avail_bytes to be unchanged
// by delete — only compaction returns space).
func (e *Engine) Stats() Stats {
	return Stats{
		Status:      "normal",
		InitBytes:   atomic.LoadInt64(&e.initBytes),
		ActiveSlots: len(e.slabs.AllSlabsAscending()),
		GCBytes:     atomic.LoadInt64(&e.gcBytes),
		MoveBytes:   atomic.LoadInt64(&e.moveBytes),
		Objects:     e.idx.Len(),
		AvailBytes:  atomic.LoadInt64(&e.availBytes),
	}
}

// BlockIDs returns every currently live block-id, for the RPC Idx method.
func (e *Engine) BlockIDs() []string {
	ids := make([]string, 0, e.idx.Len())
	e.idx.Range(func(blockID string, _ index.Entry) {
		ids = append(ids, blockID)
	})
	return ids
}

func (e *Engine) liveBytes() int64 {
	var total int64
	e.idx.Range(func(_ string, entry index.Entry) {
		total += int64(entry.UncompressedLength)
	})
	return total
}

// TriggerCompaction requests an out-of-cycle compaction pass. Non-blocking:
// if a cycle is already queued, the request is coalesced.
func (e *Engine) TriggerCompaction() {
	select {
	case e.compactSignal <- struct{}{}:
	default:
	}
}

// CompactNow runs one compaction cycle synchronously on the caller's
// goroutine, for the offline `compact-now` CLI command.
func (e *Engine) CompactNow() {
	e.runCompactionCycle()
}

// Close drains the compactor to quiescence and flushes the active slab,
// per spec.md §9's "init(config) → serve → shutdown" lifecycle.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.compactSignal)
		<-e.compactDone
		err = e.slabs.Active().Flush()
	})
	return err
}

func metaOf(rec record.Record) Meta {
	return Meta{
		Size:               rec.UncompressedLength,
		Hash:               rec.Hash,
		Generation:         rec.Generation,
		CreationTimeMillis: rec.CreationTimeMillis,
		ContentType:        rec.ContentType,
		ObjectID:           rec.ObjectID,
		Compression:        rec.Compression,
	}
}

func metaOfEntry(e index.Entry) Meta {
	return Meta{
		Size:               e.UncompressedLength,
		Hash:               e.Hash,
		Generation:         e.Generation,
		CreationTimeMillis: e.CreationTimeMillis,
		ContentType:        e.ContentType,
		ObjectID:           e.ObjectID,
		Compression:        e.Compression,
	}
}
