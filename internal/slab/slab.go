// Package slab implements a single fixed-capacity, append-only region of
// disk holding a densely packed sequence of records (spec §3 "Slab",
// §4.2). Bytes are never rewritten in place; a slab only ever grows
// until it is sealed.
package slab

import (
	"encoding/binary"
	"os"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/Elzor/vstorage/internal/record"
	"github.com/Elzor/vstorage/internal/storeerr"
)

const slabMagic uint32 = 0x31535356 // "VSS1"
const slabFormatVersion uint8 = 1
const headerLen = 4 + 1 + 8 + 8 + 8 // magic,version,slabID,creationTime,capacity

// State is the disk state of a slab (spec §3).
type State int

const (
	StateActive State = iota
	StateSealed
	StateRetired
)

// Full is returned by Append when the record would exceed the slab's
// remaining capacity.
var Full = errors.New("slab: full")

// RecordEntry describes one record found during a sequential scan,
// keyed by its starting offset.
type RecordEntry struct {
	BlockID   string
	Offset    int64
	Length    int64
	Tombstone bool
}

// Slab is one fixed-capacity append-only file plus its in-memory record
// index rebuilt from a sequential scan.
type Slab struct {
	ID           uint64
	Capacity     int64
	CreatedAtMS  uint64
	path         string
	file         *os.File

	mu        sync.Mutex
	watermark int64
	sealed    bool

	// recordsMu guards records, which is consulted concurrently by
	// LiveRatio and by reads; appends take mu only (mirroring spec §5:
	// "sealed slabs may be read concurrently without holding [the
	// writer mutex]").
	recordsMu sync.RWMutex
	records   []RecordEntry
}

// Create makes a brand-new slab file at path with the given id and
// capacity, writes its header, and fsyncs it.
func Create(path string, id uint64, capacity int64) (*Slab, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, errors.Wrapf(
			storeerr.New(storeerr.KindIOError, err.Error()),
			"slab.Create %q", path)
	}
	createdAtMS := uint64(time.Now().UnixMilli())
	hdr := make([]byte, headerLen)
	binary.LittleEndian.PutUint32(hdr[0:4], slabMagic)
	hdr[4] = slabFormatVersion
	binary.LittleEndian.PutUint64(hdr[5:13], id)
	binary.LittleEndian.PutUint64(hdr[13:21], createdAtMS)
	binary.LittleEndian.PutUint64(hdr[21:29], uint64(capacity))
	if _, err := f.Write(hdr); err != nil {
		f.Close()
		return nil, errors.Wrapf(
			storeerr.New(storeerr.KindIOError, err.Error()),
			"slab.Create %q: write header", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return nil, errors.Wrapf(
			storeerr.New(storeerr.KindIOError, err.Error()),
			"slab.Create %q: fsync header", path)
	}
	return &Slab{
		ID:          id,
		Capacity:    capacity,
		CreatedAtMS: createdAtMS,
		path:        path,
		file:        f,
		watermark:   int64(headerLen),
	}, nil
}

// Open reads and validates an existing slab's header, then scans its
// records sequentially to rebuild the in-memory record index. A record
// whose header CRC fails terminates the scan: all subsequent bytes are
// treated as unwritten (truncation recovery), matching spec §4.2.
func Open(path string) (*Slab, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(
			storeerr.New(storeerr.KindIOError, err.Error()),
			"slab.Open %q", path)
	}
	hdr := make([]byte, headerLen)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		f.Close()
		return nil, errors.Wrapf(
			storeerr.New(storeerr.KindCorruption, err.Error()),
			"slab.Open %q: read header", path)
	}
	if got := binary.LittleEndian.Uint32(hdr[0:4]); got != slabMagic {
		f.Close()
		return nil, errors.Wrapf(
			storeerr.Newf(storeerr.KindCorruption, "bad slab magic 0x%x", got),
			"slab.Open %q", path)
	}
	id := binary.LittleEndian.Uint64(hdr[5:13])
	createdAtMS := binary.LittleEndian.Uint64(hdr[13:21])
	capacity := int64(binary.LittleEndian.Uint64(hdr[21:29]))

	s := &Slab{
		ID:          id,
		Capacity:    capacity,
		CreatedAtMS: createdAtMS,
		path:        path,
		file:        f,
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(storeerr.New(storeerr.KindIOError, err.Error()), "slab.Open %q: stat", path)
	}
	fileSize := info.Size()

	offset := int64(headerLen)
	for offset+record.HeaderLen <= fileSize {
		hdrBuf := make([]byte, record.HeaderLen)
		if _, err := f.ReadAt(hdrBuf, offset); err != nil {
			break
		}
		h, err := record.DecodeHeader(hdrBuf)
		if err != nil {
			// Truncation recovery: stop at the first bad header and treat
			// everything from here on as unwritten.
			break
		}
		total := h.TotalLen()
		if offset+total > fileSize {
			break
		}
		blockID := make([]byte, h.BlockIDLength)
		if _, err := f.ReadAt(blockID, offset+int64(record.HeaderLen)); err != nil {
			break
		}
		s.records = append(s.records, RecordEntry{
			BlockID:   string(blockID),
			Offset:    offset,
			Length:    total,
			Tombstone: h.Tombstone,
		})
		offset += total
	}
	s.watermark = offset
	return s, nil
}

// Path returns the slab's file path.
func (s *Slab) Path() string { return s.path }

// CreatedAt returns the slab's creation time, recorded in its header.
func (s *Slab) CreatedAt() time.Time {
	return time.UnixMilli(int64(s.CreatedAtMS))
}

// Watermark returns the current append offset.
func (s *Slab) Watermark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.watermark
}

// Sealed reports whether the slab has been sealed.
func (s *Slab) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Append writes record bytes at the current watermark and advances it.
// It returns Full if the record would exceed capacity. The write is not
// durable until Flush is called.
func (s *Slab) Append(blockID string, tombstone bool, recordBytes []byte) (offset int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed {
		return 0, errors.Wrap(Full, "slab.Append: sealed")
	}
	if s.watermark+int64(len(recordBytes)) > s.Capacity {
		return 0, Full
	}
	n, werr := s.file.WriteAt(recordBytes, s.watermark)
	if werr != nil {
		return 0, errors.Wrap(storeerr.New(storeerr.KindIOError, werr.Error()), "slab.Append")
	}
	if n != len(recordBytes) {
		return 0, errors.Wrap(storeerr.New(storeerr.KindIOError, "short write"), "slab.Append")
	}
	offset = s.watermark
	s.watermark += int64(len(recordBytes))

	s.recordsMu.Lock()
	s.records = append(s.records, RecordEntry{
		BlockID:   blockID,
		Offset:    offset,
		Length:    int64(len(recordBytes)),
		Tombstone: tombstone,
	})
	s.recordsMu.Unlock()
	return offset, nil
}

// Read performs a random-access read of the record at offset, length
// bytes long, and validates its header CRC.
func (s *Slab) Read(offset, length int64) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := s.file.ReadAt(buf, offset); err != nil {
		return nil, errors.Wrap(storeerr.New(storeerr.KindIOError, err.Error()), "slab.Read")
	}
	if _, err := record.DecodeHeader(buf[:record.HeaderLen]); err != nil {
		return nil, errors.Wrap(err, "slab.Read: corrupt record")
	}
	return buf, nil
}

// Flush forces outstanding writes to stable storage.
func (s *Slab) Flush() error {
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(storeerr.New(storeerr.KindIOError, err.Error()), "slab.Flush")
	}
	return nil
}

// Seal marks the slab immutable. Idempotent.
func (s *Slab) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Close releases the underlying file descriptor.
func (s *Slab) Close() error {
	return s.file.Close()
}

// Unlink seals, closes, and removes the slab file (spec §4.3 retirement).
func (s *Slab) Unlink() error {
	s.Seal()
	_ = s.Close()
	if err := os.Remove(s.path); err != nil {
		return errors.Wrap(storeerr.New(storeerr.KindIOError, err.Error()), "slab.Unlink")
	}
	return nil
}

// LiveRatio returns the fraction of the slab's watermark occupied by
// records that isLive reports as still live for their block-id and
// offset. isLive is called once per non-tombstone record found by the
// slab's own scan; it should answer using the current index, not this
// slab's own bookkeeping, since the index is the source of truth for
// liveness (spec §4.2's live_ratio definition).
func (s *Slab) LiveRatio(isLive func(blockID string, offset int64) bool) float64 {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()

	wm := s.Watermark()
	if wm <= int64(headerLen) {
		return 0
	}
	var live int64
	for _, e := range s.records {
		if e.Tombstone {
			continue
		}
		if isLive(e.BlockID, e.Offset) {
			live += e.Length
		}
	}
	return float64(live) / float64(wm)
}

// Records returns a snapshot of the record index built at Open/Append
// time, in on-disk order.
func (s *Slab) Records() []RecordEntry {
	s.recordsMu.RLock()
	defer s.recordsMu.RUnlock()
	out := make([]RecordEntry, len(s.records))
	copy(out, s.records)
	return out
}
