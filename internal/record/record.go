// Package record implements the on-disk encoding of one block version
// (spec §3 "Record"). A record is self-describing: it carries its own
// magic, lengths and a header checksum, so a slab can be recovered by
// sequential scan alone, the same way the teacher's sstable footer
// carries everything a reader needs without consulting any other file.
package record

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cockroachdb/errors"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/storeerr"
)

// magic identifies the start of a record header. "VSB1" in ASCII.
const magic uint32 = 0x31425356

const recordVersion uint8 = 1

// flag bits within the header's flags byte.
const (
	flagTombstone uint8 = 1 << 0
)

// HeaderLen is the fixed size, in bytes, of a record's header, before
// the variable-length block-id, object-id, content-type and payload.
const HeaderLen = 4 + 1 + 1 + 1 + 1 + 2 + 2 + 2 + 4 + 4 + 16 + 8 + 8 + 4

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header is the fixed-width portion of a record, decoded from the first
// HeaderLen bytes.
type Header struct {
	Version            uint8
	Tombstone          bool
	HashFunction       codec.HashFunction
	Compression        codec.Compression
	BlockIDLength      uint16
	ObjectIDLength     uint16
	ContentTypeLength  uint16
	PayloadLength      uint32
	UncompressedLength uint32
	Hash               codec.Digest
	Generation         uint64
	CreationTimeMillis uint64
}

// Record is a fully decoded record: header plus the variable-length
// fields that follow it.
type Record struct {
	Header
	BlockID     string
	ObjectID    string
	ContentType string
	Payload     []byte
}

// TotalLen returns the number of bytes this record occupies on disk,
// from a header whose length fields were already populated (by
// DecodeHeader, or by Encode on its own copy of the record).
func (r Header) TotalLen() int64 {
	return int64(HeaderLen) + int64(r.BlockIDLength) + int64(r.ObjectIDLength) +
		int64(r.ContentTypeLength) + int64(r.PayloadLength)
}

// TotalLen returns the number of bytes rec will occupy once encoded,
// computed from its variable-length fields directly rather than from
// Header's length counters (which a freshly built Record, as returned
// by New, has not yet had populated).
func (rec Record) TotalLen() int64 {
	return int64(HeaderLen) + int64(len(rec.BlockID)) + int64(len(rec.ObjectID)) +
		int64(len(rec.ContentType)) + int64(len(rec.Payload))
}

// Encode serializes rec into a single contiguous buffer suitable for
// Slab.Append.
func Encode(rec Record) []byte {
	rec.BlockIDLength = uint16(len(rec.BlockID))
	rec.ObjectIDLength = uint16(len(rec.ObjectID))
	rec.ContentTypeLength = uint16(len(rec.ContentType))
	rec.PayloadLength = uint32(len(rec.Payload))

	buf := make([]byte, rec.Header.TotalLen())
	encodeHeader(buf[:HeaderLen], rec.Header)
	off := HeaderLen
	off += copy(buf[off:], rec.BlockID)
	off += copy(buf[off:], rec.ObjectID)
	off += copy(buf[off:], rec.ContentType)
	copy(buf[off:], rec.Payload)
	return buf
}

func encodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], magic)
	buf[4] = h.Version
	flags := uint8(0)
	if h.Tombstone {
		flags |= flagTombstone
	}
	buf[5] = flags
	buf[6] = uint8(h.HashFunction)
	buf[7] = uint8(h.Compression)
	binary.LittleEndian.PutUint16(buf[8:10], h.BlockIDLength)
	binary.LittleEndian.PutUint16(buf[10:12], h.ObjectIDLength)
	binary.LittleEndian.PutUint16(buf[12:14], h.ContentTypeLength)
	binary.LittleEndian.PutUint32(buf[14:18], h.PayloadLength)
	binary.LittleEndian.PutUint32(buf[18:22], h.UncompressedLength)
	copy(buf[22:38], h.Hash[:])
	binary.LittleEndian.PutUint64(buf[38:46], h.Generation)
	binary.LittleEndian.PutUint64(buf[46:54], h.CreationTimeMillis)
	crc := crc32.Checksum(buf[:54], castagnoli)
	binary.LittleEndian.PutUint32(buf[54:58], crc)
}

// DecodeHeader parses and validates the fixed-width header at the front
// of buf. It fails with storeerr.KindCorruption if buf is short, the
// magic doesn't match, or the header checksum fails.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, errors.Wrap(
			storeerr.New(storeerr.KindCorruption, "short record header"),
			"record.DecodeHeader")
	}
	if got := binary.LittleEndian.Uint32(buf[0:4]); got != magic {
		return Header{}, errors.Wrapf(
			storeerr.Newf(storeerr.KindCorruption, "bad record magic 0x%x", got),
			"record.DecodeHeader")
	}
	wantCRC := crc32.Checksum(buf[:54], castagnoli)
	gotCRC := binary.LittleEndian.Uint32(buf[54:58])
	if wantCRC != gotCRC {
		return Header{}, errors.Wrap(
			storeerr.New(storeerr.KindCorruption, "record header CRC mismatch"),
			"record.DecodeHeader")
	}
	h := Header{
		Version:            buf[4],
		Tombstone:          buf[5]&flagTombstone != 0,
		HashFunction:       codec.HashFunction(buf[6]),
		Compression:        codec.Compression(buf[7]),
		BlockIDLength:       binary.LittleEndian.Uint16(buf[8:10]),
		ObjectIDLength:      binary.LittleEndian.Uint16(buf[10:12]),
		ContentTypeLength:   binary.LittleEndian.Uint16(buf[12:14]),
		PayloadLength:       binary.LittleEndian.Uint32(buf[14:18]),
		UncompressedLength:  binary.LittleEndian.Uint32(buf[18:22]),
		Generation:          binary.LittleEndian.Uint64(buf[38:46]),
		CreationTimeMillis:  binary.LittleEndian.Uint64(buf[46:54]),
	}
	copy(h.Hash[:], buf[22:38])
	return h, nil
}

// Decode fully parses a record, including its variable-length tail, from
// buf (which must be exactly Header.TotalLen() bytes, as returned by a
// prior DecodeHeader on the same bytes).
func Decode(buf []byte) (Record, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return Record{}, err
	}
	want := h.TotalLen()
	if int64(len(buf)) != want {
		return Record{}, errors.Wrapf(
			storeerr.Newf(storeerr.KindCorruption, "record length mismatch: got %d want %d", len(buf), want),
			"record.Decode")
	}
	off := HeaderLen
	blockID := string(buf[off : off+int(h.BlockIDLength)])
	off += int(h.BlockIDLength)
	objectID := string(buf[off : off+int(h.ObjectIDLength)])
	off += int(h.ObjectIDLength)
	contentType := string(buf[off : off+int(h.ContentTypeLength)])
	off += int(h.ContentTypeLength)
	payload := buf[off : off+int(h.PayloadLength)]
	return Record{
		Header:      h,
		BlockID:     blockID,
		ObjectID:    objectID,
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

// Tombstone builds a deletion marker record for blockID at the given
// generation (spec §4.5.5).
func Tombstone(blockID string, generation uint64, creationTimeMillis uint64) Record {
	return Record{
		Header: Header{
			Version:            recordVersion,
			Tombstone:          true,
			Generation:         generation,
			CreationTimeMillis: creationTimeMillis,
		},
		BlockID: blockID,
	}
}

// New builds a live record header with the version field pre-filled.
func New(blockID, objectID, contentType string, payload []byte, fn codec.HashFunction, comp codec.Compression, hash codec.Digest, uncompressedLength uint32, generation uint64, creationTimeMillis uint64) Record {
	return Record{
		Header: Header{
			Version:            recordVersion,
			HashFunction:       fn,
			Compression:        comp,
			Hash:               hash,
			UncompressedLength: uncompressedLength,
			Generation:         generation,
			CreationTimeMillis: creationTimeMillis,
		},
		BlockID:     blockID,
		ObjectID:    objectID,
		ContentType: contentType,
		Payload:     payload,
	}
}
