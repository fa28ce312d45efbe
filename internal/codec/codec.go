// Package codec implements the block store's content-integrity hashing
// and payload compression (spec §4.1). Compression is advisory: the
// engine may ignore caller intent when it would be counterproductive.
package codec

import (
	"bytes"
	"crypto/md5"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/pierrec/lz4/v4"

	"github.com/Elzor/vstorage/internal/storeerr"
)

// HashFunction is the tagged hash-function discriminant carried in a
// record header. MD5 is the only currently defined value.
type HashFunction uint8

const (
	HashMD5 HashFunction = 0
)

// Digest is a fixed-size content hash.
type Digest [md5.Size]byte

// Hash computes the digest of b under fn. It fails with
// storeerr.KindUnsupportedHash if fn is not recognized.
func Hash(b []byte, fn HashFunction) (Digest, error) {
	if fn != HashMD5 {
		return Digest{}, errors.Wrapf(
			storeerr.Newf(storeerr.KindUnsupportedHash, "hash function %d", fn),
			"codec.Hash")
	}
	return md5.Sum(b), nil
}

// Compression is the compression codec tag carried in a record header.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
)

// ParseCompression maps a compression name (the HTTP v-compress header,
// or the default_compression config option) onto a Compression tag. The
// RPC WriteOptions.compress field is a bool and is mapped in rpcapi
// instead. Unrecognized values fail with storeerr.KindUnsupportedCompression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, errors.Wrapf(
			storeerr.Newf(storeerr.KindUnsupportedCompression, "compression %q", s),
			"codec.ParseCompression")
	}
}

func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Compress encodes b under the requested codec. For lz4, if the
// compressed output is not smaller than the input, the original bytes
// are returned with the effective codec downgraded to none — compression
// here is advisory, never a contract with the caller.
func Compress(b []byte, want Compression) (out []byte, effective Compression, err error) {
	switch want {
	case CompressionNone:
		return b, CompressionNone, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(b); err != nil {
			return nil, 0, errors.Wrap(err, "codec.Compress: lz4 write")
		}
		if err := w.Close(); err != nil {
			return nil, 0, errors.Wrap(err, "codec.Compress: lz4 close")
		}
		if buf.Len() >= len(b) {
			return b, CompressionNone, nil
		}
		return buf.Bytes(), CompressionLZ4, nil
	default:
		return nil, 0, errors.Wrapf(
			storeerr.Newf(storeerr.KindUnsupportedCompression, "compression tag %d", want),
			"codec.Compress")
	}
}

// Decompress reverses Compress. It fails with storeerr.KindCorruption if
// the decoded length does not match uncompressedLength or the decoder
// rejects the stream.
func Decompress(b []byte, codec Compression, uncompressedLength int) ([]byte, error) {
	switch codec {
	case CompressionNone:
		if len(b) != uncompressedLength {
			return nil, errors.Wrapf(
				storeerr.Newf(storeerr.KindCorruption,
					"uncompressed length mismatch: got %d want %d", len(b), uncompressedLength),
				"codec.Decompress")
		}
		return b, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(b))
		out := make([]byte, uncompressedLength)
		n, err := io.ReadFull(r, out)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(
				storeerr.Newf(storeerr.KindCorruption, "lz4 decode: %v", err),
				"codec.Decompress")
		}
		if n != uncompressedLength {
			return nil, errors.Wrapf(
				storeerr.Newf(storeerr.KindCorruption,
					"decompressed length mismatch: got %d want %d", n, uncompressedLength),
				"codec.Decompress")
		}
		return out, nil
	default:
		return nil, errors.Wrapf(
			storeerr.Newf(storeerr.KindUnsupportedCompression, "compression tag %d", codec),
			"codec.Decompress")
	}
}
