package record

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Elzor/vstorage/internal/codec"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	digest, err := codec.Hash([]byte("payload"), codec.HashMD5)
	require.NoError(t, err)

	rec := New("block-1", "obj-1", "text/plain", []byte("payload"), codec.HashMD5, codec.CompressionNone, digest, 7, 1, 1234)
	buf := Encode(rec)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, rec.BlockID, got.BlockID)
	require.Equal(t, rec.ObjectID, got.ObjectID)
	require.Equal(t, rec.ContentType, got.ContentType)
	require.Equal(t, rec.Payload, got.Payload)
	require.Equal(t, rec.Hash, got.Hash)
	require.Equal(t, rec.Generation, got.Generation)
	require.False(t, got.Tombstone)
}

func TestTombstoneRoundTrip(t *testing.T) {
	tomb := Tombstone("block-1", 3, 999)
	buf := Encode(tomb)

	got, err := Decode(buf)
	require.NoError(t, err)
	require.True(t, got.Tombstone)
	require.Equal(t, uint64(3), got.Generation)
	require.Equal(t, "block-1", got.BlockID)
}

func TestDecodeHeaderRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderLen)
	_, err := DecodeHeader(buf)
	require.Error(t, err)
}

func TestDecodeHeaderRejectsShortBuffer(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderLen-1))
	require.Error(t, err)
}

func TestDecodeHeaderRejectsBadCRC(t *testing.T) {
	rec := New("b", "", "", []byte("x"), codec.HashMD5, codec.CompressionNone, codec.Digest{}, 1, 1, 1)
	buf := Encode(rec)
	buf[HeaderLen-1] ^= 0xFF // corrupt header CRC
	_, err := DecodeHeader(buf[:HeaderLen])
	require.Error(t, err)
}

func TestTotalLenMatchesEncodedLength(t *testing.T) {
	rec := New("abc", "obj", "type", []byte("1234567890"), codec.HashMD5, codec.CompressionNone, codec.Digest{}, 10, 1, 1)
	buf := Encode(rec)
	require.EqualValues(t, len(buf), rec.TotalLen())
}
