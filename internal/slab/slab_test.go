package slab

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/record"
)

func encodedRecord(t *testing.T, blockID string, payload []byte, generation uint64) []byte {
	t.Helper()
	digest, err := codec.Hash(payload, codec.HashMD5)
	require.NoError(t, err)
	rec := record.New(blockID, "", "text/plain", payload, codec.HashMD5, codec.CompressionNone, digest, uint32(len(payload)), generation, 1)
	return record.Encode(rec)
}

func TestCreateAppendReadFlush(t *testing.T) {
	dir := t.TempDir()
	sl, err := Create(filepath.Join(dir, "slab-0.dat"), 0, 4096)
	require.NoError(t, err)
	defer sl.Close()

	buf := encodedRecord(t, "b1", []byte("hello"), 1)
	offset, err := sl.Append("b1", false, buf)
	require.NoError(t, err)
	require.NoError(t, sl.Flush())

	got, err := sl.Read(offset, int64(len(buf)))
	require.NoError(t, err)
	require.Equal(t, buf, got)
}

func TestAppendFullReturnsFull(t *testing.T) {
	dir := t.TempDir()
	sl, err := Create(filepath.Join(dir, "slab-0.dat"), 0, int64(headerLen+10))
	require.NoError(t, err)
	defer sl.Close()

	buf := encodedRecord(t, "b1", []byte("this payload is definitely too big"), 1)
	_, err = sl.Append("b1", false, buf)
	require.ErrorIs(t, err, Full)
}

func TestSealRejectsAppend(t *testing.T) {
	dir := t.TempDir()
	sl, err := Create(filepath.Join(dir, "slab-0.dat"), 0, 4096)
	require.NoError(t, err)
	defer sl.Close()

	sl.Seal()
	require.True(t, sl.Sealed())
	_, err = sl.Append("b1", false, encodedRecord(t, "b1", []byte("x"), 1))
	require.Error(t, err)
}

func TestOpenReplaysRecordsAndRecoversTruncation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slab-0.dat")
	sl, err := Create(path, 0, 4096)
	require.NoError(t, err)

	buf1 := encodedRecord(t, "b1", []byte("hello"), 1)
	buf2 := encodedRecord(t, "b2", []byte("world"), 1)
	_, err = sl.Append("b1", false, buf1)
	require.NoError(t, err)
	_, err = sl.Append("b2", false, buf2)
	require.NoError(t, err)
	require.NoError(t, sl.Flush())
	wm := sl.Watermark()
	require.NoError(t, sl.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	require.Len(t, reopened.Records(), 2)
	require.Equal(t, wm, reopened.Watermark())
	require.NoError(t, reopened.Close())

	// Corrupt the tail by flipping a bit in the second record's header.
	secondOffset := wm - int64(len(buf2))
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{buf2[5] ^ 0x01}, secondOffset+5)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	recovered, err := Open(path)
	require.NoError(t, err)
	require.Len(t, recovered.Records(), 1)
	require.Equal(t, secondOffset, recovered.Watermark())
	require.NoError(t, recovered.Close())
}

func TestLiveRatio(t *testing.T) {
	dir := t.TempDir()
	sl, err := Create(filepath.Join(dir, "slab-0.dat"), 0, 4096)
	require.NoError(t, err)
	defer sl.Close()

	buf1 := encodedRecord(t, "b1", []byte("hello"), 1)
	buf2 := encodedRecord(t, "b2", []byte("world"), 1)
	off1, err := sl.Append("b1", false, buf1)
	require.NoError(t, err)
	_, err = sl.Append("b2", false, buf2)
	require.NoError(t, err)
	require.NoError(t, sl.Flush())

	ratio := sl.LiveRatio(func(blockID string, offset int64) bool {
		return blockID == "b1" && offset == off1
	})
	require.InDelta(t, float64(len(buf1))/float64(sl.Watermark()), ratio, 0.0001)
}

func TestCreatedAtPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slab-0.dat")
	sl, err := Create(path, 0, 4096)
	require.NoError(t, err)
	createdAt := sl.CreatedAt()
	require.NoError(t, sl.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, createdAt, reopened.CreatedAt())
}
