package slabset

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Elzor/vstorage/internal/codec"
	"github.com/Elzor/vstorage/internal/record"
)

func encodedRecord(t *testing.T, blockID string, payload []byte) []byte {
	t.Helper()
	digest, err := codec.Hash(payload, codec.HashMD5)
	require.NoError(t, err)
	rec := record.New(blockID, "", "", payload, codec.HashMD5, codec.CompressionNone, digest, uint32(len(payload)), 1, 1)
	return record.Encode(rec)
}

func TestOpenCreatesActiveWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	set, err := Open(dir, 4096)
	require.NoError(t, err)
	require.NotNil(t, set.Active())
	require.Equal(t, uint64(0), set.Active().ID)
}

func TestSealActiveAndPromote(t *testing.T) {
	dir := t.TempDir()
	set, err := Open(dir, 4096)
	require.NoError(t, err)

	first := set.Active()
	fresh, err := set.SealActiveAndPromote()
	require.NoError(t, err)
	require.True(t, first.Sealed())
	require.Equal(t, fresh, set.Active())
	require.NotEqual(t, first.ID, fresh.ID)

	sealed := set.SealedSlabs()
	require.Len(t, sealed, 1)
	require.Equal(t, first.ID, sealed[0].ID)
}

func TestReopenPromotesHighestNonFullSlab(t *testing.T) {
	dir := t.TempDir()
	set, err := Open(dir, 4096)
	require.NoError(t, err)
	buf := encodedRecord(t, "b1", []byte("hello"))
	_, err = set.Active().Append("b1", false, buf)
	require.NoError(t, err)
	require.NoError(t, set.Active().Flush())
	require.NoError(t, set.Active().Close())

	reopened, err := Open(dir, 4096)
	require.NoError(t, err)
	require.Equal(t, uint64(0), reopened.Active().ID)
	require.Len(t, reopened.Active().Records(), 1)
}

func TestPickVictimRespectsThresholdAndAge(t *testing.T) {
	dir := t.TempDir()
	set, err := Open(dir, 4096)
	require.NoError(t, err)

	buf1 := encodedRecord(t, "b1", []byte("hello"))
	buf2 := encodedRecord(t, "b2", []byte("world"))
	off1, err := set.Active().Append("b1", false, buf1)
	require.NoError(t, err)
	_, err = set.Active().Append("b2", false, buf2)
	require.NoError(t, err)
	require.NoError(t, set.Active().Flush())

	victimSlab := set.Active()
	_, err = set.SealActiveAndPromote()
	require.NoError(t, err)

	isLive := func(blockID string, offset int64) bool {
		return blockID == "b1" && offset == off1
	}

	// minAge not yet elapsed: no victim.
	_, ok := set.PickVictim(0.9, time.Hour, time.Now(), isLive)
	require.False(t, ok)

	// Age requirement satisfied, ratio below threshold: victim found.
	v, ok := set.PickVictim(0.9, 0, time.Now(), isLive)
	require.True(t, ok)
	require.Equal(t, victimSlab.ID, v.ID)

	// Ratio above threshold: no victim.
	_, ok = set.PickVictim(0.01, 0, time.Now(), isLive)
	require.False(t, ok)
}

func TestRetireUnlinksSlab(t *testing.T) {
	dir := t.TempDir()
	set, err := Open(dir, 4096)
	require.NoError(t, err)
	old := set.Active()
	_, err = set.SealActiveAndPromote()
	require.NoError(t, err)

	require.NoError(t, set.Retire(old.ID))
	_, ok := set.Get(old.ID)
	require.False(t, ok)
}
