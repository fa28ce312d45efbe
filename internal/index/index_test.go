package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Elzor/vstorage/internal/storeerr"
)

func TestInsertNewRejectsDuplicate(t *testing.T) {
	idx := New()
	require.NoError(t, idx.InsertNew("b1", Entry{Generation: 1}))
	err := idx.InsertNew("b1", Entry{Generation: 2})
	require.ErrorIs(t, err, storeerr.Exists)
}

func TestUpsertReturnsPrevious(t *testing.T) {
	idx := New()
	_, hadPrev := idx.Upsert("b1", Entry{Generation: 1})
	require.False(t, hadPrev)

	prev, hadPrev := idx.Upsert("b1", Entry{Generation: 2})
	require.True(t, hadPrev)
	require.Equal(t, uint64(1), prev.Generation)
}

func TestDeleteReturnsPreviousAndRemoves(t *testing.T) {
	idx := New()
	idx.Upsert("b1", Entry{Generation: 1})
	prev, ok := idx.Delete("b1")
	require.True(t, ok)
	require.Equal(t, uint64(1), prev.Generation)

	_, ok = idx.Get("b1")
	require.False(t, ok)

	_, ok = idx.Delete("b1")
	require.False(t, ok)
}

func TestCompareAndRelocate(t *testing.T) {
	idx := New()
	idx.Upsert("b1", Entry{SlabID: 1, RecordOffset: 100})

	ok := idx.CompareAndRelocate("b1", 1, 100, 2, 200)
	require.True(t, ok)
	e, _ := idx.Get("b1")
	require.Equal(t, uint64(2), e.SlabID)
	require.EqualValues(t, 200, e.RecordOffset)

	// Stale from/offset: fails.
	ok = idx.CompareAndRelocate("b1", 1, 100, 3, 300)
	require.False(t, ok)
}

func TestLenAndRange(t *testing.T) {
	idx := New()
	idx.Upsert("b1", Entry{Generation: 1})
	idx.Upsert("b2", Entry{Generation: 1})
	require.Equal(t, 2, idx.Len())

	seen := map[string]bool{}
	idx.Range(func(blockID string, e Entry) { seen[blockID] = true })
	require.Len(t, seen, 2)
}

func TestConcurrentAccessAcrossShards(t *testing.T) {
	idx := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			idx.Upsert(id, Entry{Generation: uint64(i)})
			idx.Get(id)
		}(i)
	}
	wg.Wait()
}
