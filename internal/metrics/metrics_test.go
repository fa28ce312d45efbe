package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestObserveRequestIncrementsCounter(t *testing.T) {
	r := New()
	r.ObserveRequest("/block/{id}", "GET", 200)
	r.ObserveRequest("/block/{id}", "GET", 404)
	r.ObserveRequest("/block/{id}", "GET", 200)

	mfs, err := r.Gatherer.Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(3), total)
}

func TestStatusLabelBuckets(t *testing.T) {
	require.Equal(t, "2xx", statusLabel(204))
	require.Equal(t, "3xx", statusLabel(302))
	require.Equal(t, "4xx", statusLabel(404))
	require.Equal(t, "5xx", statusLabel(500))
}

func TestSetStorageUpdatesGauges(t *testing.T) {
	r := New()
	r.SetStorage(StorageSnapshot{
		Objects:    42,
		AvailBytes: 1024,
		GCBytes:    512,
		MoveBytes:  256,
		InitBytes:  2048,
	})

	mfs, err := r.Gatherer.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetGauge() != nil {
				values[mf.GetName()] = m.GetGauge().GetValue()
			}
		}
	}
	require.Equal(t, float64(42), values["vstorage_storage_objects"])
	require.Equal(t, float64(1024), values["vstorage_storage_avail_bytes"])
	require.Equal(t, float64(512), values["vstorage_storage_gc_bytes"])
}

func TestCompactionLatencyPercentile(t *testing.T) {
	r := New()
	for _, ms := range []int64{10, 20, 30, 1000} {
		r.ObserveCompactionMillis(ms)
	}
	p100 := r.CompactionLatencyPercentile(100)
	require.InDelta(t, 1000, p100, 50)
}
