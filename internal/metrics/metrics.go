// Package metrics exposes the node's Prometheus-format counters and
// gauges (spec §6's `GET /metrics`) plus a compaction-latency
// histogram, grounded on the teacher's prometheus/client_golang and
// HdrHistogram/hdrhistogram-go dependencies.
package metrics

import (
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric this node exposes.
type Registry struct {
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	HTTPRequestsTotal *prometheus.CounterVec

	storageObjects    prometheus.Gauge
	storageAvailBytes prometheus.Gauge
	storageGCBytes    prometheus.Gauge
	storageMoveBytes  prometheus.Gauge
	storageInitBytes  prometheus.Gauge

	compactMu   sync.Mutex
	compactHist *hdrhistogram.Histogram
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		Registerer: reg,
		Gatherer:   reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests served, by route and status code.",
		}, []string{"route", "method", "status"}),
		storageObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vstorage_storage_objects",
			Help: "Current number of live blocks in the index.",
		}),
		storageAvailBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vstorage_storage_avail_bytes",
			Help: "Slab capacity not yet consumed by written payloads; space from deleted or overwritten blocks returns only after compaction.",
		}),
		storageGCBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vstorage_storage_gc_bytes",
			Help: "Cumulative uncompressed bytes freed by delete or overwrite.",
		}),
		storageMoveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vstorage_storage_move_bytes",
			Help: "Cumulative uncompressed bytes copied by the compactor.",
		}),
		storageInitBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vstorage_storage_init_bytes",
			Help: "Slab capacity configured at startup.",
		}),
		compactHist: hdrhistogram.New(1, 60_000, 3), // milliseconds, 1ms..60s
	}

	reg.MustRegister(
		r.HTTPRequestsTotal,
		r.storageObjects,
		r.storageAvailBytes,
		r.storageGCBytes,
		r.storageMoveBytes,
		r.storageInitBytes,
	)
	return r
}

// ObserveRequest increments http_requests_total for one completed request.
func (r *Registry) ObserveRequest(route, method string, status int) {
	r.HTTPRequestsTotal.WithLabelValues(route, method, statusLabel(status)).Inc()
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// StorageSnapshot is the subset of engine.Stats the gauges mirror.
type StorageSnapshot struct {
	Objects    int
	AvailBytes int64
	GCBytes    int64
	MoveBytes  int64
	InitBytes  int64
}

// SetStorage updates every storage gauge from a fresh engine snapshot.
func (r *Registry) SetStorage(s StorageSnapshot) {
	r.storageObjects.Set(float64(s.Objects))
	r.storageAvailBytes.Set(float64(s.AvailBytes))
	r.storageGCBytes.Set(float64(s.GCBytes))
	r.storageMoveBytes.Set(float64(s.MoveBytes))
	r.storageInitBytes.Set(float64(s.InitBytes))
}

// ObserveCompactionMillis records one compaction cycle's wall-clock
// duration in the HdrHistogram.
func (r *Registry) ObserveCompactionMillis(ms int64) {
	r.compactMu.Lock()
	defer r.compactMu.Unlock()
	_ = r.compactHist.RecordValue(ms)
}

// CompactionLatencyPercentile returns the given percentile (0-100) of
// recorded compaction cycle durations, in milliseconds.
func (r *Registry) CompactionLatencyPercentile(p float64) int64 {
	r.compactMu.Lock()
	defer r.compactMu.Unlock()
	return r.compactHist.ValueAtQuantile(p)
}
