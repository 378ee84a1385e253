package raidline

import (
	"sync/atomic"
	"time"
)

// Metrics tracks performance and operational statistics for a Driver,
// fed by an Observer wired into the cache, bus and recovery engine
// (spec §4.2, §4.5's "aggregate counters").
type Metrics struct {
	CacheHits      atomic.Uint64
	CacheMisses    atomic.Uint64
	CacheEvictions atomic.Uint64

	BusCalls      atomic.Uint64
	BusErrors     atomic.Uint64
	BusLatencyNs  atomic.Uint64

	DisksRecovered  atomic.Uint64
	BlocksRebuilt   atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new Metrics instance with its start time set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordCacheHit()      { m.CacheHits.Add(1) }
func (m *Metrics) recordCacheMiss()     { m.CacheMisses.Add(1) }
func (m *Metrics) recordCacheEviction() { m.CacheEvictions.Add(1) }

func (m *Metrics) recordBusCall(latencyNs uint64, success bool) {
	m.BusCalls.Add(1)
	m.BusLatencyNs.Add(latencyNs)
	if !success {
		m.BusErrors.Add(1)
	}
}

func (m *Metrics) recordRecovery(blocksRebuilt int) {
	m.DisksRecovered.Add(1)
	m.BlocksRebuilt.Add(uint64(blocksRebuilt))
}

// Stop marks the metrics instance as stopped; Snapshot uses this to
// compute a final uptime rather than one that keeps advancing.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time, non-atomic view of Metrics.
type MetricsSnapshot struct {
	CacheHits      uint64
	CacheMisses    uint64
	CacheEvictions uint64
	CacheHitRatio  float64

	BusCalls       uint64
	BusErrors      uint64
	AvgBusLatencyNs uint64

	DisksRecovered uint64
	BlocksRebuilt  uint64

	UptimeNs uint64
}

// Snapshot creates a point-in-time snapshot of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	hits := m.CacheHits.Load()
	misses := m.CacheMisses.Load()
	calls := m.BusCalls.Load()

	snap := MetricsSnapshot{
		CacheHits:      hits,
		CacheMisses:    misses,
		CacheEvictions: m.CacheEvictions.Load(),
		BusCalls:       calls,
		BusErrors:      m.BusErrors.Load(),
		DisksRecovered: m.DisksRecovered.Load(),
		BlocksRebuilt:  m.BlocksRebuilt.Load(),
	}

	if gets := hits + misses; gets > 0 {
		snap.CacheHitRatio = float64(hits) / float64(gets)
	}
	if calls > 0 {
		snap.AvgBusLatencyNs = m.BusLatencyNs.Load() / calls
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	return snap
}

// Reset zeroes every counter and restarts the uptime clock. Useful in
// tests that want a clean Metrics between scenarios.
func (m *Metrics) Reset() {
	m.CacheHits.Store(0)
	m.CacheMisses.Store(0)
	m.CacheEvictions.Store(0)
	m.BusCalls.Store(0)
	m.BusErrors.Store(0)
	m.BusLatencyNs.Store(0)
	m.DisksRecovered.Store(0)
	m.BlocksRebuilt.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// NoOpObserver discards every event. It is the default when a Driver is
// opened without an Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveCacheHit()                                     {}
func (NoOpObserver) ObserveCacheMiss()                                    {}
func (NoOpObserver) ObserveEviction()                                     {}
func (NoOpObserver) ObserveBusCall(op string, latencyNs uint64, success bool) {}
func (NoOpObserver) ObserveRecovery(disk uint8, blocksRebuilt int)        {}

// MetricsObserver implements Observer by recording every event into a
// Metrics instance.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an Observer that records into m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveCacheHit()  { o.metrics.recordCacheHit() }
func (o *MetricsObserver) ObserveCacheMiss() { o.metrics.recordCacheMiss() }
func (o *MetricsObserver) ObserveEviction()  { o.metrics.recordCacheEviction() }

func (o *MetricsObserver) ObserveBusCall(op string, latencyNs uint64, success bool) {
	o.metrics.recordBusCall(latencyNs, success)
}

func (o *MetricsObserver) ObserveRecovery(disk uint8, blocksRebuilt int) {
	o.metrics.recordRecovery(blocksRebuilt)
}

var (
	_ Observer = (*MetricsObserver)(nil)
	_ Observer = NoOpObserver{}
)
