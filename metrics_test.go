package raidline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsCacheCounters(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveCacheHit()
	obs.ObserveCacheHit()
	obs.ObserveCacheMiss()
	obs.ObserveEviction()

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.CacheHits)
	require.Equal(t, uint64(1), snap.CacheMisses)
	require.Equal(t, uint64(1), snap.CacheEvictions)
	require.InDelta(t, 2.0/3.0, snap.CacheHitRatio, 0.001)
}

func TestMetricsBusCalls(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveBusCall("READ", 1_000_000, true)
	obs.ObserveBusCall("WRITE", 3_000_000, true)
	obs.ObserveBusCall("READ", 2_000_000, false)

	snap := m.Snapshot()
	require.Equal(t, uint64(3), snap.BusCalls)
	require.Equal(t, uint64(1), snap.BusErrors)
	require.Equal(t, uint64(2_000_000), snap.AvgBusLatencyNs)
}

func TestMetricsRecovery(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)

	obs.ObserveRecovery(2, 5)
	obs.ObserveRecovery(4, 3)

	snap := m.Snapshot()
	require.Equal(t, uint64(2), snap.DisksRecovered)
	require.Equal(t, uint64(8), snap.BlocksRebuilt)
}

func TestMetricsUptimeStopsAdvancingAfterStop(t *testing.T) {
	m := NewMetrics()
	time.Sleep(5 * time.Millisecond)
	m.Stop()

	snap1 := m.Snapshot()
	time.Sleep(5 * time.Millisecond)
	snap2 := m.Snapshot()

	require.Equal(t, snap1.UptimeNs, snap2.UptimeNs)
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsObserver(m)
	obs.ObserveCacheHit()
	obs.ObserveBusCall("READ", 1000, true)

	m.Reset()

	snap := m.Snapshot()
	require.Zero(t, snap.CacheHits)
	require.Zero(t, snap.BusCalls)
}

func TestNoOpObserverDoesNotPanic(t *testing.T) {
	var obs NoOpObserver
	obs.ObserveCacheHit()
	obs.ObserveCacheMiss()
	obs.ObserveEviction()
	obs.ObserveBusCall("READ", 100, true)
	obs.ObserveRecovery(0, 0)
}
