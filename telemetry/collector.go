package telemetry

import (
	"sync"
	"time"
)

// StatsProvider interface for components that provide stats
type StatsProvider interface {
	SessionStats() (active, running int)
}

// EngineStatsProvider reports connection pool usage
type EngineStatsProvider interface {
	PoolStats() (open, inUse int)
}

// MetricsCollector periodically collects stats and updates telemetry gauges
type MetricsCollector struct {
	sessions StatsProvider
	engine   EngineStatsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(sessions StatsProvider, engine EngineStatsProvider, interval time.Duration) *MetricsCollector {
	return &MetricsCollector{
		sessions: sessions,
		engine:   engine,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic collection
func (mc *MetricsCollector) Start() {
	mc.wg.Add(1)
	go mc.collectLoop()
}

// Stop stops the collector
func (mc *MetricsCollector) Stop() {
	close(mc.stopCh)
	mc.wg.Wait()
}

func (mc *MetricsCollector) collectLoop() {
	defer mc.wg.Done()

	ticker := time.NewTicker(mc.interval)
	defer ticker.Stop()

	mc.collect()

	for {
		select {
		case <-ticker.C:
			mc.collect()
		case <-mc.stopCh:
			return
		}
	}
}

func (mc *MetricsCollector) collect() {
	if mc.sessions != nil {
		active, running := mc.sessions.SessionStats()
		SessionsActive.Set(float64(active))
		QueriesRunning.Set(float64(running))
	}
	if mc.engine != nil {
		open, inUse := mc.engine.PoolStats()
		EngineOpenConnections.Set(float64(open))
		EngineConnectionsInUse.Set(float64(inUse))
	}
}
