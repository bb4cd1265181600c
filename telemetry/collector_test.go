package telemetry

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingStats struct {
	sessionCalls atomic.Int32
	poolCalls    atomic.Int32
}

func (c *countingStats) SessionStats() (int, int) {
	c.sessionCalls.Add(1)
	return 2, 1
}

func (c *countingStats) PoolStats() (int, int) {
	c.poolCalls.Add(1)
	return 4, 1
}

func TestMetricsCollectorPolls(t *testing.T) {
	stats := &countingStats{}
	mc := NewMetricsCollector(stats, stats, 5*time.Millisecond)
	mc.Start()

	assert.Eventually(t, func() bool {
		return stats.sessionCalls.Load() >= 2 && stats.poolCalls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	mc.Stop()
	calls := stats.sessionCalls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, stats.sessionCalls.Load())
}

func TestMetricsCollectorNilProviders(t *testing.T) {
	mc := NewMetricsCollector(nil, nil, time.Millisecond)
	mc.Start()
	mc.Stop()
}

func TestNoopWhenDisabled(t *testing.T) {
	assert.Nil(t, GetMetricsHandler())

	c := NewCounterVec("test_total", "test", []string{"kind"})
	c.With("a").Inc()
	g := NewGauge("test_gauge", "test")
	g.Set(3)
}
