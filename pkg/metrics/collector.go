package metrics

import "time"

// BufferPoolStats is a point-in-time snapshot a buffer pool can report to
// the collector without this package importing pkg/buffer directly.
type BufferPoolStats struct {
	DirtyPages int
}

// LockTableStats is a point-in-time snapshot of the main lock table.
type LockTableStats struct {
	Queues int
}

// LogStats is a point-in-time snapshot of the log manager's partition set.
type LogStats struct {
	LivePartitions int
}

// StatsSource is implemented by pkg/engine's handle, letting the collector
// poll every long-lived component without creating an import cycle back
// into this package.
type StatsSource interface {
	BufferPoolStats() BufferPoolStats
	LockTableStats() LockTableStats
	LogStats() LogStats
}

// Collector polls a StatsSource on an interval and republishes its values
// as gauges, the way the rest of the engine's periodic-sweep components
// (cleaner, checkpoint thread) run a single background goroutine gated by
// a stop channel.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(source StatsSource) *Collector {
	return &Collector{
		source: source,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics every 15 seconds.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.source == nil {
		return
	}

	bp := c.source.BufferPoolStats()
	BufferPoolDirtyPages.Set(float64(bp.DirtyPages))

	lt := c.source.LockTableStats()
	LockTableQueues.Set(float64(lt.Queues))

	log := c.source.LogStats()
	LogPartitionsTotal.Set(float64(log.LivePartitions))
}
