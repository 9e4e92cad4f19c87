package notestore

import (
	"time"

	"github.com/cuemby/noteforge/pkg/metrics"
)

// HitRatioCollector periodically publishes the note storage manager's
// cumulative cache-hit ratio to Prometheus.
type HitRatioCollector struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewHitRatioCollector returns a collector for mgr.
func NewHitRatioCollector(mgr *Manager) *HitRatioCollector {
	return &HitRatioCollector{
		manager: mgr,
		stopCh:  make(chan struct{}),
	}
}

// Start begins collecting on a 15s interval, matching the cadence the
// teacher's manager metrics collector uses.
func (c *HitRatioCollector) Start() {
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

// Stop halts collection.
func (c *HitRatioCollector) Stop() {
	close(c.stopCh)
}

func (c *HitRatioCollector) collect() {
	metrics.CacheHitRatio.Set(c.manager.HitRatio())
}
