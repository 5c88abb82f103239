package metrics

import (
	"context"
	"time"

	"github.com/learnizone/enrollcore/pkg/types"
)

// StatusCounter counts enrollment records by status
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[types.EnrollmentStatus]int, error)
}

// Collector periodically refreshes the enrollment gauges
type Collector struct {
	source   StatusCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatusCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
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

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	counts, err := c.source.CountByStatus(ctx)
	if err != nil {
		return
	}

	// Statuses with no records still report zero
	for _, status := range types.AllStatuses {
		EnrollmentsTotal.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}
