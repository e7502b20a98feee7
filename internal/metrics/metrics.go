// Package metrics exposes delivery counters and handler latency in Prometheus
// text exposition format, without pulling in the heavy client_golang
// dependency.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// latencyBuckets are the upper bounds, in seconds, of the handler latency
// histogram. Completions routinely take several seconds.
var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Collector aggregates delivery outcomes and latency for one process.
type Collector struct {
	startTime time.Time

	mu       sync.Mutex
	outcomes map[string]*atomic.Int64

	latCount   atomic.Int64
	latSumMu   sync.Mutex
	latSum     float64
	latBuckets []atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		outcomes:   make(map[string]*atomic.Int64),
		latBuckets: make([]atomic.Int64, len(latencyBuckets)),
	}
}

// RecordDelivery counts one handled delivery by outcome and observes its
// latency.
func (c *Collector) RecordDelivery(outcome string, elapsed time.Duration) {
	c.counter(outcome).Add(1)

	secs := elapsed.Seconds()
	c.latCount.Add(1)
	c.latSumMu.Lock()
	c.latSum += secs
	c.latSumMu.Unlock()
	for i, le := range latencyBuckets {
		if secs <= le {
			c.latBuckets[i].Add(1)
		}
	}
}

func (c *Collector) counter(outcome string) *atomic.Int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctr, ok := c.outcomes[outcome]
	if !ok {
		ctr = &atomic.Int64{}
		c.outcomes[outcome] = ctr
	}
	return ctr
}

// Deliveries returns the count recorded for an outcome.
func (c *Collector) Deliveries(outcome string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctr, ok := c.outcomes[outcome]; ok {
		return ctr.Load()
	}
	return 0
}

// Handler renders the metrics in Prometheus text format.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		fmt.Fprintf(&sb, "# HELP linebridge_uptime_seconds Time since start in seconds\n")
		fmt.Fprintf(&sb, "# TYPE linebridge_uptime_seconds gauge\n")
		fmt.Fprintf(&sb, "linebridge_uptime_seconds %d\n", int64(time.Since(c.startTime).Seconds()))

		c.mu.Lock()
		outcomes := make([]string, 0, len(c.outcomes))
		for o := range c.outcomes {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)
		fmt.Fprintf(&sb, "# HELP linebridge_deliveries_total Handled webhook deliveries by outcome\n")
		fmt.Fprintf(&sb, "# TYPE linebridge_deliveries_total counter\n")
		for _, o := range outcomes {
			fmt.Fprintf(&sb, "linebridge_deliveries_total{outcome=%q} %d\n", o, c.outcomes[o].Load())
		}
		c.mu.Unlock()

		fmt.Fprintf(&sb, "# HELP linebridge_handler_seconds Webhook handler latency\n")
		fmt.Fprintf(&sb, "# TYPE linebridge_handler_seconds histogram\n")
		for i, le := range latencyBuckets {
			fmt.Fprintf(&sb, "linebridge_handler_seconds_bucket{le=\"%g\"} %d\n", le, c.latBuckets[i].Load())
		}
		fmt.Fprintf(&sb, "linebridge_handler_seconds_bucket{le=\"+Inf\"} %d\n", c.latCount.Load())
		c.latSumMu.Lock()
		fmt.Fprintf(&sb, "linebridge_handler_seconds_sum %f\n", c.latSum)
		c.latSumMu.Unlock()
		fmt.Fprintf(&sb, "linebridge_handler_seconds_count %d\n", c.latCount.Load())

		w.Write([]byte(sb.String()))
	}
}
