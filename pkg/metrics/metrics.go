package metrics

import (
	"sync"
	"time"
)

// Collector gathers in-process counters and latency observations. It backs
// the /api/metrics endpoint and the scheduler's job accounting.
type Collector struct {
	counters  map[string]map[string]int64
	latencies map[string][]time.Duration
	mutex     sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]map[string]int64),
		latencies: make(map[string][]time.Duration),
	}
}

// Inc increments a counter under the given label ("" for the default series).
func (c *Collector) Inc(name, label string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if label == "" {
		label = "default"
	}
	if _, exists := c.counters[name]; !exists {
		c.counters[name] = make(map[string]int64)
	}
	c.counters[name][label]++
}

// Add increments a counter by n.
func (c *Collector) Add(name, label string, n int64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if label == "" {
		label = "default"
	}
	if _, exists := c.counters[name]; !exists {
		c.counters[name] = make(map[string]int64)
	}
	c.counters[name][label] += n
}

// ObserveLatency records a duration, keeping the most recent 100 samples.
func (c *Collector) ObserveLatency(name string, duration time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.latencies[name] = append(c.latencies[name], duration)
	if len(c.latencies[name]) > 100 {
		c.latencies[name] = c.latencies[name][len(c.latencies[name])-100:]
	}
}

// Counters returns a copy of all counter series.
func (c *Collector) Counters() map[string]map[string]int64 {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	out := make(map[string]map[string]int64, len(c.counters))
	for name, series := range c.counters {
		copied := make(map[string]int64, len(series))
		for label, v := range series {
			copied[label] = v
		}
		out[name] = copied
	}
	return out
}

// AverageLatency returns the mean of recorded samples for name.
func (c *Collector) AverageLatency(name string) time.Duration {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	samples := c.latencies[name]
	if len(samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range samples {
		total += d
	}
	return total / time.Duration(len(samples))
}
