package metrics

import (
	"sync"
	"time"
)

// Health status values.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// Error rate thresholds for the health verdict.
const (
	degradedThreshold  = 0.1
	unhealthyThreshold = 0.5
)

// ServiceHealth is the derived health object served on /health.
type ServiceHealth struct {
	Status               string     `json:"status"`
	Uptime               string     `json:"uptime"`
	UptimeSeconds        float64    `json:"uptimeSeconds"`
	LastProcessedMessage *time.Time `json:"lastProcessedMessage,omitempty"`
	ErrorRate            float64    `json:"errorRate"`
	ProcessedMessages    int64      `json:"processedMessages"`
	FailedMessages       int64      `json:"failedMessages"`
	RetryCount           int64      `json:"retryCount"`
}

// Collector aggregates observations in memory and derives ServiceHealth.
// It optionally forwards every observation to further sinks.
type Collector struct {
	mu            sync.Mutex
	counters      map[string]float64
	gauges        map[string]float64
	timings       map[string]timing
	started       time.Time
	lastProcessed time.Time
	now           func() time.Time
	next          Sink
}

type timing struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// NewCollector returns a Collector that forwards to the given sinks.
func NewCollector(forward ...Sink) *Collector {
	c := &Collector{
		counters: make(map[string]float64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]timing),
		now:      time.Now,
	}
	c.started = c.now()
	if len(forward) > 0 {
		c.next = Multi(forward)
	}
	return c
}

// IncrementCounter implements Sink.
func (c *Collector) IncrementCounter(name string, labels Labels) {
	c.mu.Lock()
	c.counters[key(name, labels)]++
	if name == MessagesProcessed {
		c.lastProcessed = c.now()
	}
	c.mu.Unlock()

	if c.next != nil {
		c.next.IncrementCounter(name, labels)
	}
}

// SetGauge implements Sink.
func (c *Collector) SetGauge(name string, value float64, labels Labels) {
	c.mu.Lock()
	c.gauges[key(name, labels)] = value
	c.mu.Unlock()

	if c.next != nil {
		c.next.SetGauge(name, value, labels)
	}
}

// RecordTiming implements Sink.
func (c *Collector) RecordTiming(name string, d time.Duration, labels Labels) {
	c.mu.Lock()
	k := key(name, labels)
	t := c.timings[k]
	t.Count++
	t.Total += d
	if d > t.Max {
		t.Max = d
	}
	c.timings[k] = t
	c.mu.Unlock()

	if c.next != nil {
		c.next.RecordTiming(name, d, labels)
	}
}

// Counter returns the current value of a counter.
func (c *Collector) Counter(name string, labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key(name, labels)]
}

// Gauge returns the current value of a gauge.
func (c *Collector) Gauge(name string, labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gauges[key(name, labels)]
}

// TimingCount returns how many timings were recorded under name and labels.
func (c *Collector) TimingCount(name string, labels Labels) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timings[key(name, labels)].Count
}

// Health derives the service health from the processed and failed counters.
func (c *Collector) Health() ServiceHealth {
	c.mu.Lock()
	success := int64(c.counters[key(MessagesProcessed, Labels{"status": StatusSuccess})])
	failed := int64(c.counters[key(MessagesProcessed, Labels{"status": StatusFailed})])
	retries := int64(c.counters[Retries])
	last := c.lastProcessed
	uptime := c.now().Sub(c.started)
	c.mu.Unlock()

	h := ServiceHealth{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     uptime.Seconds(),
		ProcessedMessages: success + failed,
		FailedMessages:    failed,
		RetryCount:        retries,
	}
	if !last.IsZero() {
		h.LastProcessedMessage = &last
	}
	if total := success + failed; total > 0 {
		h.ErrorRate = float64(failed) / float64(total)
	}
	h.Status = StatusFor(h.ErrorRate)
	return h
}

// StatusFor maps an error rate onto a health status.
func StatusFor(errorRate float64) string {
	switch {
	case errorRate > unhealthyThreshold:
		return HealthUnhealthy
	case errorRate > degradedThreshold:
		return HealthDegraded
	default:
		return HealthHealthy
	}
}
