// Package health runs readiness probes against the worker's dependencies in
// the background and reports their status.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	unhealthyThreshold   = 3
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// Status is the current health state of one probe.
type Status struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"lastCheck"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
}

// Option configures a Checker.
type Option func(*Checker)

// WithInterval sets how often probes run.
func WithInterval(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithTimeout bounds each probe invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Checker periodically runs named probes. A probe is reported unhealthy after
// three consecutive failures; one success makes it healthy again.
type Checker struct {
	mu       sync.RWMutex
	probes   map[string]Probe
	statuses map[string]*Status
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
	stopCh   chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewChecker creates a Checker with no probes.
func NewChecker(log zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		probes:   make(map[string]Probe),
		statuses: make(map[string]*Status),
		interval: defaultCheckInterval,
		timeout:  defaultCheckTimeout,
		log:      log,
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a probe. Probes must be registered before Start.
func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

// Start begins the background check loop.
func (c *Checker) Start() {
	go c.run()
}

// Stop terminates the check loop and waits for it to finish.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.stopped
}

// IsHealthy reports whether every registered probe is healthy. A probe that
// has not run yet counts as unhealthy.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for name := range c.probes {
		s, ok := c.statuses[name]
		if !ok || !s.Healthy {
			return false
		}
	}
	return true
}

// Statuses returns a snapshot of every probe's status.
func (c *Checker) Statuses() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.statuses))
	for name, s := range c.statuses {
		out[name] = *s
	}
	return out
}

// CheckNow runs every probe once, synchronously.
func (c *Checker) CheckNow(ctx context.Context) {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		c.check(ctx, name)
	}
}

func (c *Checker) run() {
	defer close(c.stopped)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	c.CheckNow(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.CheckNow(ctx)
		}
	}
}

func (c *Checker) check(ctx context.Context, name string) {
	c.mu.RLock()
	probe := c.probes[name]
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	err := probe(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.statuses[name]
	if !ok {
		status = &Status{Healthy: true}
		c.statuses[name] = status
	}
	status.LastCheck = time.Now()

	if err != nil {
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		if status.ConsecutiveFailures >= unhealthyThreshold && status.Healthy {
			status.Healthy = false
			c.log.Error().Err(err).Str("probe", name).Int("failures", status.ConsecutiveFailures).Msg("dependency unhealthy")
		} else {
			c.log.Warn().Err(err).Str("probe", name).Int("failures", status.ConsecutiveFailures).Msg("health probe failed")
		}
		return
	}

	if !status.Healthy {
		c.log.Info().Str("probe", name).Msg("dependency recovered")
	}
	status.ConsecutiveFailures = 0
	status.Healthy = true
	status.LastError = ""
}
