package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RecordProcessor processes one record. *Processor implements it.
type RecordProcessor interface {
	Process(ctx context.Context, rec Record) Outcome
}

// Poller long-polls a Source and feeds received records to a pool of
// workers. It is the only component that acknowledges records.
type Poller struct {
	source          Source
	processor       RecordProcessor
	log             zerolog.Logger
	workers         int
	batchSize       int
	processTimeout  time.Duration
	shutdownTimeout time.Duration
	errorBackoff    time.Duration
	visibility      time.Duration
	heartbeat       time.Duration
	wg              sync.WaitGroup
	cancel          context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewPoller creates a Poller configured from the given Config.
func NewPoller(source Source, processor RecordProcessor, cfg Config, log zerolog.Logger) *Poller {
	cfg = cfg.withDefaults()
	visibility := time.Duration(cfg.VisibilityTimeout) * time.Second
	return &Poller{
		source:          source,
		processor:       processor,
		log:             log,
		workers:         cfg.Workers,
		batchSize:       cfg.BatchSize,
		processTimeout:  cfg.ProcessTimeout,
		shutdownTimeout: cfg.ShutdownTimeout,
		errorBackoff:    cfg.ErrorBackoff,
		visibility:      visibility,
		heartbeat:       visibility / 2,
		inflight:        make(map[string]struct{}),
	}
}

// Start launches the receive loop and the worker goroutines.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	// Unbuffered so a shutdown leaves at most the records of one batch
	// unprocessed, and those are redelivered by the queue.
	jobs := make(chan Record)

	for i := range p.workers {
		p.wg.Add(1)
		go p.runWorker(ctx, fmt.Sprintf("worker-%d", i), jobs)
	}

	p.wg.Add(1)
	go p.receiveLoop(ctx, jobs)

	p.log.Info().
		Int("worker_count", p.workers).
		Int("batch_size", p.batchSize).
		Msg("poller started")

	return nil
}

// Stop cancels the receive loop and waits for in-flight records to finish
// within the shutdown timeout.
func (p *Poller) Stop(_ context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info().Msg("poller stopped gracefully")
		return nil
	case <-time.After(p.shutdownTimeout):
		p.log.Warn().Msg("poller shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", p.shutdownTimeout)
	}
}

func (p *Poller) receiveLoop(ctx context.Context, jobs chan<- Record) {
	defer p.wg.Done()
	defer close(jobs)

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("receive loop stopping")
			return
		default:
		}

		records, err := p.source.Receive(ctx, p.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error().Err(err).Msg("queue receive error")
			if !sleep(ctx, p.errorBackoff) {
				return
			}
			continue
		}

		for _, rec := range records {
			// A record still being processed here can come back when an
			// extension was lost; the running worker owns it.
			if !p.claim(rec.ID) {
				p.log.Warn().Str("message_id", rec.ID).Msg("skipping redelivery of in-flight message")
				continue
			}
			select {
			case jobs <- rec:
			case <-ctx.Done():
				p.release(rec.ID)
				return
			}
		}
	}
}

func (p *Poller) runWorker(ctx context.Context, name string, jobs <-chan Record) {
	defer p.wg.Done()

	p.log.Debug().Str("worker", name).Msg("worker started")
	for rec := range jobs {
		p.handle(ctx, name, rec)
	}
	p.log.Debug().Str("worker", name).Msg("worker stopping")
}

// handle processes one record and acknowledges it when the outcome says so.
// Processing is detached from shutdown cancellation so an in-flight record
// runs to completion, bounded by the process timeout.
func (p *Poller) handle(ctx context.Context, worker string, rec Record) {
	defer p.release(rec.ID)

	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.processTimeout)
	defer cancel()

	stop := p.keepVisible(processCtx, rec)
	out := p.processor.Process(processCtx, rec)
	stop()

	p.log.Debug().
		Str("worker", worker).
		Str("message_id", rec.ID).
		Str("status", string(out.Status)).
		Bool("ack", out.Ack).
		Bool("should_retry", out.ShouldRetry).
		Msg("message processed")

	if !out.Ack {
		return
	}
	if err := p.source.Ack(processCtx, rec); err != nil {
		p.log.Error().Err(err).
			Str("message_id", rec.ID).
			Msg("failed to acknowledge message")
	}
}

// keepVisible extends the record's visibility every heartbeat until the
// returned stop function is called. Sources that cannot extend get a no-op.
func (p *Poller) keepVisible(ctx context.Context, rec Record) (stop func()) {
	ext, ok := p.source.(VisibilityExtender)
	if !ok || p.heartbeat <= 0 {
		return func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(p.heartbeat)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := ext.ExtendVisibility(ctx, rec, p.visibility); err != nil {
					if ctx.Err() != nil {
						return
					}
					p.log.Warn().Err(err).
						Str("message_id", rec.ID).
						Msg("failed to extend message visibility")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (p *Poller) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Poller) release(id string) {
	p.mu.Lock()
	delete(p.inflight, id)
	p.mu.Unlock()
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
