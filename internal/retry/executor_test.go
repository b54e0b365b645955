package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/errclass"
	"github.com/sungwon/notification-pipeline/internal/metrics"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *recordingSleeper) getDelays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.delays
}

func newTestExecutor(sink metrics.Sink, sl *recordingSleeper) *Executor {
	return NewExecutor(errclass.NewClassifier(), sink, zerolog.Nop(),
		WithSleep(sl.sleep),
		WithRand(func() float64 { return 0.5 }),
	)
}

func classified(kind errclass.Kind) errclass.Classified {
	return errclass.NewClassifier().Classify(errclass.New(kind, "initial"), errclass.Context{MessageID: "m-1"})
}

func TestDoNonRetryableInvokesNothing(t *testing.T) {
	sl := &recordingSleeper{}
	e := newTestExecutor(nil, sl)

	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (string, error) {
		calls++
		return "", nil
	}, classified(errclass.KindValidation), DefaultConfig())

	if calls != 0 {
		t.Errorf("operation invoked %d times, want 0", calls)
	}
	var term *TerminalError
	if !errors.As(err, &term) {
		t.Fatalf("error = %v, want *TerminalError", err)
	}
	if term.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", term.Attempts)
	}
}

func TestDoExhaustsAfterMaxRetries(t *testing.T) {
	sl := &recordingSleeper{}
	c := metrics.NewCollector()
	e := newTestExecutor(c, sl)

	lastErr := errors.New("Network timeout")
	calls := 0
	_, err := Do(context.Background(), e, func(context.Context) (int, error) {
		calls++
		return 0, lastErr
	}, classified(errclass.KindNetwork), Config{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Factor: 2, JitterFraction: 0.5})

	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("errors.Is(err, ErrRetryExhausted) = false; err = %v", err)
	}
	if !errors.Is(err, lastErr) {
		t.Error("exhausted error should wrap the last failure")
	}
	var ex *ExhaustedError
	if !errors.As(err, &ex) {
		t.Fatalf("error = %T, want *ExhaustedError", err)
	}
	if ex.Last.Category != errclass.CategoryNetwork {
		t.Errorf("Last.Category = %q, want network", ex.Last.Category)
	}
	if ex.Last.Context.RetryCount != 3 {
		t.Errorf("Last.Context.RetryCount = %d, want 3", ex.Last.Context.RetryCount)
	}

	// Sleeps happen between attempts only.
	want := []time.Duration{1250 * time.Millisecond, 2500 * time.Millisecond}
	got := sl.getDelays()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if n := c.Counter(metrics.Retries, nil); n != 2 {
		t.Errorf("retries counter = %v, want 2", n)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	sl := &recordingSleeper{}
	e := newTestExecutor(nil, sl)

	calls := 0
	got, err := Do(context.Background(), e, func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("connection reset by peer")
		}
		return "sent", nil
	}, classified(errclass.KindNetwork), DefaultConfig())

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "sent" || calls != 2 {
		t.Errorf("Do() = %q after %d calls, want sent after 2", got, calls)
	}
}

func TestDoStopsOnReclassifiedTerminalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errclass.Category
	}{
		{name: "becomes non-retryable", err: errors.New("401 unauthorized"), want: errclass.CategoryAuthentication},
		{name: "becomes configuration", err: errclass.New(errclass.KindConfiguration, "no sender address"), want: errclass.CategoryConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(nil, &recordingSleeper{})
			calls := 0
			err := e.Execute(context.Background(), func(context.Context) error {
				calls++
				return tt.err
			}, classified(errclass.KindNetwork), DefaultConfig())

			if calls != 1 {
				t.Errorf("operation invoked %d times, want 1", calls)
			}
			var term *TerminalError
			if !errors.As(err, &term) {
				t.Fatalf("error = %v, want *TerminalError", err)
			}
			if term.Classified.Category != tt.want {
				t.Errorf("Category = %q, want %q", term.Classified.Category, tt.want)
			}
			if errors.Is(err, ErrRetryExhausted) {
				t.Error("terminal error must not match ErrRetryExhausted")
			}
		})
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	e := NewExecutor(nil, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := e.Execute(ctx, func(context.Context) error {
		calls++
		return errors.New("timeout")
	}, classified(errclass.KindNetwork), Config{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour, Factor: 2})

	if calls != 1 {
		t.Errorf("operation invoked %d times, want 1", calls)
	}
	var term *TerminalError
	if !errors.As(err, &term) {
		t.Fatalf("error = %v, want *TerminalError", err)
	}
}

func TestBackoffBounds(t *testing.T) {
	cfg := DefaultConfig()

	prev := time.Duration(0)
	for attempt := 1; attempt <= 20; attempt++ {
		d := cfg.Backoff(attempt)
		if d < prev {
			t.Errorf("Backoff(%d) = %v, less than previous %v", attempt, d, prev)
		}
		if d > cfg.MaxDelay {
			t.Errorf("Backoff(%d) = %v exceeds MaxDelay %v", attempt, d, cfg.MaxDelay)
		}
		prev = d
	}

	ceiling := time.Duration(float64(cfg.MaxDelay) * (1 + cfg.JitterFraction))
	e := NewExecutor(nil, nil, zerolog.Nop(), WithRand(func() float64 { return 0.999999 }))
	for attempt := 1; attempt <= 20; attempt++ {
		if d := e.Delay(cfg, attempt); d > ceiling {
			t.Errorf("Delay(%d) = %v exceeds %v", attempt, d, ceiling)
		}
	}
	if d := cfg.Backoff(1000); d != cfg.MaxDelay {
		t.Errorf("Backoff(1000) = %v, want MaxDelay", d)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	got := Config{}.WithDefaults()
	if got != DefaultConfig() {
		t.Errorf("WithDefaults() = %+v, want %+v", got, DefaultConfig())
	}

	custom := Config{MaxRetries: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, Factor: 3, JitterFraction: 0.2}
	if custom.WithDefaults() != custom {
		t.Errorf("WithDefaults() changed a complete config")
	}

	for _, jitter := range []float64{0, -0.5} {
		got := Config{MaxRetries: 2, JitterFraction: jitter}.WithDefaults()
		if got.JitterFraction != 0.1 {
			t.Errorf("WithDefaults() with jitter %v gave %v, want 0.1", jitter, got.JitterFraction)
		}
		if got.MaxRetries != 2 {
			t.Errorf("WithDefaults() replaced MaxRetries: %d", got.MaxRetries)
		}
	}
}
