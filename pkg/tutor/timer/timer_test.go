package timer

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.once.Do(func() { close(m.stopped) }) }

func TestTimer_ElapsedBeforeStart(t *testing.T) {
	tm := New(Options{})
	if got := tm.Elapsed(); got != 0 {
		t.Fatalf("Elapsed()=%d, want 0", got)
	}
	if got := tm.Stop(); got != 0 {
		t.Fatalf("Stop() before Start=%d, want 0", got)
	}
	if !tm.StartedAt().IsZero() {
		t.Fatalf("StartedAt() should be zero before Start")
	}
}

func TestTimer_ElapsedFollowsClock(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	ticker := newManualTicker()
	tm := New(Options{Now: clk.Now, NewTicker: func(time.Duration) Ticker { return ticker }})

	if err := tm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := tm.StartedAt(); !got.Equal(time.Unix(1000, 0)) {
		t.Fatalf("StartedAt()=%v", got)
	}

	clk.Advance(999 * time.Millisecond)
	if got := tm.Elapsed(); got != 0 {
		t.Fatalf("Elapsed() at 999ms=%d, want 0", got)
	}
	clk.Advance(time.Millisecond)
	if got := tm.Elapsed(); got != 1 {
		t.Fatalf("Elapsed() at 1s=%d, want 1", got)
	}
	clk.Advance(124 * time.Second)
	if got := tm.Elapsed(); got != 125 {
		t.Fatalf("Elapsed() at 125s=%d, want 125", got)
	}
	tm.Stop()
}

func TestTimer_StartTwiceFails(t *testing.T) {
	tm := New(Options{NewTicker: func(time.Duration) Ticker { return newManualTicker() }})
	if err := tm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tm.Stop()
	if err := tm.Start(); err != ErrAlreadyStarted {
		t.Fatalf("second Start() err=%v, want ErrAlreadyStarted", err)
	}
}

func TestTimer_StopFreezesAndIsIdempotent(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	ticker := newManualTicker()
	tm := New(Options{Now: clk.Now, NewTicker: func(time.Duration) Ticker { return ticker }})
	if err := tm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clk.Advance(42 * time.Second)
	if got := tm.Stop(); got != 42 {
		t.Fatalf("Stop()=%d, want 42", got)
	}
	clk.Advance(time.Hour)
	if got := tm.Stop(); got != 42 {
		t.Fatalf("second Stop()=%d, want 42", got)
	}
	if got := tm.Elapsed(); got != 42 {
		t.Fatalf("Elapsed() after Stop=%d, want 42", got)
	}

	select {
	case <-tm.Done():
	case <-time.After(time.Second):
		t.Fatalf("tick goroutine did not exit")
	}
	select {
	case <-ticker.stopped:
	default:
		t.Fatalf("ticker was not stopped")
	}
}

func TestTimer_OnTickReportsElapsed(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	ticker := newManualTicker()
	ticks := make(chan int, 4)
	tm := New(Options{
		Now:       clk.Now,
		NewTicker: func(time.Duration) Ticker { return ticker },
		OnTick:    func(s int) { ticks <- s },
	})
	if err := tm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tm.Stop()

	for _, want := range []int{1, 2, 5} {
		if want == 5 {
			clk.Advance(3 * time.Second)
		} else {
			clk.Advance(time.Second)
		}
		ticker.ch <- clk.Now()
		select {
		case got := <-ticks:
			if got != want {
				t.Fatalf("tick=%d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for tick %d", want)
		}
	}
}

func TestTimer_DefaultsToOneSecondInterval(t *testing.T) {
	var got time.Duration
	tm := New(Options{NewTicker: func(d time.Duration) Ticker {
		got = d
		return newManualTicker()
	}})
	if err := tm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tm.Stop()
	if got != time.Second {
		t.Fatalf("interval=%v, want 1s", got)
	}
}
