// Package timer tracks wall-clock elapsed seconds for one tutoring session.
package timer

import (
	"errors"
	"sync"
	"time"
)

const DefaultInterval = time.Second

var ErrAlreadyStarted = errors.New("timer already started")

// Ticker abstracts time.Ticker so tests can drive ticks by hand.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

type Options struct {
	Now       func() time.Time
	Interval  time.Duration
	NewTicker func(d time.Duration) Ticker
	// OnTick receives the recomputed elapsed seconds after every tick.
	// It runs on the tick goroutine and must not block.
	OnTick func(elapsedSeconds int)
}

// Timer is single use. Elapsed is always derived from the start instant,
// never accumulated from ticks.
type Timer struct {
	now       func() time.Time
	interval  time.Duration
	newTicker func(d time.Duration) Ticker
	onTick    func(int)

	mu        sync.Mutex
	startedAt time.Time
	started   bool
	stopped   bool
	frozen    int
	stopChan  chan struct{}
	doneChan  chan struct{}
}

func New(opts Options) *Timer {
	t := &Timer{
		now:       opts.Now,
		interval:  opts.Interval,
		newTicker: opts.NewTicker,
		onTick:    opts.OnTick,
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.interval <= 0 {
		t.interval = DefaultInterval
	}
	if t.newTicker == nil {
		t.newTicker = func(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }
	}
	return t
}

// Start records the reference instant and begins ticking.
func (t *Timer) Start() error {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return ErrAlreadyStarted
	}
	t.started = true
	t.startedAt = t.now()
	t.stopChan = make(chan struct{})
	t.doneChan = make(chan struct{})
	ticker := t.newTicker(t.interval)
	stopChan, doneChan := t.stopChan, t.doneChan
	t.mu.Unlock()

	go func() {
		defer close(doneChan)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				t.tick()
			case <-stopChan:
				return
			}
		}
	}()
	return nil
}

func (t *Timer) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	elapsed := t.elapsedLocked()
	onTick := t.onTick
	t.mu.Unlock()

	if onTick != nil {
		onTick(elapsed)
	}
}

// Stop halts ticking and freezes the elapsed value. Later calls return the
// frozen value. Stop does not wait for an in-flight OnTick to return.
func (t *Timer) Stop() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return 0
	}
	if t.stopped {
		return t.frozen
	}
	t.frozen = t.elapsedLocked()
	t.stopped = true
	close(t.stopChan)
	return t.frozen
}

// Elapsed returns whole seconds since Start, or 0 if never started.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return 0
	}
	if t.stopped {
		return t.frozen
	}
	return t.elapsedLocked()
}

// StartedAt returns the reference instant, or the zero time if never started.
func (t *Timer) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// Done is closed once the tick goroutine has exited. It is nil before Start.
// Tests use it to wait for Stop to take effect.
func (t *Timer) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneChan
}

func (t *Timer) elapsedLocked() int {
	d := t.now().Sub(t.startedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
