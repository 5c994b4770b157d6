// Package lifecycle tracks draining and in-flight requests for graceful shutdown.
package lifecycle

import (
	"sync"
	"sync/atomic"
)

// Lifecycle is shared by the readiness handler and the drain middleware.
type Lifecycle struct {
	draining atomic.Bool

	mu       sync.Mutex
	inflight int64
	idle     chan struct{}
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}

// Begin registers an in-flight request. It returns false while draining, in
// which case the caller must not call End.
func (l *Lifecycle) Begin() bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.draining.Load() {
		return false
	}
	l.inflight++
	return true
}

func (l *Lifecycle) End() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight--
	if l.inflight == 0 && l.idle != nil {
		close(l.idle)
		l.idle = nil
	}
}

func (l *Lifecycle) InFlight() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight
}

// Wait blocks until every request admitted by Begin has ended, or done closes.
func (l *Lifecycle) Wait(done <-chan struct{}) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	if l.inflight == 0 {
		l.mu.Unlock()
		return true
	}
	if l.idle == nil {
		l.idle = make(chan struct{})
	}
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return true
	case <-done:
		return false
	}
}
