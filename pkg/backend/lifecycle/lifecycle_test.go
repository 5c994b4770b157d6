package lifecycle

import (
	"testing"
	"time"
)

func TestLifecycle_DrainRejectsNewWork(t *testing.T) {
	t.Parallel()

	var l Lifecycle
	if !l.Begin() {
		t.Fatal("Begin() should admit before draining")
	}
	l.SetDraining(true)
	if !l.IsDraining() {
		t.Fatal("IsDraining()=false")
	}
	if l.Begin() {
		t.Fatal("Begin() should reject while draining")
	}
	if got := l.InFlight(); got != 1 {
		t.Fatalf("InFlight()=%d, want 1", got)
	}
	l.End()
	if got := l.InFlight(); got != 0 {
		t.Fatalf("InFlight()=%d, want 0", got)
	}
}

func TestLifecycle_WaitForInFlight(t *testing.T) {
	t.Parallel()

	var l Lifecycle
	l.Begin()

	done := make(chan struct{})
	close(done)
	if l.Wait(done) {
		t.Fatal("Wait() should give up when done is closed")
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.End()
	}()
	if !l.Wait(make(chan struct{})) {
		t.Fatal("Wait() should return true once requests end")
	}
}

func TestLifecycle_NilSafe(t *testing.T) {
	t.Parallel()

	var l *Lifecycle
	l.SetDraining(true)
	if l.IsDraining() || !l.Begin() || l.InFlight() != 0 || !l.Wait(nil) {
		t.Fatal("nil lifecycle should be inert")
	}
	l.End()
}
