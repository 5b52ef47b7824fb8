package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func newTestMonitor(t *testing.T, s *Session, clock Clock, onClose func()) *InactivityMonitor {
	t.Helper()
	m, err := NewInactivityMonitor(InactivityOpts{
		Session: s,
		Clock:   clock,
		OnClose: onClose,
	})
	if err != nil {
		t.Fatalf("NewInactivityMonitor: %v", err)
	}
	return m
}

func TestShouldClose_IdlePastThreshold(t *testing.T) {
	clock := newFakeClock()
	s := New("ctx-1", clock.Now())
	m := newTestMonitor(t, s, clock, func() {})

	if m.ShouldClose() {
		t.Error("fresh session reported closable")
	}

	clock.Advance(DefaultIdleTimeout - time.Second)
	if m.ShouldClose() {
		t.Error("session below threshold reported closable")
	}

	clock.Advance(time.Second)
	if !m.ShouldClose() {
		t.Error("session at threshold not reported closable")
	}
}

func TestShouldClose_SuppressedByInFlightWork(t *testing.T) {
	clock := newFakeClock()
	s := New("ctx-1", clock.Now())
	m := newTestMonitor(t, s, clock, func() {})

	// Idle 10x the threshold: pending work must still suppress the close.
	clock.Advance(10 * DefaultIdleTimeout)

	s.SetCounts(1, 0, 0)
	if m.ShouldClose() {
		t.Error("pending work did not suppress close")
	}

	s.SetCounts(0, 1, 0)
	if m.ShouldClose() {
		t.Error("active task did not suppress close")
	}

	s.SetCounts(0, 0, 0)
	if !m.ShouldClose() {
		t.Error("cleared work did not allow close")
	}
}

func TestShouldClose_TouchResets(t *testing.T) {
	clock := newFakeClock()
	s := New("ctx-1", clock.Now())
	m := newTestMonitor(t, s, clock, func() {})

	clock.Advance(2 * DefaultIdleTimeout)
	s.Touch(clock.Now())

	if m.ShouldClose() {
		t.Error("touched session reported closable")
	}
}

func TestRun_ClosesOnce(t *testing.T) {
	clock := newFakeClock()
	s := New("ctx-1", clock.Now())
	clock.Advance(2 * DefaultIdleTimeout)

	var closes atomic.Int32
	m, err := NewInactivityMonitor(InactivityOpts{
		Session:       s,
		Clock:         clock,
		CheckInterval: 5 * time.Millisecond,
		OnClose:       func() { closes.Add(1) },
	})
	if err != nil {
		t.Fatalf("NewInactivityMonitor: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not fire")
	}
	if got := closes.Load(); got != 1 {
		t.Errorf("OnClose fired %d times, want 1", got)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	clock := newFakeClock()
	s := New("ctx-1", clock.Now())
	s.SetCounts(1, 0, 0) // in-flight work keeps it open

	m, err := NewInactivityMonitor(InactivityOpts{
		Session:       s,
		Clock:         clock,
		CheckInterval: 5 * time.Millisecond,
		OnClose:       func() { t.Error("OnClose fired with in-flight work") },
	})
	if err != nil {
		t.Fatalf("NewInactivityMonitor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}
