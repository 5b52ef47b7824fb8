package session

import (
	"context"
	"fmt"
	"time"
)

// Default inactivity monitor settings.
const (
	DefaultCheckInterval = 10 * time.Second
	DefaultIdleTimeout   = 3 * time.Minute
)

// InactivityMonitor closes a session after a quiet period. In-flight work
// always suppresses the close: the monitor never fires while the session
// has pending deliveries or active tasks, however long it has been idle.
type InactivityMonitor struct {
	session       *Session
	checkInterval time.Duration
	idleTimeout   time.Duration
	clock         Clock
	onClose       func()
}

// InactivityOpts holds parameters for creating an InactivityMonitor.
type InactivityOpts struct {
	Session       *Session
	CheckInterval time.Duration // defaults to DefaultCheckInterval
	IdleTimeout   time.Duration // defaults to DefaultIdleTimeout
	Clock         Clock         // defaults to SystemClock
	OnClose       func()        // invoked at most once, from the monitor goroutine
}

// NewInactivityMonitor creates an InactivityMonitor.
func NewInactivityMonitor(opts InactivityOpts) (*InactivityMonitor, error) {
	if opts.Session == nil {
		return nil, fmt.Errorf("session: inactivity monitor: session is required")
	}
	if opts.OnClose == nil {
		return nil, fmt.Errorf("session: inactivity monitor: OnClose is required")
	}
	check := opts.CheckInterval
	if check <= 0 {
		check = DefaultCheckInterval
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &InactivityMonitor{
		session:       opts.Session,
		checkInterval: check,
		idleTimeout:   idle,
		clock:         clock,
		onClose:       opts.OnClose,
	}, nil
}

// ShouldClose reports whether the session is idle past the threshold with
// no in-flight work.
func (m *InactivityMonitor) ShouldClose() bool {
	if m.session.HasInFlightWork() {
		return false
	}
	idleFor := m.clock.Now().Sub(m.session.LastActivity())
	return idleFor >= m.idleTimeout
}

// Run checks on the fixed interval until the session goes quiet or ctx is
// cancelled. When the close condition holds, OnClose fires once and the
// monitor stops.
func (m *InactivityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.ShouldClose() {
				m.onClose()
				return
			}
		}
	}
}
