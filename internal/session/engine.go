package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// DefaultPollInterval is the gap between conversation poll cycles.
const DefaultPollInterval = 2500 * time.Millisecond

// Fetcher abstracts the gateway calls the engine polls, enabling test fakes.
type Fetcher interface {
	ListMessages(ctx context.Context, sessionID string) ([]gateway.Message, error)
	PendingCount(ctx context.Context, sessionID string) (int, error)
	ListEvents(ctx context.Context, sessionID string) ([]gateway.Event, error)
	ListTasks(ctx context.Context, sessionID string) ([]gateway.TaskRef, error)
}

// Sink receives merged state for persistence or display. Both methods are
// called from the poll goroutine; implementations log their own errors.
type Sink interface {
	OnMessages(msgs []ChatMessage)
	OnCounts(pending, tasks, events int)
}

// Engine keeps a Session eventually consistent with the gateway by polling
// four channels on a fixed interval. Channel failures are isolated: one
// failing fetch never blocks the others or future cycles.
type Engine struct {
	client   Fetcher
	session  *Session
	interval time.Duration
	clock    Clock
	sink     Sink
	onChange func()

	snapshot snapshot
	seeded   bool
}

// snapshot holds the per-cycle state used for change detection.
type snapshot struct {
	messageCount int
	pending      int
	events       int
	tasks        int
}

// EngineOpts holds parameters for creating an Engine.
type EngineOpts struct {
	Client   Fetcher
	Session  *Session
	Interval time.Duration // defaults to DefaultPollInterval
	Clock    Clock         // defaults to SystemClock
	Sink     Sink          // optional
	OnChange func()        // optional, invoked after a changed cycle
}

// NewEngine creates a poll Engine.
func NewEngine(opts EngineOpts) (*Engine, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("session: engine: client is required")
	}
	if opts.Session == nil {
		return nil, fmt.Errorf("session: engine: session is required")
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		client:   opts.Client,
		session:  opts.Session,
		interval: interval,
		clock:    clock,
		sink:     opts.Sink,
		onChange: opts.OnChange,
	}, nil
}

// PollCycle runs one cycle: fetch all four channels, merge, detect change.
// Returns true when anything changed. A failure in one channel is logged
// and that channel keeps its previous value for this cycle.
func (e *Engine) PollCycle(ctx context.Context) bool {
	if e.session.ID() == "" {
		return false
	}

	sessionID := e.session.ID()
	pending, tasks, events := e.session.Counts()

	var added []ChatMessage
	if msgs, err := e.client.ListMessages(ctx, sessionID); err != nil {
		log.Printf("session: poll messages [%s]: %v", sessionID, err)
	} else {
		added = e.session.Merge(msgs)
	}

	if n, err := e.client.PendingCount(ctx, sessionID); err != nil {
		log.Printf("session: poll pending [%s]: %v", sessionID, err)
	} else {
		pending = n
	}

	if evs, err := e.client.ListEvents(ctx, sessionID); err != nil {
		log.Printf("session: poll events [%s]: %v", sessionID, err)
	} else {
		events = len(evs)
	}

	if refs, err := e.client.ListTasks(ctx, sessionID); err != nil {
		log.Printf("session: poll tasks [%s]: %v", sessionID, err)
	} else {
		tasks = len(refs)
	}

	// Late results after teardown must not mutate state.
	if ctx.Err() != nil {
		return false
	}

	e.session.SetCounts(pending, tasks, events)

	now := e.clock.Now()
	e.session.MarkUpdated(now)

	current := snapshot{
		messageCount: e.session.Len(),
		pending:      pending,
		events:       events,
		tasks:        tasks,
	}
	changed := len(added) > 0 || (e.seeded && current != e.snapshot)
	if !e.seeded {
		// First cycle: merged messages count as change, counts establish
		// the baseline.
		changed = len(added) > 0 || current.pending > 0 || current.tasks > 0 || current.events > 0
		e.seeded = true
	}
	e.snapshot = current

	if e.sink != nil {
		if len(added) > 0 {
			e.sink.OnMessages(added)
		}
		e.sink.OnCounts(pending, tasks, events)
	}

	if changed {
		e.session.Touch(now)
		if e.onChange != nil {
			e.onChange()
		}
	}
	return changed
}

// Run polls immediately, then on the fixed interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.PollCycle(ctx)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.PollCycle(ctx)
		}
	}
}
