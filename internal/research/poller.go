package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// Poller defaults. The initial delay gives the gateway time to register
// the task before the first status request.
const (
	DefaultInitialDelay = 5 * time.Second
	DefaultPollInterval = 10 * time.Second
	DefaultMaxAttempts  = 60
)

// Outcome states for a polled task.
const (
	StateWorking   = "working"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateTimedOut  = "timed_out"
)

// TimedOutMessage is attached to tasks that exhaust the attempt cap. The
// gateway may still be working on the task; exhaustion is not a failure
// verdict.
const TimedOutMessage = "polling stopped after the attempt limit; the task may still be running on the gateway"

// StatusFetcher is the slice of the gateway client the poller needs.
type StatusFetcher interface {
	GetTaskStatus(ctx context.Context, taskID string) (gateway.TaskStatus, error)
}

// Update is delivered to the progress callback after every successful
// status fetch.
type Update struct {
	Attempt  int
	Progress int
	Phase    string
	State    string
}

// Result is the terminal outcome of a poll loop.
type Result struct {
	State    string
	Progress int
	Phase    string
	Message  string
	Result   json.RawMessage
	Attempts int
}

// PollerOpts configures a Poller. Client is required.
type PollerOpts struct {
	Client       StatusFetcher
	InitialDelay time.Duration
	PollInterval time.Duration
	MaxAttempts  int
	OnProgress   func(Update)
}

// Poller drives a submitted task to a terminal state by polling the
// gateway on a fixed interval.
type Poller struct {
	client       StatusFetcher
	initialDelay time.Duration
	interval     time.Duration
	maxAttempts  int
	onProgress   func(Update)
}

// NewPoller validates opts and applies defaults.
func NewPoller(opts PollerOpts) (*Poller, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("research: client is required")
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Poller{
		client:       opts.Client,
		initialDelay: opts.InitialDelay,
		interval:     opts.PollInterval,
		maxAttempts:  opts.MaxAttempts,
		onProgress:   opts.OnProgress,
	}, nil
}

// Poll fetches task status until the task completes, fails, or the
// attempt cap is reached. Transport errors consume an attempt and the
// loop keeps going; only context cancellation aborts early. Progress and
// phase retain the last reported value across fetches that omit them.
func (p *Poller) Poll(ctx context.Context, taskID string) (Result, error) {
	if err := sleep(ctx, p.initialDelay); err != nil {
		return Result{}, err
	}

	progress := 0
	phase := ""
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		status, err := p.client.GetTaskStatus(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			log.Printf("research: poll %d/%d for task %s failed: %v", attempt, p.maxAttempts, taskID, err)
		} else {
			progress, phase = p.apply(status, progress, phase)
			if p.onProgress != nil {
				p.onProgress(Update{Attempt: attempt, Progress: progress, Phase: phase, State: status.Status})
			}
			switch status.Status {
			case gateway.TaskStateCompleted:
				return Result{
					State:    StateCompleted,
					Progress: 100,
					Phase:    phase,
					Result:   status.Result,
					Attempts: attempt,
				}, nil
			case gateway.TaskStateFailed:
				msg := status.StatusMessage
				if msg == "" {
					msg = "task failed without a reported reason"
				}
				return Result{
					State:    StateFailed,
					Progress: progress,
					Phase:    phase,
					Message:  msg,
					Attempts: attempt,
				}, nil
			}
		}
		if attempt == p.maxAttempts {
			break
		}
		if err := sleep(ctx, p.interval); err != nil {
			return Result{}, err
		}
	}

	log.Printf("research: task %s still working after %d polls, giving up", taskID, p.maxAttempts)
	return Result{
		State:    StateTimedOut,
		Progress: progress,
		Phase:    phase,
		Message:  TimedOutMessage,
		Attempts: p.maxAttempts,
	}, nil
}

// apply merges one status snapshot into the running progress and phase,
// preferring structured fields over text extraction.
func (p *Poller) apply(status gateway.TaskStatus, progress int, phase string) (int, string) {
	if status.Progress >= 0 {
		progress = status.Progress
	} else if pct, ok := ExtractProgress(status.StatusMessage); ok {
		progress = pct
	}
	if status.CurrentPhase != "" {
		phase = CanonicalPhase(status.CurrentPhase)
	} else if ph, ok := ExtractPhase(status.StatusMessage); ok {
		phase = ph
	}
	return progress, phase
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
