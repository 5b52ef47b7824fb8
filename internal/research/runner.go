package research

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// GatewayClient is the slice of the gateway client the runner needs.
type GatewayClient interface {
	SubmitResearch(ctx context.Context, req gateway.ResearchRequest) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (gateway.TaskStatus, error)
}

// Notifier receives task lifecycle announcements. Implementations must
// tolerate being called from the poll goroutine.
type Notifier interface {
	Notify(event, detail string)
}

// RunnerOpts configures a Runner. Client is required; Store and Notifier
// are optional.
type RunnerOpts struct {
	Client         GatewayClient
	Store          *TaskStore
	Notifier       Notifier
	InitialDelay   time.Duration
	PollInterval   time.Duration
	MaxAttempts    int
	OnProgress     func(Update)
	ConversationID *uint
}

// Runner submits a research request and drives it to a terminal state,
// persisting lifecycle updates when a store is attached.
type Runner struct {
	client         GatewayClient
	store          *TaskStore
	notifier       Notifier
	poller         *Poller
	onProgress     func(Update)
	conversationID *uint
	taskID         string
}

// NewRunner validates opts and builds the underlying poller.
func NewRunner(opts RunnerOpts) (*Runner, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("research: client is required")
	}
	r := &Runner{
		client:         opts.Client,
		store:          opts.Store,
		notifier:       opts.Notifier,
		onProgress:     opts.OnProgress,
		conversationID: opts.ConversationID,
	}
	poller, err := NewPoller(PollerOpts{
		Client:       opts.Client,
		InitialDelay: opts.InitialDelay,
		PollInterval: opts.PollInterval,
		MaxAttempts:  opts.MaxAttempts,
		OnProgress:   r.progress,
	})
	if err != nil {
		return nil, err
	}
	r.poller = poller
	return r, nil
}

// taskID is set once Run has submitted; progress callbacks read it only
// after that point, so no lock is needed.
func (r *Runner) progress(u Update) {
	if r.store != nil && r.taskID != "" {
		if err := r.store.RecordProgress(r.taskID, u); err != nil {
			log.Printf("research: %v", err)
		}
	}
	if r.onProgress != nil {
		r.onProgress(u)
	}
}

// Run submits req, polls to a terminal state, and records the outcome.
// The returned Result is valid whenever err is nil, including failed and
// timed-out outcomes; err reports submission or cancellation problems.
func (r *Runner) Run(ctx context.Context, req gateway.ResearchRequest) (string, Result, error) {
	taskID, err := r.client.SubmitResearch(ctx, req)
	if err != nil {
		return "", Result{}, fmt.Errorf("research: submit %q: %w", req.Topic, err)
	}
	r.taskID = taskID
	log.Printf("research: submitted task %s for topic %q", taskID, req.Topic)

	if r.store != nil {
		if _, err := r.store.Create(taskID, req.Topic, req.Depth, req.AudienceType, r.conversationID); err != nil {
			log.Printf("research: %v", err)
		}
	}
	if r.notifier != nil {
		r.notifier.Notify("research started", req.Topic)
	}

	res, err := r.poller.Poll(ctx, taskID)
	if err != nil {
		return taskID, Result{}, err
	}

	if r.store != nil {
		if err := r.store.RecordResult(taskID, res); err != nil {
			log.Printf("research: %v", err)
		}
	}
	if r.notifier != nil {
		r.notifier.Notify("research "+res.State, req.Topic)
	}
	return taskID, res, nil
}
