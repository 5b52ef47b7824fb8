package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// fakeGateway wraps a scriptedClient with a canned submit response.
type fakeGateway struct {
	scriptedClient
	submitID  string
	submitErr error
	submitted []gateway.ResearchRequest
}

func (g *fakeGateway) SubmitResearch(ctx context.Context, req gateway.ResearchRequest) (string, error) {
	g.submitted = append(g.submitted, req)
	return g.submitID, g.submitErr
}

type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Notify(event, detail string) {
	n.events = append(n.events, event+": "+detail)
}

func TestRunnerSubmitsAndPersists(t *testing.T) {
	client := &fakeGateway{
		submitID: "task-9",
		scriptedClient: scriptedClient{script: []scriptStep{
			working(30, "search"),
			{status: gateway.TaskStatus{Status: gateway.TaskStateCompleted, Result: []byte(`{"executiveSummary":"ok"}`)}},
		}},
	}
	store := newTestStore(t)
	notifier := &recordingNotifier{}
	runner, err := NewRunner(RunnerOpts{
		Client:       client,
		Store:        store,
		Notifier:     notifier,
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	taskID, res, err := runner.Run(context.Background(), gateway.ResearchRequest{Topic: "grid storage", Depth: "deep"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if taskID != "task-9" {
		t.Errorf("taskID = %q, want task-9", taskID)
	}
	if res.State != StateCompleted {
		t.Errorf("State = %q, want %q", res.State, StateCompleted)
	}

	task, err := store.Get("task-9")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.Topic != "grid storage" || task.Depth != "deep" {
		t.Errorf("stored task = %+v, want topic and depth from the request", task)
	}
	if task.State != StateCompleted {
		t.Errorf("stored State = %q, want %q", task.State, StateCompleted)
	}
	if len(notifier.events) != 2 {
		t.Fatalf("got %d notifications, want start and finish", len(notifier.events))
	}
	if notifier.events[1] != "research completed: grid storage" {
		t.Errorf("final notification = %q", notifier.events[1])
	}
}

func TestRunnerSubmitFailure(t *testing.T) {
	client := &fakeGateway{submitErr: errors.New("gateway unreachable")}
	runner, err := NewRunner(RunnerOpts{Client: client, InitialDelay: time.Millisecond, PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if _, _, err := runner.Run(context.Background(), gateway.ResearchRequest{Topic: "x"}); err == nil {
		t.Error("Run() with failing submit did not return an error")
	}
	if client.callCount() != 0 {
		t.Errorf("issued %d status requests after failed submit, want 0", client.callCount())
	}
}

func TestRunnerRecordsTimedOut(t *testing.T) {
	client := &fakeGateway{
		submitID:       "task-t",
		scriptedClient: scriptedClient{script: []scriptStep{working(50, "analyze")}},
	}
	store := newTestStore(t)
	runner, err := NewRunner(RunnerOpts{
		Client:       client,
		Store:        store,
		InitialDelay: time.Millisecond,
		PollInterval: time.Millisecond,
		MaxAttempts:  4,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	_, res, err := runner.Run(context.Background(), gateway.ResearchRequest{Topic: "t"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != StateTimedOut {
		t.Errorf("State = %q, want %q", res.State, StateTimedOut)
	}
	task, err := store.Get("task-t")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if task.State != StateTimedOut || task.Attempts != 4 {
		t.Errorf("stored task state %q attempts %d, want timed_out after 4", task.State, task.Attempts)
	}
}
