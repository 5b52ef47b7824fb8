package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// fakeResearchGateway scripts a submit followed by a fixed status sequence.
type fakeResearchGateway struct {
	mu        sync.Mutex
	submitErr error
	statuses  []gateway.TaskStatus
	calls     int
	gotReq    gateway.ResearchRequest
}

func (f *fakeResearchGateway) SubmitResearch(ctx context.Context, req gateway.ResearchRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotReq = req
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "task-77", nil
}

func (f *fakeResearchGateway) GetTaskStatus(ctx context.Context, taskID string) (gateway.TaskStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func TestRunResearch_Completes(t *testing.T) {
	client := &fakeResearchGateway{
		statuses: []gateway.TaskStatus{
			{Status: "working", Progress: 30, CurrentPhase: "search"},
			{Status: "working", Progress: 70, CurrentPhase: "analyze"},
			{Status: "completed", Progress: 100, Result: json.RawMessage(`{"executiveSummary":"Adoption is accelerating."}`)},
		},
	}
	cmd, buf := newOutCmd()

	err := runResearch(context.Background(), cmd, client, nil, nil,
		gateway.ResearchRequest{Topic: "solar adoption", Depth: "standard"},
		researchOpts{initialDelay: time.Millisecond, pollInterval: time.Millisecond, maxAttempts: 10})
	if err != nil {
		t.Fatalf("runResearch: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `Researching "solar adoption"`) {
		t.Errorf("missing banner in output: %s", out)
	}
	if !strings.Contains(out, "search") || !strings.Contains(out, "analyze") {
		t.Errorf("missing progress lines in output: %s", out)
	}
	if !strings.Contains(out, "Task task-77 finished after 3 poll(s).") {
		t.Errorf("missing summary line in output: %s", out)
	}
	if !strings.Contains(out, "Research complete: solar adoption") {
		t.Errorf("missing report in output: %s", out)
	}
	if client.gotReq.Depth != "standard" {
		t.Errorf("Depth = %q, want standard", client.gotReq.Depth)
	}
}

func TestRunResearch_FailedTask(t *testing.T) {
	client := &fakeResearchGateway{
		statuses: []gateway.TaskStatus{
			{Status: "failed", Progress: -1, StatusMessage: "source unavailable"},
		},
	}
	cmd, buf := newOutCmd()

	err := runResearch(context.Background(), cmd, client, nil, nil,
		gateway.ResearchRequest{Topic: "doomed"},
		researchOpts{initialDelay: time.Millisecond, pollInterval: time.Millisecond, maxAttempts: 5})
	if err == nil || !strings.Contains(err.Error(), "failed") {
		t.Fatalf("expected failed error, got: %v", err)
	}
	if !strings.Contains(buf.String(), "source unavailable") {
		t.Errorf("missing failure reason in output: %s", buf.String())
	}
}

func TestRunResearch_TimedOutStillReports(t *testing.T) {
	client := &fakeResearchGateway{
		statuses: []gateway.TaskStatus{
			{Status: "working", Progress: 50},
		},
	}
	cmd, buf := newOutCmd()

	err := runResearch(context.Background(), cmd, client, nil, nil,
		gateway.ResearchRequest{Topic: "slow topic"},
		researchOpts{initialDelay: time.Millisecond, pollInterval: time.Millisecond, maxAttempts: 3})
	if err == nil || !strings.Contains(err.Error(), "timed_out") {
		t.Fatalf("expected timed_out error, got: %v", err)
	}
	if !strings.Contains(buf.String(), "may still be running") {
		t.Errorf("timed-out outcome must warn the task may still be running: %s", buf.String())
	}
}

func TestRunResearch_SubmitError(t *testing.T) {
	client := &fakeResearchGateway{submitErr: fmt.Errorf("gateway unreachable")}
	cmd, _ := newOutCmd()

	err := runResearch(context.Background(), cmd, client, nil, nil,
		gateway.ResearchRequest{Topic: "anything"},
		researchOpts{initialDelay: time.Millisecond, pollInterval: time.Millisecond, maxAttempts: 3})
	if err == nil || !strings.Contains(err.Error(), "gateway unreachable") {
		t.Fatalf("expected submit error, got: %v", err)
	}
}
