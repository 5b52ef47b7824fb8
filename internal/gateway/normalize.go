package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// structuredTaskResponse is the current task-status response shape.
type structuredTaskResponse struct {
	Task *struct {
		ID     string `json:"id"`
		Status struct {
			State   string `json:"state"`
			Message *struct {
				Parts []Part `json:"parts"`
			} `json:"message"`
		} `json:"status"`
		Artifacts []artifact `json:"artifacts"`
	} `json:"task"`
}

// artifact is a task output attachment. The workflow-result artifact
// carries progress metadata and, on completion, the final payload.
type artifact struct {
	Type     string `json:"type"`
	Metadata *struct {
		Progress     *int   `json:"progress"`
		CurrentPhase string `json:"currentPhase"`
	} `json:"metadata"`
	Data json.RawMessage `json:"data"`
}

// legacyTaskResponse is the flat task-status response shape still emitted
// by older gateway builds.
type legacyTaskResponse struct {
	Status       string          `json:"status"`
	Progress     *int            `json:"progress"`
	CurrentPhase string          `json:"currentPhase"`
	Message      string          `json:"message"`
	Result       json.RawMessage `json:"result"`
}

// workflowResultType tags the artifact carrying progress and final data.
const workflowResultType = "workflow-result"

// NormalizeTaskStatus reduces either task-status response shape to one
// TaskStatus record. The structured shape wins when both could apply:
// a response with a "task" object is structured, anything else is legacy.
func NormalizeTaskStatus(raw json.RawMessage) (TaskStatus, error) {
	var structured structuredTaskResponse
	if err := json.Unmarshal(raw, &structured); err == nil && structured.Task != nil {
		return normalizeStructured(structured), nil
	}

	var legacy legacyTaskResponse
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return TaskStatus{}, fmt.Errorf("gateway: normalize task status: %w", err)
	}
	if legacy.Status == "" {
		return TaskStatus{}, fmt.Errorf("gateway: normalize task status: no status in response")
	}

	ts := TaskStatus{
		Status:        legacy.Status,
		Progress:      -1,
		CurrentPhase:  legacy.CurrentPhase,
		StatusMessage: legacy.Message,
		Result:        legacy.Result,
	}
	if legacy.Progress != nil {
		ts.Progress = *legacy.Progress
	}
	return ts, nil
}

func normalizeStructured(resp structuredTaskResponse) TaskStatus {
	task := resp.Task
	ts := TaskStatus{
		Status:   task.Status.State,
		Progress: -1,
	}

	if task.Status.Message != nil {
		ts.StatusMessage = FlattenParts(task.Status.Message.Parts)
	}

	for _, a := range task.Artifacts {
		if a.Type != workflowResultType {
			continue
		}
		if a.Metadata != nil {
			if a.Metadata.Progress != nil {
				ts.Progress = *a.Metadata.Progress
			}
			if a.Metadata.CurrentPhase != "" {
				ts.CurrentPhase = a.Metadata.CurrentPhase
			}
		}
		if len(a.Data) > 0 {
			ts.Result = a.Data
		}
		break
	}

	return ts
}

// FlattenParts joins the text of all parts with newlines, skipping parts
// with no text. Shared by message merging and status extraction.
func FlattenParts(parts []Part) string {
	var texts []string
	for _, p := range parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
