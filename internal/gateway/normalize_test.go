package gateway

import (
	"encoding/json"
	"testing"
)

func TestNormalizeTaskStatus_EquivalentShapes(t *testing.T) {
	structured := []byte(`{
		"task": {
			"id": "task-1",
			"status": {"state": "completed"},
			"artifacts": [
				{"type": "workflow-result", "data": {"executiveSummary": "X"}}
			]
		}
	}`)
	legacy := []byte(`{"status": "completed", "result": {"executiveSummary": "X"}}`)

	fromStructured, err := NormalizeTaskStatus(structured)
	if err != nil {
		t.Fatalf("structured: %v", err)
	}
	fromLegacy, err := NormalizeTaskStatus(legacy)
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}

	for name, ts := range map[string]TaskStatus{"structured": fromStructured, "legacy": fromLegacy} {
		if ts.Status != TaskStateCompleted {
			t.Errorf("%s: Status = %q, want completed", name, ts.Status)
		}
		var result map[string]string
		if err := json.Unmarshal(ts.Result, &result); err != nil {
			t.Fatalf("%s: decode result: %v", name, err)
		}
		if result["executiveSummary"] != "X" {
			t.Errorf("%s: executiveSummary = %q, want X", name, result["executiveSummary"])
		}
	}
}

func TestNormalizeTaskStatus_StructuredProgress(t *testing.T) {
	raw := []byte(`{
		"task": {
			"status": {"state": "working", "message": {"parts": [{"text": "Searching"}, {"text": "for sources"}]}},
			"artifacts": [
				{"type": "other-artifact", "metadata": {"progress": 99}},
				{"type": "workflow-result", "metadata": {"progress": 30, "currentPhase": "search"}}
			]
		}
	}`)

	ts, err := NormalizeTaskStatus(raw)
	if err != nil {
		t.Fatalf("NormalizeTaskStatus: %v", err)
	}
	if ts.Progress != 30 {
		t.Errorf("Progress = %d, want 30 (workflow-result artifact, not first artifact)", ts.Progress)
	}
	if ts.CurrentPhase != "search" {
		t.Errorf("CurrentPhase = %q, want search", ts.CurrentPhase)
	}
	if ts.StatusMessage != "Searching\nfor sources" {
		t.Errorf("StatusMessage = %q, want parts joined with newline", ts.StatusMessage)
	}
}

func TestNormalizeTaskStatus_LegacyNoProgress(t *testing.T) {
	ts, err := NormalizeTaskStatus([]byte(`{"status": "working"}`))
	if err != nil {
		t.Fatalf("NormalizeTaskStatus: %v", err)
	}
	if ts.Progress != -1 {
		t.Errorf("Progress = %d, want -1 when not reported", ts.Progress)
	}
	if ts.CurrentPhase != "" {
		t.Errorf("CurrentPhase = %q, want empty", ts.CurrentPhase)
	}
}

func TestNormalizeTaskStatus_LegacyZeroProgress(t *testing.T) {
	ts, err := NormalizeTaskStatus([]byte(`{"status": "working", "progress": 0}`))
	if err != nil {
		t.Fatalf("NormalizeTaskStatus: %v", err)
	}
	if ts.Progress != 0 {
		t.Errorf("Progress = %d, want explicit 0 preserved", ts.Progress)
	}
}

func TestNormalizeTaskStatus_FailedWithMessage(t *testing.T) {
	raw := []byte(`{
		"task": {
			"status": {"state": "failed", "message": {"parts": [{"text": "source fetch quota exceeded"}]}}
		}
	}`)
	ts, err := NormalizeTaskStatus(raw)
	if err != nil {
		t.Fatalf("NormalizeTaskStatus: %v", err)
	}
	if ts.Status != TaskStateFailed {
		t.Errorf("Status = %q, want failed", ts.Status)
	}
	if ts.StatusMessage != "source fetch quota exceeded" {
		t.Errorf("StatusMessage = %q", ts.StatusMessage)
	}
}

func TestNormalizeTaskStatus_Unrecognized(t *testing.T) {
	if _, err := NormalizeTaskStatus([]byte(`{"foo": "bar"}`)); err == nil {
		t.Error("expected error for response with neither shape, got nil")
	}
	if _, err := NormalizeTaskStatus([]byte(`not json`)); err == nil {
		t.Error("expected error for invalid JSON, got nil")
	}
}

func TestFlattenParts(t *testing.T) {
	tests := []struct {
		name  string
		parts []Part
		want  string
	}{
		{"empty", nil, ""},
		{"single", []Part{{Kind: "text", Text: "hello"}}, "hello"},
		{"multi joined with newline", []Part{{Text: "a"}, {Text: "b"}}, "a\nb"},
		{"skips textless parts", []Part{{Kind: "file"}, {Text: "x"}, {Kind: "data"}}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FlattenParts(tt.parts); got != tt.want {
				t.Errorf("FlattenParts() = %q, want %q", got, tt.want)
			}
		})
	}
}
