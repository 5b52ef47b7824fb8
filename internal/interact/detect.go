// Package interact detects structured interaction requests embedded in
// assistant messages and renders them as user-facing prompts. An assistant
// message either carries exactly one interaction request or is plain prose.
package interact

import (
	"encoding/json"
	"strings"
)

// TypeConfirmation is the special-cased interaction type with its own
// response flow keyed by confirmation id.
const TypeConfirmation = "confirmation"

// Request is an interaction request parsed out of an assistant message.
// Transient: recomputed from message content on demand, never stored.
type Request struct {
	Type string
	Data json.RawMessage
}

// legacyTypes maps legacy AGENT_* type constants to canonical type tags.
// AGENT_CONFIRMATION_REQUEST is handled by its own precedence rule.
var legacyTypes = map[string]string{
	"AGENT_MULTIPLE_CHOICE":        "multiple_choice",
	"AGENT_FILE_UPLOAD":            "file_upload",
	"AGENT_PROGRESS_TRACKER":       "progress_tracker",
	"AGENT_DATA_TABLE":             "data_table",
	"AGENT_DYNAMIC_FORM":           "dynamic_form",
	"AGENT_UPDATE_FORM":            "update_form",
	"AGENT_DATE_TIME_PICKER":       "date_time_picker",
	"AGENT_SLIDER_INPUT":           "slider_input",
	"AGENT_PRIORITY_RANKING":       "priority_ranking",
	"AGENT_CODE_REVIEW":            "code_review",
	"AGENT_IMAGE_ANNOTATION":       "image_annotation",
	"AGENT_SEARCHABLE_SELECTION":   "searchable_selection",
	"AGENT_HIERARCHICAL_SELECTION": "hierarchical_selection",
	"AGENT_AUTOCOMPLETE_SELECTION": "autocomplete_selection",
	"AGENT_COMPARISON_VIEW":        "comparison_view",
	"AGENT_BULK_ACTION_SELECTOR":   "bulk_action_selector",
	"AGENT_DASHBOARD_BUILDER":      "dashboard_builder",
	"AGENT_MASTER_DETAIL_TABLE":    "master_detail_table",
	"AGENT_ALERT_MANAGER":          "alert_manager",
	"AGENT_TASK_ASSIGNMENT":        "task_assignment",
	"AGENT_COMMENT_THREAD":         "comment_thread",
	"AGENT_APPROVAL_WORKFLOW":      "approval_workflow",
	"AGENT_WIZARD_FLOW":            "wizard_flow",
	"AGENT_REPORT_BUILDER":         "report_builder",
	"AGENT_DATA_VISUALIZATION":     "data_visualization",
	"AGENT_TIMELINE_ACTIVITY":      "timeline_activity",
	"AGENT_KANBAN_BOARD":           "kanban_board",
}

// typeProbe extracts the classification fields from a parsed block.
type typeProbe struct {
	InteractionType *string `json:"interaction_type"`
	Type            string  `json:"type"`
}

// Detect scans message content for an interaction request. Fenced JSON
// blocks are tried first, in order; the first block that classifies wins
// and later blocks are not inspected. If no fenced block matches, the
// whole trimmed content is tried as a single JSON document. All parse
// failures are swallowed; a nil return means plain prose.
func Detect(content string) *Request {
	for _, block := range jsonBlocks(content) {
		if req := classify([]byte(block)); req != nil {
			return req
		}
	}

	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		return classify([]byte(trimmed))
	}
	return nil
}

// classify applies the precedence rules to one candidate JSON document:
//  1. interaction_type == "confirmation_request" → confirmation
//  2. legacy type == "AGENT_CONFIRMATION_REQUEST" → confirmation
//  3. interaction_type present → used verbatim
//  4. legacy AGENT_* allow-list → stripped and lower-cased
//
// Returns nil for unparseable JSON or documents matching no rule.
func classify(data []byte) *Request {
	var probe typeProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil
	}

	if probe.InteractionType != nil && *probe.InteractionType == "confirmation_request" {
		return &Request{Type: TypeConfirmation, Data: json.RawMessage(data)}
	}
	if probe.Type == "AGENT_CONFIRMATION_REQUEST" {
		return &Request{Type: TypeConfirmation, Data: json.RawMessage(data)}
	}
	if probe.InteractionType != nil && *probe.InteractionType != "" {
		return &Request{Type: *probe.InteractionType, Data: json.RawMessage(data)}
	}
	if canonical, ok := legacyTypes[probe.Type]; ok {
		return &Request{Type: canonical, Data: json.RawMessage(data)}
	}
	return nil
}

// jsonBlocks returns the bodies of all fenced code blocks tagged json
// (case-insensitive), in document order.
func jsonBlocks(content string) []string {
	var blocks []string
	rest := content
	for {
		start := strings.Index(rest, "```")
		if start < 0 {
			return blocks
		}
		rest = rest[start+3:]

		nl := strings.IndexByte(rest, '\n')
		if nl < 0 {
			return blocks
		}
		tag := strings.TrimSpace(rest[:nl])
		rest = rest[nl+1:]

		end := strings.Index(rest, "```")
		if end < 0 {
			return blocks
		}
		body := rest[:end]
		rest = rest[end+3:]

		if strings.EqualFold(tag, "json") {
			blocks = append(blocks, strings.TrimSpace(body))
		}
	}
}

// ConfirmationID extracts the confirmation_id from a confirmation payload.
// Empty when the payload has none.
func ConfirmationID(data json.RawMessage) string {
	var probe struct {
		ConfirmationID string `json:"confirmation_id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return ""
	}
	return probe.ConfirmationID
}
