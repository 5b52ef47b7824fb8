package interact

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AllTypes enumerates every interaction type the gateway can request.
// The registry must cover all of them; Validate enforces this at startup.
var AllTypes = []string{
	TypeConfirmation,
	"multiple_choice",
	"file_upload",
	"progress_tracker",
	"data_table",
	"dynamic_form",
	"update_form",
	"date_time_picker",
	"slider_input",
	"priority_ranking",
	"code_review",
	"image_annotation",
	"searchable_selection",
	"hierarchical_selection",
	"autocomplete_selection",
	"comparison_view",
	"bulk_action_selector",
	"dashboard_builder",
	"master_detail_table",
	"alert_manager",
	"task_assignment",
	"comment_thread",
	"approval_workflow",
	"wizard_flow",
	"report_builder",
	"data_visualization",
	"timeline_activity",
	"kanban_board",
}

// RenderFunc formats an interaction payload as a user-facing text prompt.
type RenderFunc func(data json.RawMessage) string

// Renderer describes how one interaction type is presented.
type Renderer struct {
	Label  string // short human name shown as the prompt header
	Render RenderFunc
}

// Registry maps interaction type tags to renderers.
type Registry map[string]Renderer

// NewRegistry builds the default registry covering all known types.
func NewRegistry() Registry {
	r := Registry{
		TypeConfirmation:   {Label: "Confirmation required", Render: renderConfirmation},
		"multiple_choice":  {Label: "Choose an option", Render: renderChoices},
		"data_table":       {Label: "Review table", Render: renderDataTable},
		"dynamic_form":     {Label: "Fill in form", Render: renderForm},
		"update_form":      {Label: "Update form", Render: renderForm},
		"date_time_picker": {Label: "Pick a date/time", Render: renderGeneric},
		"slider_input":     {Label: "Pick a value", Render: renderSlider},
		"priority_ranking": {Label: "Rank items", Render: renderChoices},
		"file_upload":      {Label: "Upload requested", Render: renderGeneric},
		"progress_tracker": {Label: "Progress", Render: renderGeneric},
	}

	// The remaining types share the generic renderer; each still has its
	// own entry so unknown tags stay distinguishable from known ones.
	generic := map[string]string{
		"code_review":            "Review code",
		"image_annotation":       "Annotate image",
		"searchable_selection":   "Search and select",
		"hierarchical_selection": "Select from tree",
		"autocomplete_selection": "Select with autocomplete",
		"comparison_view":        "Compare options",
		"bulk_action_selector":   "Select bulk action",
		"dashboard_builder":      "Build dashboard",
		"master_detail_table":    "Review records",
		"alert_manager":          "Manage alerts",
		"task_assignment":        "Assign task",
		"comment_thread":         "Comment thread",
		"approval_workflow":      "Approval required",
		"wizard_flow":            "Step-by-step input",
		"report_builder":         "Build report",
		"data_visualization":     "Review chart",
		"timeline_activity":      "Review timeline",
		"kanban_board":           "Review board",
	}
	for typ, label := range generic {
		r[typ] = Renderer{Label: label, Render: renderGeneric}
	}
	return r
}

// Validate checks that every enumerated interaction type has a renderer.
func (r Registry) Validate() error {
	var missing []string
	for _, typ := range AllTypes {
		if _, ok := r[typ]; ok {
			continue
		}
		missing = append(missing, typ)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("interact: registry missing renderers for: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RenderPrompt formats a detected request as a text prompt. The boolean is
// false for unrecognized types, for which callers fall back to plain text.
func (r Registry) RenderPrompt(req *Request) (string, bool) {
	renderer, ok := r[req.Type]
	if !ok {
		return "", false
	}
	body := renderer.Render(req.Data)
	if body == "" {
		return renderer.Label, true
	}
	return renderer.Label + "\n" + body, true
}

// payloadFields are the prompt-relevant fields common across payloads.
type payloadFields struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Prompt      string            `json:"prompt"`
	Options     []json.RawMessage `json:"options"`
	Min         *float64          `json:"min"`
	Max         *float64          `json:"max"`
	Columns     []string          `json:"columns"`
	Fields      []struct {
		Name  string `json:"name"`
		Label string `json:"label"`
	} `json:"fields"`
}

func parseFields(data json.RawMessage) payloadFields {
	var f payloadFields
	json.Unmarshal(data, &f) // best-effort; empty fields render as nothing
	return f
}

func renderConfirmation(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	b.WriteString("Reply yes to proceed or no to cancel.")
	return b.String()
}

func renderChoices(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	for i, opt := range f.Options {
		b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, optionLabel(opt)))
	}
	if len(f.Options) > 0 {
		b.WriteString("Reply with the number of your choice.")
	}
	return b.String()
}

func renderDataTable(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	if len(f.Columns) > 0 {
		b.WriteString("Columns: " + strings.Join(f.Columns, ", "))
	}
	return b.String()
}

func renderForm(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	for _, field := range f.Fields {
		label := field.Label
		if label == "" {
			label = field.Name
		}
		b.WriteString("  - " + label + "\n")
	}
	if len(f.Fields) > 0 {
		b.WriteString("Reply with one value per field.")
	}
	return b.String()
}

func renderSlider(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	if f.Min != nil && f.Max != nil {
		b.WriteString(fmt.Sprintf("Reply with a value between %g and %g.", *f.Min, *f.Max))
	}
	return b.String()
}

func renderGeneric(data json.RawMessage) string {
	f := parseFields(data)
	var b strings.Builder
	writeHeadline(&b, f)
	return strings.TrimRight(b.String(), "\n")
}

// writeHeadline emits the title/description/prompt lines present in the
// payload, each followed by a newline.
func writeHeadline(b *strings.Builder, f payloadFields) {
	for _, line := range []string{f.Title, f.Description, f.Prompt} {
		if line != "" {
			b.WriteString(line + "\n")
		}
	}
}

// optionLabel renders one option, which may be a bare string or an object
// with a label/value field.
func optionLabel(opt json.RawMessage) string {
	var s string
	if err := json.Unmarshal(opt, &s); err == nil {
		return s
	}
	var obj struct {
		Label string `json:"label"`
		Value string `json:"value"`
		Name  string `json:"name"`
	}
	if err := json.Unmarshal(opt, &obj); err == nil {
		for _, cand := range []string{obj.Label, obj.Name, obj.Value} {
			if cand != "" {
				return cand
			}
		}
	}
	return strings.TrimSpace(string(opt))
}
