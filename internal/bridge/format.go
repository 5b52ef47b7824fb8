package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/research"
)

// formatTaskTable formats research tasks as a monospace table.
func formatTaskTable(tasks []models.ResearchTask) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Research Tasks** (%d)\n", len(tasks))
	fmt.Fprintf(&b, "%-20s %-10s %-4s %-12s %s\n",
		"ID", "STATE", "PCT", "PHASE", "TOPIC")
	for _, t := range tasks {
		topic := t.Topic
		if len(topic) > 40 {
			topic = topic[:37] + "..."
		}
		fmt.Fprintf(&b, "%-20s %-10s %3d%% %-12s %s\n",
			t.TaskID, t.State, t.Progress, orDash(t.Phase), topic)
	}
	return b.String()
}

// formatConversationTable formats conversations as a monospace table.
func formatConversationTable(convs []models.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**Conversations** (%d)\n", len(convs))
	fmt.Fprintf(&b, "%-6s %-8s %-10s %-12s %-5s %s\n",
		"ID", "SOURCE", "STATUS", "USER", "PEND", "LAST ACTIVITY")
	for _, c := range convs {
		fmt.Fprintf(&b, "%-6d %-8s %-10s %-12s %-5d %s\n",
			c.ID, c.Source, c.Status, orDash(c.UserName), c.PendingCount,
			c.LastActivity.Format("2006-01-02 15:04"))
	}
	return b.String()
}

// researchReport holds the fields Taskwire surfaces from a completed
// research result. Everything else in the payload is passed through raw.
type researchReport struct {
	ExecutiveSummary string   `json:"executiveSummary"`
	KeyFindings      []string `json:"keyFindings"`
	Report           string   `json:"report"`
}

// FormatResearchOutcome renders a terminal research result for chat.
func FormatResearchOutcome(topic string, res research.Result) string {
	switch res.State {
	case research.StateCompleted:
		return formatResearchReport(topic, res.Result)
	case research.StateFailed:
		return fmt.Sprintf("Research on %q failed: %s", topic, res.Message)
	case research.StateTimedOut:
		return fmt.Sprintf("Research on %q: %s", topic, res.Message)
	default:
		return fmt.Sprintf("Research on %q finished in state %s.", topic, res.State)
	}
}

// formatResearchReport extracts the readable parts of a completed result.
// Unrecognized payloads fall back to the raw JSON.
func formatResearchReport(topic string, raw json.RawMessage) string {
	var report researchReport
	if err := json.Unmarshal(raw, &report); err != nil || (report.ExecutiveSummary == "" && report.Report == "") {
		return fmt.Sprintf("Research on %q completed.\n```\n%s\n```", topic, strings.TrimSpace(string(raw)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Research complete: %s**\n", topic)
	if report.ExecutiveSummary != "" {
		b.WriteString("\n")
		b.WriteString(report.ExecutiveSummary)
		b.WriteString("\n")
	}
	if len(report.KeyFindings) > 0 {
		b.WriteString("\nKey findings:\n")
		for _, f := range report.KeyFindings {
			fmt.Fprintf(&b, "• %s\n", f)
		}
	}
	if report.Report != "" {
		b.WriteString("\n")
		b.WriteString(report.Report)
		b.WriteString("\n")
	}
	return b.String()
}

// BuildDailyDigest summarizes the last 24 hours of activity. Returns ""
// when there was no activity, which suppresses the digest entirely.
func BuildDailyDigest(tasks []models.ResearchTask, convs []models.Conversation, now time.Time) string {
	if len(tasks) == 0 && len(convs) == 0 {
		return ""
	}

	var completed, failed, timedOut, working int
	for _, t := range tasks {
		switch t.State {
		case research.StateCompleted:
			completed++
		case research.StateFailed:
			failed++
		case research.StateTimedOut:
			timedOut++
		default:
			working++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Daily Digest — %s**\n", now.Format("Mon Jan 2"))
	fmt.Fprintf(&b, "Conversations: %d\n", len(convs))
	fmt.Fprintf(&b, "Research tasks: %d completed, %d failed, %d timed out, %d still running\n",
		completed, failed, timedOut, working)
	for _, t := range tasks {
		if t.State == research.StateCompleted {
			fmt.Fprintf(&b, "  ✓ %s\n", truncate(t.Topic, 60))
		}
	}
	return b.String()
}
