package dashboard

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/models"
)

// Overview holds the headline counts for the index page.
type Overview struct {
	ActiveSessions int64
	TotalSessions  int64
	WorkingTasks   int64
	CompletedTasks int64
	FailedTasks    int64 // failed + timed_out
	RunsToday      int64
}

// GetOverview returns headline counts for the index page.
func GetOverview(db *gorm.DB) (Overview, error) {
	var o Overview
	if db == nil {
		return o, fmt.Errorf("no database connection")
	}

	db.Model(&models.Conversation{}).Where("status = ?", "active").Count(&o.ActiveSessions)
	db.Model(&models.Conversation{}).Count(&o.TotalSessions)
	db.Model(&models.ResearchTask{}).Where("state = ?", "working").Count(&o.WorkingTasks)
	db.Model(&models.ResearchTask{}).Where("state = ?", "completed").Count(&o.CompletedTasks)
	db.Model(&models.ResearchTask{}).Where("state IN ?", []string{"failed", "timed_out"}).Count(&o.FailedTasks)
	db.Model(&models.ScheduledRun{}).Where("started_at >= ?", time.Now().Add(-24*time.Hour)).Count(&o.RunsToday)
	return o, nil
}

// TaskRow holds research task data for the list view.
type TaskRow struct {
	TaskID      string
	Topic       string
	State       string
	Progress    int
	Phase       string
	Attempts    int
	SubmittedAt time.Time
	Age         string
}

// TaskListResult holds the task list plus distinct states for the filter dropdown.
type TaskListResult struct {
	Tasks  []TaskRow
	States []string
}

// TaskList returns research tasks matching the optional state filter, newest first.
func TaskList(db *gorm.DB, state string) TaskListResult {
	if db == nil {
		return TaskListResult{Tasks: []TaskRow{}}
	}

	q := db.Model(&models.ResearchTask{})
	if state != "" {
		q = q.Where("state = ?", state)
	}

	var tasks []models.ResearchTask
	q.Order("submitted_at DESC").Limit(200).Find(&tasks)

	rows := make([]TaskRow, len(tasks))
	for i, t := range tasks {
		rows[i] = TaskRow{
			TaskID:      t.TaskID,
			Topic:       t.Topic,
			State:       t.State,
			Progress:    t.Progress,
			Phase:       t.Phase,
			Attempts:    t.Attempts,
			SubmittedAt: t.SubmittedAt,
			Age:         formatDuration(time.Since(t.SubmittedAt)),
		}
	}

	var states []string
	db.Model(&models.ResearchTask{}).Distinct("state").Order("state ASC").Pluck("state", &states)

	return TaskListResult{Tasks: rows, States: states}
}

// TaskDetail holds full research task data for the detail view.
type TaskDetail struct {
	TaskID       string
	Topic        string
	Depth        string
	AudienceType string
	State        string
	Progress     int
	Phase        string
	Attempts     int
	ResultJSON   string
	ErrorMessage string
	SubmittedAt  time.Time
	CompletedAt  *time.Time
	Duration     string

	SessionID string // linked conversation, if any
}

// GetTaskDetail returns full task data for the detail page.
func GetTaskDetail(db *gorm.DB, taskID string) (*TaskDetail, error) {
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	var t models.ResearchTask
	if err := db.Where("task_id = ?", taskID).First(&t).Error; err != nil {
		return nil, err
	}

	detail := &TaskDetail{
		TaskID:       t.TaskID,
		Topic:        t.Topic,
		Depth:        t.Depth,
		AudienceType: t.AudienceType,
		State:        t.State,
		Progress:     t.Progress,
		Phase:        t.Phase,
		Attempts:     t.Attempts,
		ResultJSON:   t.ResultJSON,
		ErrorMessage: t.ErrorMessage,
		SubmittedAt:  t.SubmittedAt,
		CompletedAt:  t.CompletedAt,
	}

	if t.CompletedAt != nil {
		detail.Duration = formatDuration(t.CompletedAt.Sub(t.SubmittedAt))
	} else {
		detail.Duration = formatDuration(time.Since(t.SubmittedAt))
	}

	if t.ConversationID != nil {
		var conv models.Conversation
		if err := db.Select("session_id").First(&conv, *t.ConversationID).Error; err == nil {
			detail.SessionID = conv.SessionID
		}
	}

	return detail, nil
}

// SessionRow holds conversation data for the list view.
type SessionRow struct {
	ID           uint
	SessionID    string
	Source       string
	UserName     string
	Status       string
	PendingCount int
	TaskCount    int
	LastActivity time.Time
	Idle         string
}

// SessionListResult holds the session list plus filter dropdown values.
type SessionListResult struct {
	Sessions []SessionRow
	Sources  []string
	Statuses []string
}

// SessionList returns conversations matching filters, most recently active first.
func SessionList(db *gorm.DB, source, status string) SessionListResult {
	if db == nil {
		return SessionListResult{Sessions: []SessionRow{}}
	}

	q := db.Model(&models.Conversation{})
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var convs []models.Conversation
	q.Order("last_activity DESC").Limit(200).Find(&convs)

	rows := make([]SessionRow, len(convs))
	for i, c := range convs {
		rows[i] = SessionRow{
			ID:           c.ID,
			SessionID:    c.SessionID,
			Source:       c.Source,
			UserName:     c.UserName,
			Status:       c.Status,
			PendingCount: c.PendingCount,
			TaskCount:    c.TaskCount,
			LastActivity: c.LastActivity,
			Idle:         formatDuration(time.Since(c.LastActivity)),
		}
	}

	var sources []string
	db.Model(&models.Conversation{}).Distinct("source").Order("source ASC").Pluck("source", &sources)
	var statuses []string
	db.Model(&models.Conversation{}).Distinct("status").Order("status ASC").Pluck("status", &statuses)

	return SessionListResult{Sessions: rows, Sources: sources, Statuses: statuses}
}

// TranscriptRow holds one message of a session transcript.
type TranscriptRow struct {
	Sequence  int
	Role      string
	UserName  string
	Content   string
	Answered  bool // an interaction on this message has been responded to
	CreatedAt time.Time
}

// SessionDetail holds full conversation data for the detail view.
type SessionDetail struct {
	ID           uint
	SessionID    string
	Source       string
	UserName     string
	ChannelID    string
	ThreadID     string
	Status       string
	PendingCount int
	TaskCount    int
	EventCount   int
	LastActivity time.Time
	CreatedAt    time.Time
	ClosedAt     *time.Time

	Transcript []TranscriptRow
	Tasks      []TaskRow
}

// GetSessionDetail returns full conversation data plus its transcript and
// any research tasks started from it.
func GetSessionDetail(db *gorm.DB, sessionID string) (*SessionDetail, error) {
	if db == nil {
		return nil, fmt.Errorf("no database connection")
	}

	var c models.Conversation
	if err := db.Where("session_id = ?", sessionID).First(&c).Error; err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		ID:           c.ID,
		SessionID:    c.SessionID,
		Source:       c.Source,
		UserName:     c.UserName,
		ChannelID:    c.ChannelID,
		ThreadID:     c.ThreadID,
		Status:       c.Status,
		PendingCount: c.PendingCount,
		TaskCount:    c.TaskCount,
		EventCount:   c.EventCount,
		LastActivity: c.LastActivity,
		CreatedAt:    c.CreatedAt,
		ClosedAt:     c.ClosedAt,
	}

	// Which message ids have answered interactions.
	answered := make(map[string]bool)
	var responses []models.InteractionResponse
	db.Where("conversation_id = ?", c.ID).Find(&responses)
	for _, r := range responses {
		answered[r.MessageID] = true
	}

	var msgs []models.ConversationMessage
	db.Where("conversation_id = ?", c.ID).Order("sequence ASC").Find(&msgs)
	detail.Transcript = make([]TranscriptRow, len(msgs))
	for i, m := range msgs {
		detail.Transcript[i] = TranscriptRow{
			Sequence:  m.Sequence,
			Role:      m.Role,
			UserName:  m.UserName,
			Content:   m.Content,
			Answered:  answered[m.MessageID],
			CreatedAt: m.CreatedAt,
		}
	}

	var tasks []models.ResearchTask
	db.Where("conversation_id = ?", c.ID).Order("submitted_at DESC").Find(&tasks)
	detail.Tasks = make([]TaskRow, len(tasks))
	for i, t := range tasks {
		detail.Tasks[i] = TaskRow{
			TaskID:      t.TaskID,
			Topic:       t.Topic,
			State:       t.State,
			Progress:    t.Progress,
			Phase:       t.Phase,
			SubmittedAt: t.SubmittedAt,
		}
	}

	return detail, nil
}

// RunRow holds a scheduled run for display.
type RunRow struct {
	ScheduleName string
	TaskID       string
	Status       string
	Error        string
	StartedAt    time.Time
	Duration     string
}

// RunList returns recent scheduled job runs, newest first.
func RunList(db *gorm.DB) []RunRow {
	if db == nil {
		return []RunRow{}
	}

	var runs []models.ScheduledRun
	db.Order("started_at DESC").Limit(100).Find(&runs)

	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = RunRow{
			ScheduleName: r.ScheduleName,
			TaskID:       r.TaskID,
			Status:       r.Status,
			Error:        r.Error,
			StartedAt:    r.StartedAt,
		}
		if r.FinishedAt != nil {
			rows[i].Duration = formatDuration(r.FinishedAt.Sub(r.StartedAt))
		}
	}
	return rows
}

// formatDuration formats a duration as a human-readable string like "2h 15m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		days := h / 24
		h = h % 24
		return fmt.Sprintf("%dd %dh", days, h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
