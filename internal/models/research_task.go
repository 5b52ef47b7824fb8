package models

import "time"

// ResearchTask records the lifecycle of a long-running gateway task. The
// poller updates Progress/Phase/Attempts as it observes the task and writes
// exactly one terminal state.
type ResearchTask struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	TaskID         string `gorm:"size:64;uniqueIndex;not null"` // gateway task id
	ConversationID *uint  `gorm:"index"`
	Topic          string `gorm:"type:text;not null"`
	Depth          string `gorm:"size:16;default:standard"`
	AudienceType   string `gorm:"size:32"`

	State    string `gorm:"size:16;default:working;index"` // working, completed, failed, timed_out
	Progress int    `gorm:"default:0"`                     // 0-100
	Phase    string `gorm:"size:32"`                       // search, analyze, synthesize, or raw
	Attempts int    `gorm:"default:0"`

	ResultJSON   string `gorm:"type:mediumtext"` // final result payload, JSON-encoded
	ErrorMessage string `gorm:"type:text"`

	SubmittedAt time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// ScheduledRun records one execution of a configured recurring research job.
type ScheduledRun struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	ScheduleName string `gorm:"size:64;not null;index"`
	TaskID       string `gorm:"size:64"`
	Status       string `gorm:"size:16;default:running"` // running, completed, failed
	Error        string `gorm:"type:text"`
	StartedAt    time.Time
	FinishedAt   *time.Time
}
