// Package models defines the GORM models for Taskwire's transcript store.
package models

import "time"

// Conversation tracks a single gateway conversation: one open chat session
// from the CLI, a bridged chat thread, or a scheduled job. The inactivity
// monitor uses LastActivity to decide when a session may be closed.
type Conversation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID string `gorm:"size:64;uniqueIndex;not null"` // gateway conversation_id
	Source    string `gorm:"size:16;not null;index"`       // "cli", "bridge", "schedule"
	UserName  string `gorm:"size:64"`
	ChannelID string `gorm:"size:128;index:idx_channel_thread"` // bridge only
	ThreadID  string `gorm:"size:128;index:idx_channel_thread"` // bridge only
	Status    string `gorm:"size:16;default:active;index"`      // active, closed, expired

	PendingCount int `gorm:"default:0"`
	TaskCount    int `gorm:"default:0"`
	EventCount   int `gorm:"default:0"`

	LastActivity time.Time `gorm:"index"`
	CreatedAt    time.Time
	ClosedAt     *time.Time

	Messages []ConversationMessage `gorm:"foreignKey:ConversationID"`
}

// ConversationMessage stores a single merged message from a conversation.
// MessageID is the gateway's message id; the unique index makes replayed
// poll responses idempotent at the storage layer too.
type ConversationMessage struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID uint   `gorm:"not null;index"`
	MessageID      string `gorm:"size:128;uniqueIndex;not null"`
	Sequence       int    `gorm:"not null"`
	Role           string `gorm:"size:16;not null"` // "user" or "assistant"
	UserName       string `gorm:"size:64"`
	Content        string `gorm:"type:mediumtext;not null"`
	CreatedAt      time.Time

	Conversation Conversation `gorm:"foreignKey:ConversationID"`
}

// InteractionResponse records that a user has answered an interaction
// request carried by an assistant message. At most one row exists per
// message id; its presence disables the interaction permanently.
type InteractionResponse struct {
	ID              uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID  uint   `gorm:"not null;index"`
	MessageID       string `gorm:"size:128;uniqueIndex;not null"`
	InteractionType string `gorm:"size:48;not null"`
	Response        string `gorm:"type:text"`
	CreatedAt       time.Time
}
