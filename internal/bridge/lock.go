package bridge

import (
	"fmt"
	"time"

	"github.com/taskwire/taskwire/internal/models"
	"gorm.io/gorm"
)

// DefaultHeartbeatTimeout is the duration after which a conversation's
// activity timestamp is considered stale and the thread can be reclaimed.
const DefaultHeartbeatTimeout = 90 * time.Second

// AcquireConversation claims a chat thread for the gateway conversation
// identified by sessionID. It first expires any stale active conversations
// on the thread (last activity older than timeout), then checks for a live
// one. If no active conversation exists, a new row is created.
//
// Returns the new Conversation on success, or an error if an active
// conversation already holds the thread.
func AcquireConversation(db *gorm.DB, source, userName, threadID, channelID, sessionID string, timeout time.Duration) (*models.Conversation, error) {
	if timeout <= 0 {
		timeout = DefaultHeartbeatTimeout
	}

	var conv *models.Conversation

	err := db.Transaction(func(tx *gorm.DB) error {
		cutoff := time.Now().Add(-timeout)

		// Expire stale active conversations on this thread/channel.
		if err := tx.Model(&models.Conversation{}).
			Where("status = ? AND last_activity < ? AND thread_id = ? AND channel_id = ?",
				"active", cutoff, threadID, channelID).
			Updates(map[string]interface{}{
				"status":    "expired",
				"closed_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("expire stale conversations: %w", err)
		}

		// Check for an existing active conversation on this thread/channel.
		var existing models.Conversation
		result := tx.Where("status = ? AND thread_id = ? AND channel_id = ?",
			"active", threadID, channelID).First(&existing)
		if result.Error == nil {
			return fmt.Errorf("thread held by %q (conversation %d)", existing.UserName, existing.ID)
		}
		if result.Error != gorm.ErrRecordNotFound {
			return fmt.Errorf("check existing conversation: %w", result.Error)
		}

		conv = &models.Conversation{
			SessionID:    sessionID,
			Source:       source,
			UserName:     userName,
			ThreadID:     threadID,
			ChannelID:    channelID,
			Status:       "active",
			LastActivity: time.Now(),
		}
		if err := tx.Create(conv).Error; err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: acquire conversation: %w", err)
	}
	return conv, nil
}

// ReleaseConversation marks the conversation as closed and sets ClosedAt.
func ReleaseConversation(db *gorm.DB, conversationID uint) error {
	now := time.Now()
	result := db.Model(&models.Conversation{}).
		Where("id = ? AND status = ?", conversationID, "active").
		Updates(map[string]interface{}{
			"status":    "closed",
			"closed_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("bridge: release conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("bridge: release conversation: %d not found or not active", conversationID)
	}
	return nil
}

// TouchConversation refreshes the LastActivity timestamp for an active
// conversation.
func TouchConversation(db *gorm.DB, conversationID uint) error {
	result := db.Model(&models.Conversation{}).
		Where("id = ? AND status = ?", conversationID, "active").
		Update("last_activity", time.Now())
	if result.Error != nil {
		return fmt.Errorf("bridge: touch conversation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("bridge: touch conversation: %d not found or not active", conversationID)
	}
	return nil
}
