package research

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/models"
)

// TaskStore persists the research task lifecycle.
type TaskStore struct {
	db *gorm.DB
}

// NewTaskStore returns a store backed by db.
func NewTaskStore(db *gorm.DB) (*TaskStore, error) {
	if db == nil {
		return nil, fmt.Errorf("research: db is required")
	}
	return &TaskStore{db: db}, nil
}

// Create records a newly submitted task.
func (s *TaskStore) Create(taskID, topic, depth, audienceType string, conversationID *uint) (*models.ResearchTask, error) {
	task := &models.ResearchTask{
		TaskID:         taskID,
		ConversationID: conversationID,
		Topic:          topic,
		Depth:          depth,
		AudienceType:   audienceType,
		State:          StateWorking,
		SubmittedAt:    time.Now(),
	}
	if err := s.db.Create(task).Error; err != nil {
		return nil, fmt.Errorf("research: create task %s: %w", taskID, err)
	}
	return task, nil
}

// RecordProgress updates the running progress snapshot for a task.
func (s *TaskStore) RecordProgress(taskID string, u Update) error {
	err := s.db.Model(&models.ResearchTask{}).
		Where("task_id = ?", taskID).
		Updates(map[string]interface{}{
			"progress": u.Progress,
			"phase":    u.Phase,
			"attempts": u.Attempt,
		}).Error
	if err != nil {
		return fmt.Errorf("research: record progress for %s: %w", taskID, err)
	}
	return nil
}

// RecordResult writes the terminal outcome of a poll loop.
func (s *TaskStore) RecordResult(taskID string, res Result) error {
	now := time.Now()
	updates := map[string]interface{}{
		"state":    res.State,
		"progress": res.Progress,
		"phase":    res.Phase,
		"attempts": res.Attempts,
	}
	switch res.State {
	case StateCompleted:
		updates["result_json"] = string(res.Result)
		updates["completed_at"] = &now
	case StateFailed, StateTimedOut:
		updates["error_message"] = res.Message
		updates["completed_at"] = &now
	}
	err := s.db.Model(&models.ResearchTask{}).
		Where("task_id = ?", taskID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("research: record result for %s: %w", taskID, err)
	}
	return nil
}

// Get returns the stored task by gateway task id.
func (s *TaskStore) Get(taskID string) (*models.ResearchTask, error) {
	var task models.ResearchTask
	if err := s.db.Where("task_id = ?", taskID).First(&task).Error; err != nil {
		return nil, fmt.Errorf("research: load task %s: %w", taskID, err)
	}
	return &task, nil
}

// Active returns tasks that have not reached a terminal state.
func (s *TaskStore) Active() ([]models.ResearchTask, error) {
	var tasks []models.ResearchTask
	if err := s.db.Where("state = ?", StateWorking).Order("submitted_at").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("research: list active tasks: %w", err)
	}
	return tasks, nil
}

// Recent returns the most recently submitted tasks, newest first.
func (s *TaskStore) Recent(limit int) ([]models.ResearchTask, error) {
	var tasks []models.ResearchTask
	if err := s.db.Order("submitted_at DESC").Limit(limit).Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("research: list recent tasks: %w", err)
	}
	return tasks, nil
}
