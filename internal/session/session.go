// Package session maintains the client-side view of one gateway
// conversation: an insertion-ordered message map, work-item counts, and the
// activity timestamps the poll engine and inactivity monitor decide on.
package session

import (
	"strings"
	"sync"
	"time"

	"github.com/taskwire/taskwire/internal/gateway"
)

// Message roles after normalization.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one merged conversation message. Immutable once stored.
type ChatMessage struct {
	ID      string
	Role    string // RoleUser or RoleAssistant
	Content string
}

// Session holds the client-side state of one conversation. All methods are
// safe for concurrent use; overlapping poll cycles may touch it at once.
type Session struct {
	id string

	mu       sync.RWMutex
	order    []string               // message ids in insertion order
	messages map[string]ChatMessage // id -> message

	pendingCount int
	taskCount    int
	eventCount   int

	lastUpdated  time.Time
	lastActivity time.Time
}

// New creates a Session for a gateway conversation id.
func New(id string, now time.Time) *Session {
	return &Session{
		id:           id,
		messages:     make(map[string]ChatMessage),
		lastUpdated:  now,
		lastActivity: now,
	}
}

// ID returns the gateway conversation id.
func (s *Session) ID() string { return s.id }

// Merge folds server messages into the session. Messages are filtered to
// this session (untagged messages belong by default), normalized to
// user/assistant roles, and flattened to text. Empty messages and ids
// already present are skipped, making the merge idempotent. Returns the
// messages actually added, in order.
func (s *Session) Merge(serverMsgs []gateway.Message) []ChatMessage {
	var added []ChatMessage

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range serverMsgs {
		if m.ContextID != "" && m.ContextID != s.id {
			continue
		}
		if m.MessageID == "" {
			continue
		}
		if _, exists := s.messages[m.MessageID]; exists {
			continue
		}

		content := gateway.FlattenParts(m.Parts)
		if strings.TrimSpace(content) == "" {
			continue
		}

		role := RoleUser
		if m.Role == "agent" {
			role = RoleAssistant
		}

		msg := ChatMessage{ID: m.MessageID, Role: role, Content: content}
		s.messages[m.MessageID] = msg
		s.order = append(s.order, m.MessageID)
		added = append(added, msg)
	}

	return added
}

// AddLocal inserts a locally-originated message (e.g. the user's own text
// before the server echoes it). Same dedup rule as Merge.
func (s *Session) AddLocal(msg ChatMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return false
	}
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	return true
}

// Messages returns all messages in insertion order.
func (s *Session) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ChatMessage, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.messages[id])
	}
	return out
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastAssistantMessage returns the most recent assistant message, if any.
func (s *Session) LastAssistantMessage() (ChatMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if m := s.messages[s.order[i]]; m.Role == RoleAssistant {
			return m, true
		}
	}
	return ChatMessage{}, false
}

// SetCounts overwrites the work-item counts. Counts are idempotent
// overwrites; a stale cycle writing after a fresh one self-corrects on the
// next cycle.
func (s *Session) SetCounts(pending, tasks, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCount = pending
	s.taskCount = tasks
	s.eventCount = events
}

// Counts returns (pending, tasks, events).
func (s *Session) Counts() (int, int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCount, s.taskCount, s.eventCount
}

// HasInFlightWork reports whether any pending deliveries or tasks exist.
// The inactivity monitor never closes a session while this is true.
func (s *Session) HasInFlightWork() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCount > 0 || s.taskCount > 0
}

// Touch records user or server activity at the given time.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

// MarkUpdated records a completed poll cycle at the given time.
func (s *Session) MarkUpdated(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUpdated = now
}

// LastActivity returns the time of the last user action or observed change.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// LastUpdated returns the time of the last completed poll cycle.
func (s *Session) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}
