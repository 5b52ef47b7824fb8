package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/models"
)

// taskEvent is the SSE payload for a research task progress change.
type taskEvent struct {
	TaskID   string `json:"task_id"`
	Topic    string `json:"topic"`
	State    string `json:"state"`
	Progress int    `json:"progress"`
	Phase    string `json:"phase"`
}

// sessionEvent is the SSE payload for session activity.
type sessionEvent struct {
	SessionID    string `json:"session_id"`
	Source       string `json:"source"`
	Status       string `json:"status"`
	PendingCount int    `json:"pending_count"`
	ActiveCount  int64  `json:"active_count"`
}

// taskSnapshot is what we compare between polls to detect change.
type taskSnapshot struct {
	state    string
	progress int
	phase    string
}

// handleSSE streams task progress and session activity changes. The handler
// polls the database rather than holding references into the poll engine, so
// it works the same whether the daemon and dashboard share a process or not.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// Tests exercise the headers and handshake with a nil DB.
		if db == nil {
			return
		}

		seenTasks := snapshotTasks(db)
		seenActivity := make(map[string]time.Time)

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				flushed := false

				// Task progress changes.
				var tasks []models.ResearchTask
				db.Where("state = ? OR completed_at >= ?", "working", time.Now().Add(-time.Minute)).
					Find(&tasks)
				for _, t := range tasks {
					snap := taskSnapshot{state: t.State, progress: t.Progress, phase: t.Phase}
					if seenTasks[t.TaskID] == snap {
						continue
					}
					seenTasks[t.TaskID] = snap
					writeSSE(c.Writer, "task", taskEvent{
						TaskID:   t.TaskID,
						Topic:    t.Topic,
						State:    t.State,
						Progress: t.Progress,
						Phase:    t.Phase,
					})
					flushed = true
				}

				// Session activity changes.
				var activeCount int64
				db.Model(&models.Conversation{}).Where("status = ?", "active").Count(&activeCount)
				var convs []models.Conversation
				db.Where("status = ?", "active").Find(&convs)
				for _, cv := range convs {
					if last, ok := seenActivity[cv.SessionID]; ok && !cv.LastActivity.After(last) {
						continue
					}
					seenActivity[cv.SessionID] = cv.LastActivity
					writeSSE(c.Writer, "session", sessionEvent{
						SessionID:    cv.SessionID,
						Source:       cv.Source,
						Status:       cv.Status,
						PendingCount: cv.PendingCount,
						ActiveCount:  activeCount,
					})
					flushed = true
				}

				if flushed {
					c.Writer.Flush()
				}
			}
		}
	}
}

// snapshotTasks records the current task states so only changes stream.
func snapshotTasks(db *gorm.DB) map[string]taskSnapshot {
	seen := make(map[string]taskSnapshot)
	var tasks []models.ResearchTask
	db.Find(&tasks)
	for _, t := range tasks {
		seen[t.TaskID] = taskSnapshot{state: t.State, progress: t.Progress, phase: t.Phase}
	}
	return seen
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
