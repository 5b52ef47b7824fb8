package bridge

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/research"
)

// ResearchStarter launches a deep-research task for a chat channel. The
// result is delivered asynchronously to the channel/thread when the task
// reaches a terminal state.
type ResearchStarter interface {
	StartResearch(ctx context.Context, topic, channelID, threadID string) error
}

// CommandHandler processes read-only "!tw" commands from chat, plus the
// "research" command which launches a background task.
type CommandHandler struct {
	db       *gorm.DB
	tasks    *research.TaskStore
	research ResearchStarter // optional; nil disables "!tw research"
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	DB       *gorm.DB
	Tasks    *research.TaskStore
	Research ResearchStarter
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: command handler: db is required")
	}
	if opts.Tasks == nil {
		return nil, fmt.Errorf("bridge: command handler: task store is required")
	}
	return &CommandHandler{
		db:       opts.DB,
		tasks:    opts.Tasks,
		research: opts.Research,
	}, nil
}

// Execute parses and executes a "!tw" command string. Returns the
// response text to send back to the chat channel.
func (ch *CommandHandler) Execute(ctx context.Context, msg InboundMessage, text string) string {
	args := parseCommand(text)
	if len(args) == 0 {
		return ch.helpText()
	}

	switch args[0] {
	case "status":
		return ch.cmdStatus()
	case "tasks":
		return ch.cmdTasks()
	case "sessions":
		return ch.cmdSessions()
	case "research":
		return ch.cmdResearch(ctx, msg, args[1:])
	case "help":
		return ch.helpText()
	default:
		return fmt.Sprintf("Unknown command: `%s`\n\n%s", args[0], ch.helpText())
	}
}

// parseCommand strips the "!tw" prefix and splits the remaining text.
func parseCommand(text string) []string {
	text = strings.TrimSpace(text)
	if text == commandPrefix {
		return nil
	}
	text = strings.TrimPrefix(text, commandPrefix+" ")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return strings.Fields(text)
}

// cmdStatus summarizes active conversations and running tasks.
func (ch *CommandHandler) cmdStatus() string {
	var active, pending int64
	ch.db.Model(&models.Conversation{}).Where("status = ?", "active").Count(&active)
	ch.db.Model(&models.Conversation{}).Where("status = ? AND pending_count > 0", "active").Count(&pending)

	running, err := ch.tasks.Active()
	if err != nil {
		return fmt.Sprintf("Error getting status: %v", err)
	}

	var b strings.Builder
	b.WriteString("**Taskwire Status**\n")
	fmt.Fprintf(&b, "Active conversations: %d (%d with pending deliveries)\n", active, pending)
	fmt.Fprintf(&b, "Research tasks running: %d\n", len(running))
	for _, task := range running {
		fmt.Fprintf(&b, "  %s — %s (%d%%, %s)\n", task.TaskID, truncate(task.Topic, 40), task.Progress, orDash(task.Phase))
	}
	return b.String()
}

// cmdTasks lists recent research tasks.
func (ch *CommandHandler) cmdTasks() string {
	tasks, err := ch.tasks.Recent(10)
	if err != nil {
		return fmt.Sprintf("Error listing tasks: %v", err)
	}
	if len(tasks) == 0 {
		return "No research tasks yet."
	}
	return formatTaskTable(tasks)
}

// cmdSessions lists recent conversations.
func (ch *CommandHandler) cmdSessions() string {
	var convs []models.Conversation
	if err := ch.db.Order("last_activity DESC").Limit(10).Find(&convs).Error; err != nil {
		return fmt.Sprintf("Error listing sessions: %v", err)
	}
	if len(convs) == 0 {
		return "No conversations yet."
	}
	return formatConversationTable(convs)
}

// cmdResearch launches a deep-research task for the requesting thread.
func (ch *CommandHandler) cmdResearch(ctx context.Context, msg InboundMessage, args []string) string {
	if ch.research == nil {
		return "Research tasks are not enabled on this bridge."
	}
	topic := strings.TrimSpace(strings.Join(args, " "))
	if topic == "" {
		return "Usage: `!tw research <topic>`"
	}
	if err := ch.research.StartResearch(ctx, topic, msg.ChannelID, msg.ThreadID); err != nil {
		return fmt.Sprintf("Error starting research: %v", err)
	}
	return fmt.Sprintf("Research started: %q. I'll post the report here when it's ready.", topic)
}

// helpText returns usage information for all commands.
func (ch *CommandHandler) helpText() string {
	return "**Taskwire Commands**\n" +
		"`!tw status` — Conversations and running tasks\n" +
		"`!tw tasks` — Recent research tasks\n" +
		"`!tw sessions` — Recent conversations\n" +
		"`!tw research <topic>` — Start a deep-research task\n" +
		"`!tw help` — This message"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
