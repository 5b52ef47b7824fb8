// Package notify delivers best-effort desktop notifications for task
// lifecycle events.
package notify

import (
	"log"
	"os"
	"os/exec"
	"strings"

	"github.com/taskwire/taskwire/internal/config"
)

// Notifier sends desktop notifications via a configured shell command
// template. Delivery is best-effort: errors are logged, not returned.
type Notifier struct {
	command string
}

// New builds a Notifier from config. An empty command disables the shell
// path; tmux display-message still fires when running inside tmux.
func New(cfg config.NotifyConfig) *Notifier {
	return &Notifier{command: cfg.Command}
}

// Notify announces an event. Implements the research.Notifier contract.
func (n *Notifier) Notify(event, detail string) {
	if n.command != "" {
		cmdStr := templateCommand(n.command, event, detail)
		cmd := exec.Command("sh", "-c", cmdStr)
		if out, err := cmd.CombinedOutput(); err != nil {
			log.Printf("notify: command failed: %v: %s", err, strings.TrimSpace(string(out)))
		}
	}

	// If inside tmux, also display a tmux message.
	if os.Getenv("TMUX") != "" {
		cmd := exec.Command("tmux", "display-message", event+": "+detail)
		if err := cmd.Run(); err != nil {
			log.Printf("notify: tmux display-message failed: %v", err)
		}
	}
}

// templateCommand replaces placeholders in the command template.
func templateCommand(command, event, detail string) string {
	r := strings.NewReplacer(
		"{{.Subject}}", event,
		"{{.Body}}", detail,
	)
	return r.Replace(command)
}
