package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/interact"
	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/session"
)

// chatGateway is the slice of the gateway client the chat REPL needs.
type chatGateway interface {
	session.Fetcher
	CreateConversation(ctx context.Context) (string, error)
	SendMessage(ctx context.Context, contextID, text string) error
}

func newChatCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation with the gateway agent",
		Long: `Opens a conversation, polls it for replies, and reads your messages from
stdin. Interaction requests embedded in agent replies are rendered as prompts;
your next message answers them. The session closes after three minutes of
inactivity, or on /quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			client, err := gatewayFromConfig(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return runChat(ctx, cmd, client, chatOpts{
				pollInterval: cfg.Gateway.PollInterval(),
				idleTimeout:  cfg.Gateway.InactivityTimeout(),
				db:           gormDB,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	return cmd
}

type chatOpts struct {
	pollInterval time.Duration
	idleTimeout  time.Duration
	db           *gorm.DB // optional transcript store
}

// chatRecorder persists the transcript so `tw sessions` can show history.
type chatRecorder struct {
	db     *gorm.DB
	convID uint

	mu  sync.Mutex
	seq int
}

func newChatRecorder(gormDB *gorm.DB, sessionID string) (*chatRecorder, error) {
	conv := models.Conversation{
		SessionID:    sessionID,
		Source:       "cli",
		Status:       "active",
		LastActivity: time.Now(),
	}
	if err := gormDB.Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}
	return &chatRecorder{db: gormDB, convID: conv.ID}, nil
}

func (r *chatRecorder) OnMessages(msgs []session.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.seq++
		row := models.ConversationMessage{
			ConversationID: r.convID,
			MessageID:      m.ID,
			Sequence:       r.seq,
			Role:           m.Role,
			Content:        m.Content,
		}
		if err := r.db.Create(&row).Error; err != nil {
			log.Printf("chat: record message: %v", err)
		}
	}
	r.db.Model(&models.Conversation{}).Where("id = ?", r.convID).
		Update("last_activity", time.Now())
}

func (r *chatRecorder) OnCounts(pending, tasks, events int) {
	r.db.Model(&models.Conversation{}).Where("id = ?", r.convID).Updates(map[string]interface{}{
		"pending_count": pending,
		"task_count":    tasks,
		"event_count":   events,
	})
}

func (r *chatRecorder) close(status string) {
	now := time.Now()
	r.db.Model(&models.Conversation{}).Where("id = ?", r.convID).Updates(map[string]interface{}{
		"status":    status,
		"closed_at": now,
	})
}

// multiSink fans engine callbacks out to several sinks.
type multiSink []session.Sink

func (m multiSink) OnMessages(msgs []session.ChatMessage) {
	for _, s := range m {
		s.OnMessages(msgs)
	}
}

func (m multiSink) OnCounts(pending, tasks, events int) {
	for _, s := range m {
		s.OnCounts(pending, tasks, events)
	}
}

// chatPrinter is the engine sink for the REPL: it prints assistant replies
// and renders any interaction request they carry.
type chatPrinter struct {
	out      io.Writer
	registry interact.Registry
	resp     *interact.Responder

	mu          sync.Mutex
	pendingKey  string
	pendingType string
	pendingData json.RawMessage
}

func (p *chatPrinter) OnMessages(msgs []session.ChatMessage) {
	for _, m := range msgs {
		if m.Role != session.RoleAssistant {
			continue
		}

		text := m.Content
		if req := interact.Detect(m.Content); req != nil {
			key := m.ID
			if req.Type == interact.TypeConfirmation {
				if id := interact.ConfirmationID(req.Data); id != "" {
					key = id
				}
			}
			if !p.resp.Responded(key) {
				if prompt, ok := p.registry.RenderPrompt(req); ok {
					text = prompt
				}
				p.mu.Lock()
				p.pendingKey = key
				p.pendingType = req.Type
				p.pendingData = req.Data
				p.mu.Unlock()
			}
		}

		fmt.Fprintf(p.out, "\nagent> %s\n", text)
	}
}

func (p *chatPrinter) OnCounts(pending, tasks, events int) {}

// takePending pops the pending interaction, if any.
func (p *chatPrinter) takePending() (key, typ string, data json.RawMessage, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pendingKey == "" {
		return "", "", nil, false
	}
	key, typ, data = p.pendingKey, p.pendingType, p.pendingData
	p.pendingKey, p.pendingType, p.pendingData = "", "", nil
	return key, typ, data, true
}

func runChat(ctx context.Context, cmd *cobra.Command, client chatGateway, opts chatOpts) error {
	out := cmd.OutOrStdout()

	registry := interact.NewRegistry()
	if err := registry.Validate(); err != nil {
		return err
	}

	sessionID, err := client.CreateConversation(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected. Session %s. Type /quit to exit.\n", sessionID)

	sess := session.New(sessionID, time.Now())

	responder, err := interact.NewResponder(interact.ResponderOpts{
		Send: func(ctx context.Context, text string) error {
			return client.SendMessage(ctx, sessionID, text)
		},
	})
	if err != nil {
		return err
	}

	printer := &chatPrinter{out: out, registry: registry, resp: responder}

	sink := session.Sink(printer)
	var recorder *chatRecorder
	if opts.db != nil {
		recorder, err = newChatRecorder(opts.db, sessionID)
		if err != nil {
			return err
		}
		defer recorder.close("closed")
		sink = multiSink{printer, recorder}
	}

	engine, err := session.NewEngine(session.EngineOpts{
		Client:   client,
		Session:  sess,
		Interval: opts.pollInterval,
		Sink:     sink,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	monitor, err := session.NewInactivityMonitor(session.InactivityOpts{
		Session:     sess,
		IdleTimeout: opts.idleTimeout,
		OnClose: func() {
			fmt.Fprintln(out, "\nSession closed after inactivity.")
			cancel()
		},
	})
	if err != nil {
		return err
	}

	go engine.Run(ctx)
	go monitor.Run(ctx)

	// Read user lines in a goroutine so inactivity close can interrupt the
	// prompt loop.
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "you> ")
		select {
		case <-ctx.Done():
			return nil
		case line, open := <-lines:
			if !open {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "/quit" || text == "/exit" {
				fmt.Fprintln(out, "Bye.")
				return nil
			}

			sess.Touch(time.Now())

			if key, typ, data, ok := printer.takePending(); ok {
				if err := answerInteraction(ctx, responder, key, typ, data, text); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
				continue
			}

			if err := client.SendMessage(ctx, sessionID, text); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// answerInteraction routes a typed reply to a pending interaction request.
func answerInteraction(ctx context.Context, r *interact.Responder, key, typ string, data json.RawMessage, reply string) error {
	var sent bool
	var err error
	if typ == interact.TypeConfirmation {
		sent, err = r.RespondConfirmation(ctx, key, data, isAffirmative(reply))
	} else {
		sent, err = r.Respond(ctx, key, typ, reply)
	}
	if err != nil {
		return err
	}
	if !sent {
		return fmt.Errorf("interaction already answered")
	}
	return nil
}

// isAffirmative interprets a free-text reply as confirmation approval.
func isAffirmative(reply string) bool {
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "yes", "y", "approve", "approved", "ok", "confirm":
		return true
	}
	return false
}
