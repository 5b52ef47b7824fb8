package bridge

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/gateway"
	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/research"
)

// Gateway is the full client surface the daemon needs: conversation
// lifecycle, the four poll channels, and research submission.
type Gateway interface {
	GatewayClient
	SubmitResearch(ctx context.Context, req gateway.ResearchRequest) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (gateway.TaskStatus, error)
}

// Daemon is the main bridge process. It connects to a chat platform via an
// Adapter, pumps inbound messages to the router, and posts research
// outcomes and digests to configured channels.
type Daemon struct {
	db       *gorm.DB
	cfg      *config.Config
	adapter  Adapter
	client   Gateway
	tasks    *research.TaskStore
	notifier research.Notifier
	out      io.Writer

	runCtx context.Context
}

// DaemonOpts holds parameters for creating a new Daemon.
type DaemonOpts struct {
	DB       *gorm.DB
	Config   *config.Config
	Adapter  Adapter
	Client   Gateway
	Tasks    *research.TaskStore
	Notifier research.Notifier // optional
	Out      io.Writer         // defaults to os.Stdout
}

// NewDaemon creates a Daemon with the given options.
func NewDaemon(opts DaemonOpts) (*Daemon, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("bridge: db is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("bridge: config is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bridge: adapter is required")
	}
	if opts.Client == nil {
		return nil, fmt.Errorf("bridge: gateway client is required")
	}
	if opts.Tasks == nil {
		return nil, fmt.Errorf("bridge: task store is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Daemon{
		db:       opts.DB,
		cfg:      opts.Config,
		adapter:  opts.Adapter,
		client:   opts.Client,
		tasks:    opts.Tasks,
		notifier: opts.Notifier,
		out:      out,
	}, nil
}

// Run starts the bridge daemon. It connects the adapter, builds all
// subsystems (SessionManager, Router, digest scheduler), and blocks until
// the context is cancelled. On shutdown it closes the adapter gracefully.
func (d *Daemon) Run(ctx context.Context) error {
	d.runCtx = ctx

	fmt.Fprintf(d.out, "Taskwire bridge connecting...\n")
	if err := d.adapter.Connect(ctx); err != nil {
		return fmt.Errorf("bridge: connect: %w", err)
	}

	// Extract bot user ID if the adapter supports it.
	var botUserID string
	if bui, ok := d.adapter.(BotUserIDer); ok {
		botUserID = bui.BotUserID()
	}

	cmdHandler, err := NewCommandHandler(CommandHandlerOpts{
		DB:       d.db,
		Tasks:    d.tasks,
		Research: d,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: build command handler: %w", err)
	}

	sessionMgr, err := NewSessionManager(SessionManagerOpts{
		DB:           d.db,
		Adapter:      d.adapter,
		Client:       d.client,
		PollInterval: d.cfg.Gateway.PollInterval(),
		IdleTimeout:  d.cfg.Gateway.InactivityTimeout(),
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: build session manager: %w", err)
	}

	router, err := NewRouter(RouterOpts{
		SessionMgr: sessionMgr,
		CmdHandler: cmdHandler,
		Adapter:    d.adapter,
		BotUserID:  botUserID,
		Out:        d.out,
	})
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: build router: %w", err)
	}

	inbound, err := d.adapter.Listen(ctx)
	if err != nil {
		d.adapter.Close()
		return fmt.Errorf("bridge: listen: %w", err)
	}

	// Start digest scheduler goroutine.
	go d.runDigestScheduler(ctx)

	fmt.Fprintf(d.out, "Taskwire bridge online\n")

	if err := d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.announceChannel(),
		Text:      "Taskwire bridge online",
	}); err != nil {
		log.Printf("bridge: send online message: %v", err)
	}

	// Main event loop: pump inbound messages until context is cancelled.
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(d.out, "Taskwire bridge shutting down...\n")
			d.sendShutdown()
			if err := d.adapter.Close(); err != nil {
				log.Printf("bridge: close adapter: %v", err)
			}
			fmt.Fprintf(d.out, "Taskwire bridge stopped\n")
			return nil

		case msg, ok := <-inbound:
			if !ok {
				// Adapter closed the channel.
				fmt.Fprintf(d.out, "Taskwire bridge inbound channel closed\n")
				return nil
			}
			router.Handle(ctx, msg)
		}
	}
}

// StartResearch launches a deep-research task and posts the outcome to the
// requesting channel when it finishes. Implements ResearchStarter.
func (d *Daemon) StartResearch(ctx context.Context, topic, channelID, threadID string) error {
	runner, err := research.NewRunner(research.RunnerOpts{
		Client:       d.client,
		Store:        d.tasks,
		Notifier:     d.notifier,
		PollInterval: d.cfg.Gateway.TaskPollInterval(),
		MaxAttempts:  d.cfg.Gateway.TaskPollAttempts,
	})
	if err != nil {
		return err
	}

	runCtx := d.runCtx
	if runCtx == nil {
		runCtx = context.Background()
	}

	go func() {
		taskID, res, err := runner.Run(runCtx, gateway.ResearchRequest{Topic: topic, Depth: "standard"})
		if err != nil {
			log.Printf("bridge: research %q: %v", topic, err)
			return
		}
		log.Printf("bridge: research task %s finished: %s", taskID, res.State)

		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		for _, chunk := range chunkMessage(FormatResearchOutcome(topic, res), 2000) {
			if err := d.adapter.Send(sendCtx, OutboundMessage{
				ChannelID: channelID,
				ThreadID:  threadID,
				Text:      chunk,
			}); err != nil {
				log.Printf("bridge: post research outcome: %v", err)
			}
		}
	}()
	return nil
}

// runDigestScheduler fires the daily digest on the configured cron
// expression. Returns immediately when no digest is configured.
func (d *Daemon) runDigestScheduler(ctx context.Context) {
	expr := d.cfg.Bridge.DigestCron
	if expr == "" {
		return
	}

	wait := nextCronDuration(expr)
	if wait <= 0 {
		log.Printf("bridge: invalid digest cron %q, digest disabled", expr)
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.fireDigest(ctx)
			if wait := nextCronDuration(expr); wait > 0 {
				timer.Reset(wait)
			}
		}
	}
}

// fireDigest builds and sends the daily digest (best-effort).
func (d *Daemon) fireDigest(ctx context.Context) {
	since := time.Now().Add(-24 * time.Hour)

	var tasks []models.ResearchTask
	if err := d.db.Where("submitted_at >= ?", since).Order("submitted_at").Find(&tasks).Error; err != nil {
		log.Printf("bridge: digest tasks: %v", err)
		return
	}
	var convs []models.Conversation
	if err := d.db.Where("created_at >= ?", since).Find(&convs).Error; err != nil {
		log.Printf("bridge: digest conversations: %v", err)
		return
	}

	digest := BuildDailyDigest(tasks, convs, time.Now())
	if digest == "" {
		// No activity, nothing to digest.
		return
	}
	if err := d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.announceChannel(),
		Text:      digest,
	}); err != nil {
		log.Printf("bridge: send digest: %v", err)
	}
}

// announceChannel is where online/offline notices and digests go.
func (d *Daemon) announceChannel() string {
	switch d.cfg.Bridge.Platform {
	case "slack":
		return d.cfg.Bridge.Slack.ChannelID
	case "discord":
		return d.cfg.Bridge.Discord.ChannelID
	}
	return ""
}

// sendShutdown posts a shutdown message to the adapter (best-effort).
func (d *Daemon) sendShutdown() {
	ctx := context.Background()
	if err := d.adapter.Send(ctx, OutboundMessage{
		ChannelID: d.announceChannel(),
		Text:      "Taskwire bridge shutting down",
	}); err != nil {
		log.Printf("bridge: send shutdown message: %v", err)
	}
}
