package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/bridge"
	discordadapter "github.com/taskwire/taskwire/internal/bridge/discord"
	slackadapter "github.com/taskwire/taskwire/internal/bridge/slack"
	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/gateway"
	"github.com/taskwire/taskwire/internal/notify"
	"github.com/taskwire/taskwire/internal/research"
	"github.com/taskwire/taskwire/internal/schedule"
)

func newBridgeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Run the chat bridge daemon",
		Long: `Connects to the configured chat platform (Slack Socket Mode or Discord),
relays thread messages to gateway conversations, and posts agent replies and
research outcomes back. Also runs any configured recurring research jobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	return cmd
}

func runBridge(cmd *cobra.Command, configPath string) error {
	cfg, gormDB, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.Bridge.Platform == "" {
		return fmt.Errorf("bridge: no platform configured in %s (add bridge.platform)", configPath)
	}

	client, err := gatewayFromConfig(cfg)
	if err != nil {
		return err
	}
	store, err := research.NewTaskStore(gormDB)
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	daemon, err := bridge.NewDaemon(bridge.DaemonOpts{
		DB:       gormDB,
		Config:   cfg,
		Adapter:  adapter,
		Client:   client,
		Tasks:    store,
		Notifier: notify.New(cfg.Notify),
		Out:      cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sched, err := startSchedules(ctx, cfg, gormDB, client, store)
	if err != nil {
		return err
	}

	err = daemon.Run(ctx)
	if sched != nil {
		cancel()
		sched.Wait()
	}
	return err
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (bridge.Adapter, error) {
	switch cfg.Bridge.Platform {
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken:  cfg.Bridge.Slack.AppToken,
			BotToken:  cfg.Bridge.Slack.BotToken,
			ChannelID: cfg.Bridge.Slack.ChannelID,
		})
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken:  cfg.Bridge.Discord.BotToken,
			ChannelID: cfg.Bridge.Discord.ChannelID,
		})
	default:
		return nil, fmt.Errorf("bridge: unsupported platform %q", cfg.Bridge.Platform)
	}
}

// startSchedules launches the recurring research scheduler when any
// schedules are configured. Returns nil when there is nothing to run.
// Each fire gets its own runner so concurrent jobs do not share state.
func startSchedules(ctx context.Context, cfg *config.Config, gormDB *gorm.DB, client *gateway.Client, store *research.TaskStore) (*schedule.Scheduler, error) {
	if len(cfg.Schedules) == 0 {
		return nil, nil
	}

	notifier := notify.New(cfg.Notify)
	run := func(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error) {
		runner, err := research.NewRunner(research.RunnerOpts{
			Client:       client,
			Store:        store,
			Notifier:     notifier,
			PollInterval: cfg.Gateway.TaskPollInterval(),
			MaxAttempts:  cfg.Gateway.TaskPollAttempts,
		})
		if err != nil {
			return "", research.Result{}, err
		}
		return runner.Run(ctx, req)
	}

	sched, err := schedule.NewScheduler(schedule.SchedulerOpts{
		DB:        gormDB,
		Schedules: cfg.Schedules,
		Run:       run,
	})
	if err != nil {
		return nil, err
	}
	sched.Start(ctx)
	return sched, nil
}
