package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/bridge"
	"github.com/taskwire/taskwire/internal/gateway"
	"github.com/taskwire/taskwire/internal/notify"
	"github.com/taskwire/taskwire/internal/research"
)

func newResearchCmd() *cobra.Command {
	var (
		configPath string
		depth      string
		audience   string
		contextStr string
	)

	cmd := &cobra.Command{
		Use:   "research TOPIC",
		Short: "Run a deep research task to completion",
		Long: `Submits a deep research task to the gateway and polls it until it
completes, fails, or exhausts the attempt budget. Progress is printed as the
gateway reports it. A task that exhausts the budget may still be running on
the gateway; check tw tasks later.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			client, err := gatewayFromConfig(cfg)
			if err != nil {
				return err
			}
			store, err := research.NewTaskStore(gormDB)
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

			req := gateway.ResearchRequest{
				Topic:        strings.Join(args, " "),
				Depth:        depth,
				AudienceType: audience,
				Context:      contextStr,
			}
			return runResearch(ctx, cmd, client, store, notify.New(cfg.Notify), req, researchOpts{
				pollInterval: cfg.Gateway.TaskPollInterval(),
				maxAttempts:  cfg.Gateway.TaskPollAttempts,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	cmd.Flags().StringVar(&depth, "depth", "standard", "research depth (quick, standard, deep)")
	cmd.Flags().StringVar(&audience, "audience", "", "audience type for the report")
	cmd.Flags().StringVar(&contextStr, "context", "", "extra context passed with the request")
	return cmd
}

type researchOpts struct {
	initialDelay time.Duration // zero selects the poller default
	pollInterval time.Duration
	maxAttempts  int
}

func runResearch(ctx context.Context, cmd *cobra.Command, client research.GatewayClient, store *research.TaskStore, notifier research.Notifier, req gateway.ResearchRequest, opts researchOpts) error {
	out := cmd.OutOrStdout()

	runner, err := research.NewRunner(research.RunnerOpts{
		Client:       client,
		Store:        store,
		Notifier:     notifier,
		InitialDelay: opts.initialDelay,
		PollInterval: opts.pollInterval,
		MaxAttempts:  opts.maxAttempts,
		OnProgress: func(u research.Update) {
			phase := u.Phase
			if phase == "" {
				phase = "working"
			}
			fmt.Fprintf(out, "  [%d] %3d%% %s\n", u.Attempt, u.Progress, phase)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Researching %q (depth: %s)...\n", req.Topic, req.Depth)
	taskID, res, err := runner.Run(ctx, req)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\nTask %s finished after %d poll(s).\n\n", taskID, res.Attempts)
	fmt.Fprintln(out, bridge.FormatResearchOutcome(req.Topic, res))
	if res.State != research.StateCompleted {
		return fmt.Errorf("research %s: %s", res.State, res.Message)
	}
	return nil
}
