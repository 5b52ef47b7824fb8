package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskwire/taskwire/internal/research"
)

func newTasksCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List recent research tasks",
		Long:  "Lists research tasks recorded by this client, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			store, err := research.NewTaskStore(gormDB)
			if err != nil {
				return err
			}
			return runTasks(cmd, store, limit, activeOnly)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of tasks to show")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "show only tasks still working")
	return cmd
}

func runTasks(cmd *cobra.Command, store *research.TaskStore, limit int, activeOnly bool) error {
	tasks, err := store.Recent(limit)
	if activeOnly {
		tasks, err = store.Active()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tTOPIC\tSTATE\tPROGRESS\tPHASE\tSUBMITTED")
	for _, t := range tasks {
		phase := t.Phase
		if phase == "" {
			phase = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			t.TaskID, truncate(t.Topic, 40), t.State, t.Progress, phase,
			t.SubmittedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
	return nil
}
