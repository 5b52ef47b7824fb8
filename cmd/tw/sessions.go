package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/models"
)

func newSessionsCmd() *cobra.Command {
	var (
		configPath string
		source     string
		status     string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded conversation sessions",
		Long:  "Lists conversation sessions recorded by this client, most recently active first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, gormDB, err := connectFromConfig(configPath)
			if err != nil {
				return err
			}
			return runSessions(cmd, gormDB, source, status, limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Taskwire config file")
	cmd.Flags().StringVar(&source, "source", "", "filter by source (cli, bridge, schedule)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (active, closed, expired)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of sessions to show")
	return cmd
}

func runSessions(cmd *cobra.Command, gormDB *gorm.DB, source, status string, limit int) error {
	q := gormDB.Model(&models.Conversation{}).Order("last_activity DESC").Limit(limit)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var sessions []models.Conversation
	if err := q.Find(&sessions).Error; err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tSOURCE\tUSER\tSTATUS\tPENDING\tTASKS\tLAST ACTIVITY")
	for _, s := range sessions {
		user := s.UserName
		if user == "" {
			user = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			truncate(s.SessionID, 24), s.Source, user, s.Status,
			s.PendingCount, s.TaskCount, formatAge(s.LastActivity))
	}
	w.Flush()
	return nil
}
