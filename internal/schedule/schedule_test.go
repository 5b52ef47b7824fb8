package schedule

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/db"
	"github.com/taskwire/taskwire/internal/gateway"
	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/research"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.ConnectMemory()
	if err != nil {
		t.Fatalf("ConnectMemory() error = %v", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}
	return conn
}

func noopRun(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error) {
	return "task-1", research.Result{State: research.StateCompleted, Progress: 100}, nil
}

func TestNewScheduler_RequiresDB(t *testing.T) {
	_, err := NewScheduler(SchedulerOpts{Run: noopRun})
	if err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestNewScheduler_RequiresRun(t *testing.T) {
	_, err := NewScheduler(SchedulerOpts{DB: newTestDB(t)})
	if err == nil {
		t.Fatal("expected error for missing run function")
	}
}

func TestNewScheduler_RejectsBadCron(t *testing.T) {
	_, err := NewScheduler(SchedulerOpts{
		DB:  newTestDB(t),
		Run: noopRun,
		Schedules: []config.ScheduleConfig{
			{Name: "broken", Cron: "not a cron", Topic: "x"},
		},
	})
	if err == nil {
		t.Fatal("expected error for bad cron expression")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error = %q, want to name the schedule", err.Error())
	}
}

func TestNewScheduler_ParsesFiveFieldCron(t *testing.T) {
	s, err := NewScheduler(SchedulerOpts{
		DB:  newTestDB(t),
		Run: noopRun,
		Schedules: []config.ScheduleConfig{
			{Name: "daily", Cron: "0 9 * * *", Topic: "market news"},
			{Name: "hourly", Cron: "0 * * * *", Topic: "alerts"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.jobs) != 2 {
		t.Errorf("jobs = %d, want 2", len(s.jobs))
	}
}

func TestFire_RecordsCompletedRun(t *testing.T) {
	conn := newTestDB(t)

	var gotReq gateway.ResearchRequest
	s, err := NewScheduler(SchedulerOpts{
		DB: conn,
		Run: func(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error) {
			gotReq = req
			return "task-42", research.Result{State: research.StateCompleted, Progress: 100}, nil
		},
	})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	s.fire(context.Background(), config.ScheduleConfig{
		Name:         "weekly-report",
		Topic:        "grid storage",
		Depth:        "deep",
		AudienceType: "executive",
	})

	if gotReq.Topic != "grid storage" {
		t.Errorf("topic = %q, want grid storage", gotReq.Topic)
	}
	if gotReq.Depth != "deep" {
		t.Errorf("depth = %q, want deep", gotReq.Depth)
	}

	var run models.ScheduledRun
	if err := conn.First(&run, "schedule_name = ?", "weekly-report").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != "completed" {
		t.Errorf("status = %q, want completed", run.Status)
	}
	if run.TaskID != "task-42" {
		t.Errorf("task id = %q, want task-42", run.TaskID)
	}
	if run.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

func TestFire_RecordsSubmitFailure(t *testing.T) {
	conn := newTestDB(t)

	s, _ := NewScheduler(SchedulerOpts{
		DB: conn,
		Run: func(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error) {
			return "", research.Result{}, fmt.Errorf("gateway unreachable")
		},
	})

	s.fire(context.Background(), config.ScheduleConfig{Name: "flaky", Topic: "x"})

	var run models.ScheduledRun
	if err := conn.First(&run, "schedule_name = ?", "flaky").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != "failed" {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if !strings.Contains(run.Error, "gateway unreachable") {
		t.Errorf("error = %q, want gateway unreachable", run.Error)
	}
}

func TestFire_RecordsTimedOutAsFailed(t *testing.T) {
	conn := newTestDB(t)

	s, _ := NewScheduler(SchedulerOpts{
		DB: conn,
		Run: func(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error) {
			return "task-9", research.Result{
				State:   research.StateTimedOut,
				Message: research.TimedOutMessage,
			}, nil
		},
	})

	s.fire(context.Background(), config.ScheduleConfig{Name: "slow", Topic: "x"})

	var run models.ScheduledRun
	if err := conn.First(&run, "schedule_name = ?", "slow").Error; err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != "failed" {
		t.Errorf("status = %q, want failed", run.Status)
	}
	if run.TaskID != "task-9" {
		t.Errorf("task id = %q, want task-9", run.TaskID)
	}
	if !strings.Contains(run.Error, "may still be running") {
		t.Errorf("error = %q, want the still-running caveat", run.Error)
	}
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	conn := newTestDB(t)

	s, _ := NewScheduler(SchedulerOpts{DB: conn, Run: noopRun})
	s.fire(context.Background(), config.ScheduleConfig{Name: "first", Topic: "a"})
	s.fire(context.Background(), config.ScheduleConfig{Name: "second", Topic: "b"})

	runs, err := RecentRuns(conn, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
}
