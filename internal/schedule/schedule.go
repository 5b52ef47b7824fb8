// Package schedule runs recurring research jobs from cron expressions in the
// configuration. Each job fires on its schedule, submits a deep-research task
// through the provided run function, and records the outcome in the database.
package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/taskwire/taskwire/internal/config"
	"github.com/taskwire/taskwire/internal/gateway"
	"github.com/taskwire/taskwire/internal/models"
	"github.com/taskwire/taskwire/internal/research"
)

// cronParser accepts standard 5-field cron expressions (minute granularity).
var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// RunFunc executes one research job to a terminal state. It returns the
// gateway task ID and the terminal result.
type RunFunc func(ctx context.Context, req gateway.ResearchRequest) (string, research.Result, error)

// job pairs a configured schedule with its parsed cron expression.
type job struct {
	cfg  config.ScheduleConfig
	next cron.Schedule
}

// SchedulerOpts holds parameters for creating a Scheduler.
type SchedulerOpts struct {
	DB        *gorm.DB
	Schedules []config.ScheduleConfig
	Run       RunFunc
}

// Scheduler fires configured research jobs on their cron schedules.
type Scheduler struct {
	db   *gorm.DB
	jobs []job
	run  RunFunc
	wg   sync.WaitGroup
}

// NewScheduler validates every cron expression up front so a bad schedule
// fails at startup instead of being silently skipped.
func NewScheduler(opts SchedulerOpts) (*Scheduler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("schedule: database is required")
	}
	if opts.Run == nil {
		return nil, fmt.Errorf("schedule: run function is required")
	}

	s := &Scheduler{db: opts.DB, run: opts.Run}
	for _, sc := range opts.Schedules {
		sched, err := cronParser.Parse(sc.Cron)
		if err != nil {
			return nil, fmt.Errorf("schedule: %s: parse cron %q: %w", sc.Name, sc.Cron, err)
		}
		s.jobs = append(s.jobs, job{cfg: sc, next: sched})
	}
	return s, nil
}

// Start launches one goroutine per configured job. It returns immediately;
// use Wait to block until ctx is cancelled and all loops have exited.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go func(j job) {
			defer s.wg.Done()
			s.runLoop(ctx, j)
		}(j)
	}
	log.Printf("schedule: started %d job(s)", len(s.jobs))
}

// Wait blocks until all job loops have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, j job) {
	for {
		now := time.Now()
		wait := j.next.Next(now).Sub(now)
		timer := time.NewTimer(wait)
		log.Printf("schedule: %s next fire in %v", j.cfg.Name, wait.Round(time.Second))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, j.cfg)
		}
	}
}

// fire runs one execution of a job and records it as a ScheduledRun row.
func (s *Scheduler) fire(ctx context.Context, sc config.ScheduleConfig) {
	run := models.ScheduledRun{
		ScheduleName: sc.Name,
		Status:       "running",
		StartedAt:    time.Now(),
	}
	if err := s.db.Create(&run).Error; err != nil {
		log.Printf("schedule: %s: record run: %v", sc.Name, err)
	}

	log.Printf("schedule: %s firing, topic %q", sc.Name, sc.Topic)
	taskID, res, err := s.run(ctx, gateway.ResearchRequest{
		Topic:        sc.Topic,
		Depth:        sc.Depth,
		AudienceType: sc.AudienceType,
	})

	now := time.Now()
	run.TaskID = taskID
	run.FinishedAt = &now
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
		log.Printf("schedule: %s failed: %v", sc.Name, err)
	} else {
		// Timed-out and failed terminal states are still recorded against
		// the run so the history shows what happened.
		switch res.State {
		case research.StateCompleted:
			run.Status = "completed"
		default:
			run.Status = "failed"
			run.Error = res.Message
		}
		log.Printf("schedule: %s finished, task %s state %s", sc.Name, taskID, res.State)
	}

	if err := s.db.Save(&run).Error; err != nil {
		log.Printf("schedule: %s: update run: %v", sc.Name, err)
	}
}

// RecentRuns returns the most recent run records, newest first.
func RecentRuns(db *gorm.DB, limit int) ([]models.ScheduledRun, error) {
	var runs []models.ScheduledRun
	err := db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("schedule: list runs: %w", err)
	}
	return runs, nil
}
