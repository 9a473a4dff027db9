// internal/scheduler/scheduler.go
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is a named maintenance callback run on a cron schedule.
type Job struct {
	Name     string
	Schedule string
	Run      func()
}

// Scheduler runs background maintenance jobs, primarily the periodic
// session expiry sweep.
type Scheduler struct {
	jobs []Job
	cron *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates an empty Scheduler.
func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithParser(cronParser))}
}

// Add registers a job for the next Start.
func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start registers all jobs as cron entries and starts the ticker. Invalid
// schedules are logged and skipped so one bad entry cannot keep the rest
// of the maintenance loop from starting.
func (s *Scheduler) Start() error {
	for _, job := range s.jobs {
		run := job.Run
		name := job.Name

		_, err := s.cron.AddFunc(job.Schedule, func() {
			slog.Debug("cron firing job", "name", name)
			run()
		})
		if err != nil {
			slog.Error("invalid cron schedule", "name", name, "schedule", job.Schedule, "error", err)
			continue
		}
		slog.Info("scheduled job", "name", name, "schedule", job.Schedule)
	}

	s.cron.Start()
	return nil
}

// Stop stops the cron ticker. Running jobs finish on their own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
