package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/vhvplatform/go-notification-engine/internal/shared/logger"
)

// Job is a periodic housekeeping task. Run returns how many items it handled.
type Job struct {
	Name     string
	Schedule string // cron spec, e.g. "@every 1h" or "0 3 * * *"
	Timeout  time.Duration
	Run      func(ctx context.Context) (int64, error)
}

// MaintenanceScheduler runs housekeeping jobs such as the expiry sweep and
// failed email retries
type MaintenanceScheduler struct {
	cron    *cron.Cron
	jobs    []Job
	log     *logger.Logger
	entries map[string]cron.EntryID // job name -> cron entry
}

// NewMaintenanceScheduler creates a scheduler for the given jobs
func NewMaintenanceScheduler(log *logger.Logger, jobs ...Job) *MaintenanceScheduler {
	cl := cronLogger{log: log}
	return &MaintenanceScheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		jobs:    jobs,
		log:     log,
		entries: make(map[string]cron.EntryID, len(jobs)),
	}
}

// Start registers every job and starts the cron runner. Nothing runs if any
// schedule is invalid.
func (s *MaintenanceScheduler) Start() error {
	for _, job := range s.jobs {
		if job.Timeout <= 0 {
			job.Timeout = 5 * time.Minute
		}
		entryID, err := s.cron.AddFunc(job.Schedule, func() { s.execute(job) })
		if err != nil {
			for _, id := range s.entries {
				s.cron.Remove(id)
			}
			clear(s.entries)
			return fmt.Errorf("register %s %q: %w", job.Name, job.Schedule, err)
		}
		s.entries[job.Name] = entryID
	}

	s.cron.Start()
	for _, job := range s.jobs {
		s.log.Info("Registered maintenance job", "job", job.Name, "schedule", job.Schedule, "next_run", s.NextRun(job.Name))
	}
	return nil
}

// Stop stops the runner and waits for running jobs up to ctx
func (s *MaintenanceScheduler) Stop(ctx context.Context) {
	s.log.Info("Stopping maintenance scheduler")
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Maintenance scheduler stop timed out")
	}
}

// NextRun returns when the named job fires next; zero if it is not registered
func (s *MaintenanceScheduler) NextRun(name string) time.Time {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// RunNow runs the named job synchronously
func (s *MaintenanceScheduler) RunNow(ctx context.Context, name string) (int64, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return job.Run(ctx)
		}
	}
	return 0, fmt.Errorf("unknown maintenance job %q", name)
}

func (s *MaintenanceScheduler) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()

	start := time.Now()
	n, err := job.Run(ctx)
	if err != nil {
		s.log.Error("Maintenance job failed", "job", job.Name, "error", err)
		return
	}
	s.log.Debug("Maintenance job finished", "job", job.Name, "handled", n, "took", time.Since(start).String())
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
