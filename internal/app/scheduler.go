/**
 * @description
 * Cron scheduler setup for the membership maintenance jobs.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/restrict-content-pro/membership-scheduler/internal/config"
	"github.com/robfig/cron/v3"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance evaluating schedules in the site timezone.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

func (s *Scheduler) schedules() []struct{ job, spec string } {
	return []struct{ job, spec string }{
		{JobExpiredMembers, s.config.ExpiredMembersJobSchedule},
		{JobExpiringSoon, s.config.ExpiringSoonJobSchedule},
		{JobMemberCounts, s.config.MemberCountsJobSchedule},
	}
}

// Start registers the jobs and starts the cron scheduler. Jobs whose schedule
// fails to parse are reported in the returned error; the rest still run.
func (s *Scheduler) Start() error {
	var errs []error
	for _, entry := range s.schedules() {
		if _, err := s.cron.AddFunc(entry.spec, s.runner(entry.job)); err != nil {
			s.logger.Error("failed to schedule job", "job", entry.job, "schedule", entry.spec, "error", err)
			errs = append(errs, fmt.Errorf("schedule %s: %w", entry.job, err))
			continue
		}
		s.logger.Info("scheduled job", "job", entry.job, "schedule", entry.spec)
	}

	s.cron.Start()
	return errors.Join(errs...)
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runner(job string) func() {
	return func() {
		err := s.jobs.Run(context.Background(), job)
		switch {
		case errors.Is(err, ErrJobLocked):
			s.logger.Info("job skipped; another run holds the lock", "job", job)
		case err != nil:
			s.logger.Error("job finished with errors", "job", job, "error", err)
		}
	}
}
