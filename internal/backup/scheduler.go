package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// BackupRunner runs one stop, archive, restart cycle labelled with initiator.
type BackupRunner interface {
	BackupFor(initiator string) (*server.BackupResult, error)
}

// Scheduler triggers backup cycles on a cron schedule
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   BackupRunner
}

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewScheduler parses the cron expression expr. Scheduled runs are
// recorded with the schedule trigger.
func NewScheduler(expr string, runner BackupRunner) (*Scheduler, error) {
	schedule, err := scheduleParser.Parse(strings.TrimSpace(expr))
	if err != nil {
		return nil, fmt.Errorf("invalid backup schedule %q: %w", expr, err)
	}

	s := &Scheduler{
		cron:     cron.New(cron.WithParser(scheduleParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		runner:   runner,
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.RunOnce))
	return s, nil
}

// Next returns the next scheduled run after from.
func (s *Scheduler) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Run runs the schedule until ctx is cancelled and then waits for an
// in-flight backup to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Printf("[BackupSchedule] Next backup at %s", s.Next(time.Now()).Format(time.RFC3339))
	s.cron.Start()
	<-ctx.Done()
	log.Printf("[BackupSchedule] Stopping schedule runner")
	<-s.cron.Stop().Done()
	return nil
}

// RunOnce performs a scheduled backup. A server that is stopped or already
// stopping is skipped.
func (s *Scheduler) RunOnce() {
	result, err := s.runner.BackupFor(TriggerSchedule)
	switch {
	case errors.Is(err, server.ErrAlreadyStopping), errors.Is(err, server.ErrNotRunning):
		log.Printf("[BackupSchedule] Skipping scheduled backup: %v", err)
	case err != nil:
		log.Printf("[BackupSchedule] Scheduled backup failed: %v", err)
	default:
		log.Printf("[BackupSchedule] Scheduled backup complete: %s in %s",
			result.ArchivePath, result.Duration.Round(time.Millisecond))
	}
}
