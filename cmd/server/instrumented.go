package main

import (
	"log"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/metrics"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// instrumentedSupervisor records every backup, whether requested over
// HTTP, gRPC or by the schedule.
type instrumentedSupervisor struct {
	*server.Supervisor
	metrics  *metrics.Collector
	activity *logging.ActivityLogger
}

func (s *instrumentedSupervisor) Backup() (*server.BackupResult, error) {
	return s.BackupFor("")
}

// BackupFor labels the archive and the activity entry with initiator.
func (s *instrumentedSupervisor) BackupFor(initiator string) (*server.BackupResult, error) {
	result, err := s.metrics.ObserveBackup(func() (*server.BackupResult, error) {
		return s.Supervisor.BackupFor(initiator)
	})
	// Rejected requests never stopped the server.
	if result == nil || s.activity == nil {
		return result, err
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	actor := initiator
	if actor == "" {
		actor = "supervisor"
	}
	if logErr := s.activity.LogBackup(actor, result.ArchivePath, result.Duration, errMsg); logErr != nil {
		log.Printf("[Backup] Failed to log backup activity: %v", logErr)
	}
	return result, err
}
