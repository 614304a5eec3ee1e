package models

import (
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// BackupResponse reports the outcome of a stop, archive, restart cycle
type BackupResponse struct {
	ArchivePath  string    `json:"archive_path,omitempty"`
	ArchiveError string    `json:"archive_error,omitempty"`
	Restarted    bool      `json:"restarted"`
	Forced       bool      `json:"forced"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Error        string    `json:"error,omitempty"`
}

// NewBackupResponse flattens a backup result and its error.
func NewBackupResponse(result *server.BackupResult, err error) BackupResponse {
	var resp BackupResponse
	if result != nil {
		resp.ArchivePath = result.ArchivePath
		resp.Restarted = result.Restarted
		resp.Forced = result.Forced
		resp.StartedAt = result.StartedAt
		resp.DurationMS = result.Duration.Milliseconds()
		if result.ArchiveErr != nil {
			resp.ArchiveError = result.ArchiveErr.Error()
		}
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
