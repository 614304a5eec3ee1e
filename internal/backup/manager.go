package backup

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
)

// Backup record statuses
const (
	StatusCreating  = "creating"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusDeleted   = "deleted"
)

// Trigger values stored with each backup record
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Manager archives the world directory, uploads the archive to every
// configured destination and keeps a record of each run. It implements the
// supervisor's Archiver.
type Manager struct {
	db             *sql.DB
	archiveHandler *ArchiveHandler
	cfg            config.BackupConfig
	destinations   []*DestinationConfig
	retention      *RetentionManager
}

// DestinationResult records the outcome of one upload
type DestinationResult struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BackupRecord represents a backup record in the database
type BackupRecord struct {
	ID           string              `json:"id"`
	Filename     string              `json:"filename"`
	LocalPath    string              `json:"local_path"`
	SizeBytes    int64               `json:"size_bytes"`
	FileCount    int                 `json:"file_count"`
	Checksum     string              `json:"checksum"`
	Compression  string              `json:"compression"`
	Status       string              `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Destinations []DestinationResult `json:"destinations"`
	TriggeredBy  string              `json:"triggered_by"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	DeletedAt    *time.Time          `json:"deleted_at,omitempty"`
}

// NewManager creates a backup manager for the configured world directory.
func NewManager(db *sql.DB, cfg config.BackupConfig, sshCfg config.SSHConfig) *Manager {
	m := &Manager{
		db:             db,
		archiveHandler: NewArchiveHandler(),
		cfg:            cfg,
	}
	for _, dest := range cfg.Destinations {
		m.destinations = append(m.destinations, &DestinationConfig{
			DestinationConfig: dest,
			KnownHostsPath:    sshCfg.KnownHostsPath,
			TrustOnFirstUse:   sshCfg.TrustOnFirstUse,
		})
	}
	m.retention = NewRetentionManager(m)
	return m
}

// Archive snapshots dir and records trigger as the run's origin, manual when
// empty. The returned path is set whenever an archive was written, even when
// verification or an upload failed afterwards.
func (m *Manager) Archive(dir, trigger string) (string, error) {
	if trigger == "" {
		trigger = TriggerManual
	}
	record := &BackupRecord{
		ID:          uuid.New().String(),
		Status:      StatusCreating,
		TriggeredBy: trigger,
		CreatedAt:   time.Now().UTC(),
		Compression: normalizeCompression(CompressionConfig(m.cfg.Compression)).Type,
	}
	log.Printf("[BackupMgr] Creating backup %s of %s", record.ID, dir)

	if err := m.insertRecord(record); err != nil {
		return "", fmt.Errorf("failed to save backup record: %w", err)
	}

	info, err := m.archiveHandler.CreateArchive(dir, m.cfg.ArchiveDir, ArchiveOptions{
		Compression: CompressionConfig(m.cfg.Compression),
		Exclude:     m.cfg.Exclude,
	})
	if err != nil {
		m.finish(record, StatusFailed, err)
		return "", err
	}

	record.Filename = info.Filename
	record.LocalPath = info.Path
	record.SizeBytes = info.SizeBytes
	record.FileCount = info.FileCount
	record.Checksum = info.Checksum

	if m.cfg.Verify {
		if err := m.archiveHandler.VerifyArchive(info.Path, info.Checksum); err != nil {
			m.finish(record, StatusFailed, err)
			return info.Path, fmt.Errorf("archive verification failed: %w", err)
		}
	}

	uploadErr := m.upload(record, info)
	status := StatusCompleted
	if uploadErr != nil {
		status = StatusPartial
	}
	m.finish(record, status, uploadErr)

	if m.cfg.RetentionCount > 0 {
		if _, err := m.retention.EnforceRetention(m.cfg.RetentionCount); err != nil {
			log.Printf("[BackupMgr] Warning: Retention enforcement failed: %v", err)
		}
	}

	log.Printf("[BackupMgr] Backup %s finished with status %s: %s (%d bytes, %d files)",
		record.ID, status, info.Filename, info.SizeBytes, info.FileCount)

	return info.Path, uploadErr
}

// upload sends the archive to every destination. A failed destination does
// not stop the others.
func (m *Manager) upload(record *BackupRecord, info *ArchiveInfo) error {
	var errs []error
	for _, destCfg := range m.destinations {
		result := DestinationResult{Name: destCfg.Name(), Type: strings.ToLower(destCfg.Type), Status: StatusCompleted}
		if err := m.transferToDestination(info, destCfg); err != nil {
			log.Printf("[BackupMgr] Upload to %s failed: %v", result.Name, err)
			result.Status = StatusFailed
			result.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", result.Name, err))
		}
		record.Destinations = append(record.Destinations, result)
	}
	return errors.Join(errs...)
}

func (m *Manager) transferToDestination(info *ArchiveInfo, destCfg *DestinationConfig) error {
	dest, err := NewDestination(destCfg)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer closeDestination(dest)

	file, err := os.Open(info.Path)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	return dest.Upload(info.Filename, file, info.SizeBytes)
}

func (m *Manager) finish(record *BackupRecord, status string, cause error) {
	now := time.Now().UTC()
	record.Status = status
	record.CompletedAt = &now
	if cause != nil {
		record.ErrorMessage = cause.Error()
	}
	if err := m.updateRecord(record); err != nil {
		log.Printf("[BackupMgr] Warning: Failed to update backup status: %v", err)
	}
}

// DeleteBackup removes an archive locally and from every destination it
// reached, then marks the record deleted.
func (m *Manager) DeleteBackup(backupID string) error {
	record, err := m.GetBackup(backupID)
	if err != nil {
		return err
	}
	if record.Status == StatusDeleted {
		return nil
	}

	log.Printf("[BackupMgr] Deleting backup %s (%s)", backupID, record.Filename)

	if record.LocalPath != "" {
		if err := m.archiveHandler.DeleteArchive(record.LocalPath); err != nil {
			log.Printf("[BackupMgr] Warning: %v", err)
		}
	}

	for _, result := range record.Destinations {
		if result.Status != StatusCompleted {
			continue
		}
		destCfg := m.destinationByName(result.Name)
		if destCfg == nil {
			log.Printf("[BackupMgr] Warning: Destination %s is no longer configured", result.Name)
			continue
		}
		if err := m.deleteFromDestination(destCfg, record.Filename); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to delete from %s: %v", result.Name, err)
		}
	}

	now := time.Now().UTC()
	record.Status = StatusDeleted
	record.DeletedAt = &now
	if err := m.updateRecord(record); err != nil {
		return fmt.Errorf("failed to update backup record: %w", err)
	}
	return nil
}

func (m *Manager) deleteFromDestination(destCfg *DestinationConfig, filename string) error {
	dest, err := NewDestination(destCfg)
	if err != nil {
		return err
	}
	defer closeDestination(dest)
	return dest.Delete(filename)
}

func (m *Manager) destinationByName(name string) *DestinationConfig {
	for _, d := range m.destinations {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

const backupColumns = `id, filename, local_path, size_bytes, file_count, checksum, compression,
	status, error_message, destinations, triggered_by, created_at, completed_at, deleted_at`

// ListBackups returns backups that have not been deleted, newest first. A
// negative limit returns all of them.
func (m *Manager) ListBackups(limit int) ([]*BackupRecord, error) {
	if limit == 0 {
		limit = 50
	}
	rows, err := m.db.Query(`SELECT `+backupColumns+` FROM backups
		WHERE status != ? ORDER BY created_at DESC LIMIT ?`, StatusDeleted, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var backups []*BackupRecord
	for rows.Next() {
		record, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, record)
	}
	return backups, rows.Err()
}

// ErrBackupNotFound is returned when no record has the requested ID.
var ErrBackupNotFound = errors.New("backup not found")

// GetBackup retrieves a specific backup
func (m *Manager) GetBackup(backupID string) (*BackupRecord, error) {
	row := m.db.QueryRow(`SELECT `+backupColumns+` FROM backups WHERE id = ?`, backupID)
	record, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, backupID)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBackup(row rowScanner) (*BackupRecord, error) {
	record := &BackupRecord{}
	var errorMsg, destinations sql.NullString
	var completedAt, deletedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.Filename,
		&record.LocalPath,
		&record.SizeBytes,
		&record.FileCount,
		&record.Checksum,
		&record.Compression,
		&record.Status,
		&errorMsg,
		&destinations,
		&record.TriggeredBy,
		&record.CreatedAt,
		&completedAt,
		&deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan backup record: %w", err)
	}

	record.ErrorMessage = errorMsg.String
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	if deletedAt.Valid {
		record.DeletedAt = &deletedAt.Time
	}
	if destinations.Valid && destinations.String != "" {
		if err := json.Unmarshal([]byte(destinations.String), &record.Destinations); err != nil {
			log.Printf("[BackupMgr] Warning: Failed to parse destinations for %s: %v", record.ID, err)
		}
	}
	return record, nil
}

func (m *Manager) insertRecord(record *BackupRecord) error {
	_, err := m.db.Exec(`INSERT INTO backups
		(id, filename, local_path, compression, status, triggered_by, created_at)
		VALUES (?, '', '', ?, ?, ?, ?)`,
		record.ID, record.Compression, record.Status, record.TriggeredBy, record.CreatedAt)
	return err
}

func (m *Manager) updateRecord(record *BackupRecord) error {
	destinations, err := json.Marshal(record.Destinations)
	if err != nil {
		return fmt.Errorf("failed to marshal destinations: %w", err)
	}

	_, err = m.db.Exec(`UPDATE backups SET
		filename = ?, local_path = ?, size_bytes = ?, file_count = ?, checksum = ?,
		status = ?, error_message = ?, destinations = ?, completed_at = ?, deleted_at = ?
		WHERE id = ?`,
		record.Filename,
		record.LocalPath,
		record.SizeBytes,
		record.FileCount,
		record.Checksum,
		record.Status,
		nullString(record.ErrorMessage),
		string(destinations),
		record.CompletedAt,
		record.DeletedAt,
		record.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to save backup record: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
