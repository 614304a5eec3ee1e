package backup

import (
	"fmt"
	"log"
	"sort"
)

// RetentionManager handles backup retention policies
type RetentionManager struct {
	backupManager *Manager
}

// RetentionStats summarises what a retention pass would remove
type RetentionStats struct {
	TotalBackups    int   `json:"total_backups"`
	RetentionLimit  int   `json:"retention_limit"`
	BackupsToDelete int   `json:"backups_to_delete"`
	TotalSizeBytes  int64 `json:"total_size_bytes"`
	WillDeleteSize  int64 `json:"will_delete_size"`
}

// NewRetentionManager creates a new retention manager
func NewRetentionManager(backupMgr *Manager) *RetentionManager {
	return &RetentionManager{
		backupManager: backupMgr,
	}
}

// retained lists backups that hold an archive, newest first. Failed runs
// never count toward the limit.
func (rm *RetentionManager) retained() ([]*BackupRecord, error) {
	backups, err := rm.backupManager.ListBackups(-1)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var kept []*BackupRecord
	for _, backup := range backups {
		if backup.Status == StatusCompleted || backup.Status == StatusPartial {
			kept = append(kept, backup)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].CreatedAt.After(kept[j].CreatedAt)
	})
	return kept, nil
}

// EnforceRetention deletes every archive beyond the newest retentionCount.
// It returns how many backups were removed.
func (rm *RetentionManager) EnforceRetention(retentionCount int) (int, error) {
	if retentionCount <= 0 {
		return 0, nil
	}

	backups, err := rm.retained()
	if err != nil {
		return 0, err
	}

	if len(backups) <= retentionCount {
		return 0, nil
	}

	log.Printf("[Retention] Enforcing retention policy (keep %d of %d)", retentionCount, len(backups))

	deleted := 0
	for _, backup := range backups[retentionCount:] {
		log.Printf("[Retention] Deleting old backup: %s (created: %s)",
			backup.ID, backup.CreatedAt.Format("2006-01-02 15:04:05"))

		if err := rm.backupManager.DeleteBackup(backup.ID); err != nil {
			log.Printf("[Retention] Error deleting backup %s: %v", backup.ID, err)
			continue
		}
		deleted++
	}

	log.Printf("[Retention] Retention enforcement complete: deleted %d backups", deleted)
	return deleted, nil
}

// GetRetentionStats returns retention statistics for the given limit
func (rm *RetentionManager) GetRetentionStats(retentionCount int) (*RetentionStats, error) {
	backups, err := rm.retained()
	if err != nil {
		return nil, err
	}

	stats := &RetentionStats{
		TotalBackups:   len(backups),
		RetentionLimit: retentionCount,
	}
	for i, backup := range backups {
		stats.TotalSizeBytes += backup.SizeBytes
		if retentionCount > 0 && i >= retentionCount {
			stats.BackupsToDelete++
			stats.WillDeleteSize += backup.SizeBytes
		}
	}
	return stats, nil
}

// Retention exposes the manager's retention policy helper.
func (m *Manager) Retention() *RetentionManager {
	return m.retention
}
