package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/backup"
)

// BackupHandler serves the backup catalogue. Taking a backup goes through
// the supervisor so the server is stopped around the archive.
type BackupHandler struct {
	manager        *backup.Manager
	retentionCount int
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(manager *backup.Manager, retentionCount int) *BackupHandler {
	return &BackupHandler{manager: manager, retentionCount: retentionCount}
}

// ListBackups lists recorded backups, newest first
// GET /api/v1/backups?limit=50
func (h *BackupHandler) ListBackups(c *gin.Context) {
	backups, err := h.manager.ListBackups(queryLimit(c, "limit", 50))
	if err != nil {
		log.Printf("[Backups] Failed to list backups: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	if backups == nil {
		backups = []*backup.BackupRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"backups": backups,
		"count":   len(backups),
	})
}

// GetBackup returns one backup record
// GET /api/v1/backups/:id
func (h *BackupHandler) GetBackup(c *gin.Context) {
	record, err := h.manager.GetBackup(c.Param("id"))
	if err != nil {
		if !errors.Is(err, backup.ErrBackupNotFound) {
			log.Printf("[Backups] Failed to get backup: %v", err)
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// DeleteBackup removes an archive everywhere it was stored
// DELETE /api/v1/backups/:id
func (h *BackupHandler) DeleteBackup(c *gin.Context) {
	if err := h.manager.DeleteBackup(c.Param("id")); err != nil {
		if !errors.Is(err, backup.ErrBackupNotFound) {
			log.Printf("[Backups] Failed to delete backup: %v", err)
		}
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetRetentionStats reports what the retention policy would remove
// GET /api/v1/backups/retention
func (h *BackupHandler) GetRetentionStats(c *gin.Context) {
	stats, err := h.manager.Retention().GetRetentionStats(h.retentionCount)
	if err != nil {
		log.Printf("[Backups] Failed to get retention stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get retention stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
