package logging

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ActivityLogger records wrapper activity to the database and to daily JSONL files
type ActivityLogger struct {
	db          *sql.DB
	logDir      string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	mu          sync.Mutex
}

// Activity represents a logged activity
type Activity struct {
	Timestamp    time.Time      `json:"timestamp"`
	Source       string         `json:"source,omitempty"`
	ActivityType string         `json:"activity_type"`
	Description  string         `json:"description"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Activity type constants
const (
	ActivityServerStart        = "server.start"
	ActivityServerReady        = "server.ready"
	ActivityServerStop         = "server.stop"
	ActivityServerCrash        = "server.crash"
	ActivityServerStatusChange = "server.status_change"
	ActivityPlayerJoin         = "player.join"
	ActivityPlayerLeave        = "player.leave"
	ActivityCommandExecute     = "command.execute"
	ActivityBackupCreate       = "backup.create"
	ActivityError              = "error"
)

// NewActivityLogger creates a new activity logger
func NewActivityLogger(db *sql.DB, logDir string) (*ActivityLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logger := &ActivityLogger{
		db:     db,
		logDir: logDir,
		now:    time.Now,
	}

	log.Printf("[ActivityLogger] Initialized (log directory: %s)", logDir)

	return logger, nil
}

// LogActivity logs an activity to both database and file
func (al *ActivityLogger) LogActivity(activity *Activity) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if activity.Timestamp.IsZero() {
		activity.Timestamp = al.now()
	}

	// Database failures are logged; the file is the record of last resort.
	if err := al.logToDatabase(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to database: %v", err)
	}

	if err := al.logToFile(activity); err != nil {
		log.Printf("[ActivityLogger] Error logging to file: %v", err)
		return err
	}

	return nil
}

// LogStatusChange logs a supervisor state transition
func (al *ActivityLogger) LogStatusChange(oldStatus, newStatus, reason string) error {
	activityType := ActivityServerStatusChange
	success := true
	switch newStatus {
	case "running":
		activityType = ActivityServerStart
	case "stopped":
		activityType = ActivityServerStop
	case "crashed":
		activityType = ActivityServerCrash
		success = false
	}

	return al.LogActivity(&Activity{
		Source:       "supervisor",
		ActivityType: activityType,
		Description:  fmt.Sprintf("Status changed: %s -> %s", oldStatus, newStatus),
		Metadata: map[string]any{
			"old_status": oldStatus,
			"new_status": newStatus,
			"reason":     reason,
		},
		Success:      success,
		ErrorMessage: errorIf(!success, reason),
	})
}

// LogPlayer logs a join or leave
func (al *ActivityLogger) LogPlayer(player string, joined bool) error {
	activityType, verb := ActivityPlayerLeave, "left"
	if joined {
		activityType, verb = ActivityPlayerJoin, "joined"
	}
	return al.LogActivity(&Activity{
		Source:       "server",
		ActivityType: activityType,
		Description:  fmt.Sprintf("%s %s the game", player, verb),
		Metadata:     map[string]any{"player": player},
		Success:      true,
	})
}

// LogCommandExecute logs a console command submission
func (al *ActivityLogger) LogCommandExecute(source, command string, errorMsg string) error {
	return al.LogActivity(&Activity{
		Source:       source,
		ActivityType: ActivityCommandExecute,
		Description:  fmt.Sprintf("Command submitted: %s", truncate(command, 200)),
		Metadata:     map[string]any{"command": command},
		Success:      errorMsg == "",
		ErrorMessage: errorMsg,
	})
}

// LogBackup logs the outcome of a backup cycle
func (al *ActivityLogger) LogBackup(source, archivePath string, duration time.Duration, errorMsg string) error {
	return al.LogActivity(&Activity{
		Source:       source,
		ActivityType: ActivityBackupCreate,
		Description:  "World backup",
		Metadata: map[string]any{
			"archive":     archivePath,
			"duration_ms": duration.Milliseconds(),
		},
		Success:      errorMsg == "",
		ErrorMessage: errorMsg,
	})
}

// LogError logs a general error
func (al *ActivityLogger) LogError(source, errorType, errorMsg string, metadata map[string]any) error {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["error_type"] = errorType

	return al.LogActivity(&Activity{
		Source:       source,
		ActivityType: ActivityError,
		Description:  errorType,
		Metadata:     metadata,
		Success:      false,
		ErrorMessage: errorMsg,
	})
}

// GetActivities retrieves activities from the database, newest first
func (al *ActivityLogger) GetActivities(activityType string, since time.Time, limit int) ([]*Activity, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT timestamp, source, activity_type, description, metadata, success, error_message
		FROM activity_log
		WHERE 1=1
	`
	args := make([]any, 0)

	if activityType != "" {
		query += " AND activity_type = ?"
		args = append(args, activityType)
	}

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	activities := make([]*Activity, 0)

	for rows.Next() {
		activity := &Activity{}
		var metadataJSON sql.NullString

		err := rows.Scan(
			&activity.Timestamp,
			&activity.Source,
			&activity.ActivityType,
			&activity.Description,
			&metadataJSON,
			&activity.Success,
			&activity.ErrorMessage,
		)
		if err != nil {
			log.Printf("[ActivityLogger] Error scanning row: %v", err)
			continue
		}

		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &activity.Metadata); err != nil {
				log.Printf("[ActivityLogger] Error unmarshaling metadata: %v", err)
			}
		}

		activities = append(activities, activity)
	}

	return activities, rows.Err()
}

// GetRecentActivities retrieves the most recent activities
func (al *ActivityLogger) GetRecentActivities(limit int) ([]*Activity, error) {
	return al.GetActivities("", time.Time{}, limit)
}

func (al *ActivityLogger) logToDatabase(activity *Activity) error {
	if al.db == nil {
		return nil
	}

	metadataJSON, err := json.Marshal(activity.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO activity_log (
			timestamp, source, activity_type,
			description, metadata, success, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = al.db.Exec(
		query,
		activity.Timestamp,
		activity.Source,
		activity.ActivityType,
		activity.Description,
		string(metadataJSON),
		activity.Success,
		activity.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

func (al *ActivityLogger) logToFile(activity *Activity) error {
	currentDate := al.now().Format("2006-01-02")

	if al.currentFile == nil || al.currentDate != currentDate {
		if err := al.rotateLogFile(currentDate); err != nil {
			return fmt.Errorf("failed to rotate log file: %w", err)
		}
	}

	line, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("failed to marshal activity: %w", err)
	}

	if _, err := fmt.Fprintf(al.currentFile, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	switch activity.ActivityType {
	case ActivityServerStop, ActivityServerCrash, ActivityBackupCreate, ActivityError:
		al.currentFile.Sync()
	}

	return nil
}

func (al *ActivityLogger) rotateLogFile(date string) error {
	if al.currentFile != nil {
		al.currentFile.Close()
		al.currentFile = nil
	}

	logPath := filepath.Join(al.logDir, fmt.Sprintf("activity-%s.log", date))

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	al.currentFile = file
	al.currentDate = date

	log.Printf("[ActivityLogger] Rotated log file to: %s", logPath)

	go func() {
		if n, err := al.CompressOldLogs(date); err != nil {
			log.Printf("[ActivityLogger] Failed to compress old logs: %v", err)
		} else if n > 0 {
			log.Printf("[ActivityLogger] Compressed %d old log file(s)", n)
		}
	}()

	return nil
}

// CompressOldLogs gzips every daily file except the one for keepDate.
func (al *ActivityLogger) CompressOldLogs(keepDate string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(al.logDir, "activity-*.log"))
	if err != nil {
		return 0, err
	}

	keep := fmt.Sprintf("activity-%s.log", keepDate)
	compressed := 0
	for _, path := range matches {
		if filepath.Base(path) == keep {
			continue
		}
		if err := gzipFile(path); err != nil {
			return compressed, err
		}
		compressed++
	}
	return compressed, nil
}

func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(path+".gz", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	zw := gzip.NewWriter(dst)
	zw.Name = filepath.Base(path)
	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		dst.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}
	src.Close()
	return os.Remove(path)
}

// Close closes the activity logger
func (al *ActivityLogger) Close() error {
	al.mu.Lock()
	defer al.mu.Unlock()

	if al.currentFile != nil {
		err := al.currentFile.Close()
		al.currentFile = nil
		return err
	}

	return nil
}

// CleanupOldActivities removes activities older than a specified duration
func (al *ActivityLogger) CleanupOldActivities(olderThan time.Duration) error {
	if al.db == nil {
		return fmt.Errorf("database not available")
	}

	cutoff := al.now().Add(-olderThan)

	result, err := al.db.Exec(`
		DELETE FROM activity_log
		WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup old activities: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	log.Printf("[ActivityLogger] Cleaned up %d activities older than %v", rowsAffected, olderThan)

	return nil
}

// GetActivityStats counts activities by type
func (al *ActivityLogger) GetActivityStats(since time.Time) (map[string]int, error) {
	if al.db == nil {
		return nil, fmt.Errorf("database not available")
	}

	query := `
		SELECT activity_type, COUNT(*) as count
		FROM activity_log
		WHERE 1=1
	`
	args := make([]any, 0)

	if !since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, since)
	}

	query += " GROUP BY activity_type"

	rows, err := al.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]int)
	for rows.Next() {
		var activityType string
		var count int
		if err := rows.Scan(&activityType, &count); err != nil {
			log.Printf("[ActivityLogger] Error scanning stats row: %v", err)
			continue
		}
		stats[activityType] = count
	}

	return stats, rows.Err()
}

func errorIf(cond bool, msg string) string {
	if cond {
		return msg
	}
	return ""
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
