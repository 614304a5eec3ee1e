package console

import (
	"database/sql"
	"fmt"
	"time"
)

// CommandHistory provides command history management
type CommandHistory struct {
	db *sql.DB
}

// CommandRecord represents a command history record
type CommandRecord struct {
	ID           int64     `json:"id"`
	Producer     string    `json:"producer"`
	Command      string    `json:"command"`
	ExecutedAt   time.Time `json:"executed_at"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// NewCommandHistory creates a new command history manager
func NewCommandHistory(db *sql.DB) *CommandHistory {
	return &CommandHistory{db: db}
}

// Record stores one submission. A nil cause means the line was delivered.
func (ch *CommandHistory) Record(producer, command string, at time.Time, cause error) error {
	var errMsg sql.NullString
	if cause != nil {
		errMsg = sql.NullString{String: cause.Error(), Valid: true}
	}
	if at.IsZero() {
		at = time.Now()
	}

	_, err := ch.db.Exec(`
		INSERT INTO console_commands (producer, command, executed_at, success, error_message)
		VALUES (?, ?, ?, ?, ?)
	`, producer, command, at, cause == nil, errMsg)
	if err != nil {
		return fmt.Errorf("failed to save command history: %w", err)
	}
	return nil
}

// GetRecentCommands returns the most recent commands
func (ch *CommandHistory) GetRecentCommands(limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return ch.query(`
		SELECT id, producer, command, executed_at, success, error_message
		FROM console_commands
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, limit)
}

// GetProducerCommands returns commands submitted by a specific producer
func (ch *CommandHistory) GetProducerCommands(producer string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return ch.query(`
		SELECT id, producer, command, executed_at, success, error_message
		FROM console_commands
		WHERE producer = ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, producer, limit)
}

// SearchCommands searches command history
func (ch *CommandHistory) SearchCommands(query string, limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	return ch.query(`
		SELECT id, producer, command, executed_at, success, error_message
		FROM console_commands
		WHERE command LIKE ?
		ORDER BY executed_at DESC, id DESC
		LIMIT ?
	`, "%"+query+"%", limit)
}

// GetAutocomplete returns autocomplete suggestions from command history
func (ch *CommandHistory) GetAutocomplete(prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := ch.db.Query(`
		SELECT command
		FROM console_commands
		WHERE command LIKE ? AND success = 1
		GROUP BY command
		ORDER BY MAX(executed_at) DESC
		LIMIT ?
	`, prefix+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suggestions := []string{}
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			return nil, err
		}
		suggestions = append(suggestions, cmd)
	}

	return suggestions, rows.Err()
}

func (ch *CommandHistory) query(q string, args ...any) ([]CommandRecord, error) {
	rows, err := ch.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	commands := []CommandRecord{}
	for rows.Next() {
		var cmd CommandRecord
		var errMsg sql.NullString
		if err := rows.Scan(&cmd.ID, &cmd.Producer, &cmd.Command, &cmd.ExecutedAt, &cmd.Success, &errMsg); err != nil {
			return nil, err
		}
		cmd.ErrorMessage = errMsg.String
		commands = append(commands, cmd)
	}

	return commands, rows.Err()
}
