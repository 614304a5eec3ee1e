package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// PlayerSession is one stay of a player on the server.
type PlayerSession struct {
	ID         int64      `json:"id"`
	Player     string     `json:"player"`
	Generation uint64     `json:"generation"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	EndReason  string     `json:"end_reason,omitempty"`
}

// SessionStore persists player sessions to the player_sessions table.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Open starts a session unless the player already has an open one.
func (s *SessionStore) Open(player string, generation uint64, at time.Time) error {
	var open int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM player_sessions WHERE player = ? AND left_at IS NULL`, player,
	).Scan(&open); err != nil {
		return fmt.Errorf("failed to check open session: %w", err)
	}
	if open > 0 {
		return nil
	}

	_, err := s.db.Exec(`
		INSERT INTO player_sessions (player, generation, joined_at)
		VALUES (?, ?, ?)
	`, player, generation, at)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	return nil
}

// Close ends the open session of a player, if any.
func (s *SessionStore) Close(player string, at time.Time, reason string) error {
	_, err := s.db.Exec(`
		UPDATE player_sessions
		SET left_at = ?, end_reason = ?
		WHERE player = ? AND left_at IS NULL
	`, at, reason, player)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// CloseAll ends every open session, used when the server goes down.
func (s *SessionStore) CloseAll(at time.Time, reason string) (int64, error) {
	result, err := s.db.Exec(`
		UPDATE player_sessions
		SET left_at = ?, end_reason = ?
		WHERE left_at IS NULL
	`, at, reason)
	if err != nil {
		return 0, fmt.Errorf("failed to close sessions: %w", err)
	}
	return result.RowsAffected()
}

// Recent returns the latest sessions, optionally for one player.
func (s *SessionStore) Recent(player string, limit int) ([]PlayerSession, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, player, generation, joined_at, left_at, end_reason
		FROM player_sessions
	`
	args := []any{}
	if player != "" {
		query += " WHERE player = ?"
		args = append(args, player)
	}
	query += " ORDER BY joined_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []PlayerSession{}
	for rows.Next() {
		var ps PlayerSession
		var leftAt sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&ps.ID, &ps.Player, &ps.Generation, &ps.JoinedAt, &leftAt, &reason); err != nil {
			return nil, err
		}
		if leftAt.Valid {
			t := leftAt.Time
			ps.LeftAt = &t
		}
		ps.EndReason = reason.String
		sessions = append(sessions, ps)
	}
	return sessions, rows.Err()
}
