package database

// Migration represents a database migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// migrations contains all database migrations in order
var migrations = []Migration{
	{
		Version: "001_activity_log",
		Up: `
CREATE TABLE IF NOT EXISTS activity_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp DATETIME NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    activity_type TEXT NOT NULL,
    description TEXT NOT NULL,
    metadata TEXT,
    success BOOLEAN NOT NULL DEFAULT 1,
    error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_activity_log_timestamp ON activity_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_activity_log_type ON activity_log(activity_type, timestamp DESC);
`,
		Down: `
DROP TABLE IF EXISTS activity_log;
`,
	},
	{
		Version: "002_backups",
		Up: `
CREATE TABLE IF NOT EXISTS backups (
    id TEXT PRIMARY KEY,
    filename TEXT NOT NULL,
    local_path TEXT NOT NULL,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    file_count INTEGER NOT NULL DEFAULT 0,
    checksum TEXT NOT NULL DEFAULT '',
    compression TEXT NOT NULL DEFAULT 'gzip',
    status TEXT NOT NULL DEFAULT 'creating',
    error_message TEXT,
    destinations TEXT,
    triggered_by TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    completed_at TIMESTAMP,
    deleted_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_backups_created_at ON backups(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_backups_status ON backups(status);
`,
		Down: `
DROP TABLE IF EXISTS backups;
`,
	},
	{
		Version: "003_console",
		Up: `
-- Every line submitted to the server console, from any producer
CREATE TABLE IF NOT EXISTS console_commands (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    producer TEXT NOT NULL,
    command TEXT NOT NULL,
    executed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    success BOOLEAN DEFAULT 1,
    error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_console_commands_executed ON console_commands(executed_at DESC);
CREATE INDEX IF NOT EXISTS idx_console_commands_producer ON console_commands(producer, executed_at DESC);
`,
		Down: `
DROP TABLE IF EXISTS console_commands;
`,
	},
	{
		Version: "004_player_sessions",
		Up: `
CREATE TABLE IF NOT EXISTS player_sessions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    player TEXT NOT NULL,
    generation INTEGER NOT NULL DEFAULT 0,
    joined_at TIMESTAMP NOT NULL,
    left_at TIMESTAMP,
    end_reason TEXT
);

CREATE INDEX IF NOT EXISTS idx_player_sessions_player ON player_sessions(player, joined_at DESC);
CREATE INDEX IF NOT EXISTS idx_player_sessions_open ON player_sessions(left_at);
`,
		Down: `
DROP TABLE IF EXISTS player_sessions;
`,
	},
}
