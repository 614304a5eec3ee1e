package server

import "errors"

var (
	// ErrSpawn is returned when the child process could not be launched.
	ErrSpawn = errors.New("failed to spawn server process")
	// ErrWrite is returned when a line could not be written to the child's stdin.
	ErrWrite = errors.New("failed to write to server stdin")
	// ErrRead is returned when the child's output stream failed for a reason other than EOF.
	ErrRead = errors.New("failed to read server output")

	// ErrAlreadyStopping means a stop or backup is already in flight.
	ErrAlreadyStopping = errors.New("server is already stopping")
	// ErrRejectedBusy means input was refused because a stop or backup froze the console.
	ErrRejectedBusy = errors.New("server is busy, input rejected")
	// ErrNotRunning means the operation requires a running server.
	ErrNotRunning = errors.New("server is not running")
	// ErrRestartFailed means the server did not report ready after a backup restart.
	ErrRestartFailed = errors.New("server did not become ready after restart")
	// ErrArchive wraps failures of the archive step of a backup.
	ErrArchive = errors.New("archive failed")

	ErrInvalidLine = errors.New("input must be a single line")
)
