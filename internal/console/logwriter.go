package console

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogWriter handles writing console output to a rotating log file
type LogWriter struct {
	logPath string
	out     *lumberjack.Logger
	mu      sync.Mutex
}

// LogWriterConfig contains configuration for log writer
type LogWriterConfig struct {
	Path       string
	MaxSizeMB  int // Max size before rotation
	MaxBackups int
	MaxAgeDays int
}

// NewLogWriter creates a new log writer
func NewLogWriter(config LogWriterConfig) (*LogWriter, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("console log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 50
	}

	lw := &LogWriter{
		logPath: config.Path,
		out: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   true,
		},
	}

	log.Printf("[LogWriter] Writing console output to %s", config.Path)
	return lw, nil
}

// WriteLine implements Output.
func (lw *LogWriter) WriteLine(line server.OutputLine) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	timestamp := line.Time.Format("2006-01-02 15:04:05")
	if _, err := fmt.Fprintf(lw.out, "[%s] %s\n", timestamp, SanitizeLine(line.Text)); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Rotate starts a new file immediately.
func (lw *LogWriter) Rotate() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.out.Rotate()
}

// Path returns the active log file path.
func (lw *LogWriter) Path() string {
	return lw.logPath
}

// Close closes the log file
func (lw *LogWriter) Close() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.out.Close()
}
