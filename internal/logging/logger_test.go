package logging

import (
	"bytes"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
)

func TestInitWritesToRotatingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "wrapper.log")

	if _, err := Init(config.LoggingConfig{
		Level:      "debug",
		Format:     "json",
		File:       logPath,
		MaxSize:    10,
		MaxBackups: 1,
		MaxAge:     1,
	}); err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	L().Info("supervisor_started", "pid", 42)
	log.Printf("[Backup] legacy line")
	if err := Close(); err != nil {
		t.Fatalf("failed to close logger: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	for _, want := range []string{`"msg":"supervisor_started"`, `"service":"mc-wrapper"`, "[Backup] legacy line"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("expected %q in log file, got %s", want, data)
		}
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	SetLevel("warning")
	if Level() != slog.LevelWarn {
		t.Fatalf("expected warn level, got %v", Level())
	}
	SetLevel("nonsense")
	if Level() != slog.LevelInfo {
		t.Fatalf("unknown names should fall back to info, got %v", Level())
	}
}

func TestSlogWriterSkipsBlankLines(t *testing.T) {
	var buf bytes.Buffer
	w := slogWriter{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	if n, err := w.Write([]byte("  \n")); err != nil || n != 3 {
		t.Fatalf("unexpected write result %d, %v", n, err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected blank line to be dropped, got %q", buf.String())
	}

	w.Write([]byte("[TLS] issued certificate\n"))
	if !strings.Contains(buf.String(), "[TLS] issued certificate") {
		t.Fatalf("expected message to be forwarded, got %q", buf.String())
	}
}
