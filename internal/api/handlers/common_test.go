package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/TheGojiOG/mc-server-wrapper/internal/database"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type submission struct {
	producer string
	line     string
}

// fakeSupervisor implements Supervisor for testing
type fakeSupervisor struct {
	mu        sync.Mutex
	status    server.Status
	players   []server.Player
	playerErr error
	stopErr   error
	submitErr error
	echo      server.Event
	backup    *server.BackupResult
	backupErr error
	submitted []submission
	stops     int
}

func (f *fakeSupervisor) Status() server.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSupervisor) ListPlayers() ([]server.Player, error) {
	return f.players, f.playerErr
}

func (f *fakeSupervisor) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr == nil {
		f.status.State = server.StatusStopped
	}
	return f.stopErr
}

func (f *fakeSupervisor) Backup() (*server.BackupResult, error) {
	return f.backup, f.backupErr
}

func (f *fakeSupervisor) Submit(ctx context.Context, producer, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, submission{producer: producer, line: line})
	return nil
}

func (f *fakeSupervisor) SendAndAwaitEcho(ctx context.Context, producer, line string) (server.Event, error) {
	if err := f.Submit(ctx, producer, line); err != nil {
		return server.Event{}, err
	}
	return f.echo, nil
}

func (f *fakeSupervisor) Submitted() []submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]submission(nil), f.submitted...)
}

var _ Supervisor = (*fakeSupervisor)(nil)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}
