package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TheGojiOG/mc-server-wrapper/internal/config"
	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

type stubSupervisor struct{}

func (stubSupervisor) Status() server.Status {
	return server.Status{State: server.StatusRunning, Ready: true}
}
func (stubSupervisor) ListPlayers() ([]server.Player, error) {
	return []server.Player{{Name: "Alice"}}, nil
}
func (stubSupervisor) Stop() error { return nil }
func (stubSupervisor) Backup() (*server.BackupResult, error) {
	return nil, server.ErrNotRunning
}
func (stubSupervisor) Submit(context.Context, string, string) error {
	return nil
}
func (stubSupervisor) SendAndAwaitEcho(context.Context, string, string) (server.Event, error) {
	return server.Event{}, nil
}

func newTestRouter(t *testing.T, metrics http.Handler) http.Handler {
	t.Helper()
	return SetupRouter(Deps{
		Config:     config.Default(),
		ConfigPath: t.TempDir() + "/config.yaml",
		Supervisor: stubSupervisor{},
		Ring:       console.NewRingBuffer(10),
		Metrics:    metrics,
	})
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if body["server"] != server.StatusRunning || body["ready"] != true {
		t.Fatalf("unexpected health body: %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestLegacyRoutes(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/list-players", nil))
	if w.Code != http.StatusOK || w.Body.String() != `["Alice"]` {
		t.Fatalf("unexpected /list-players response: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stop", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 from /stop, got %d", w.Code)
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mc_wrapper_players_online 0\n"))
	})
	r := newTestRouter(t, metrics)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK || w.Body.Len() == 0 {
		t.Fatalf("expected metrics output, got %d", w.Code)
	}
}

func TestOptionalRoutesAbsent(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/backups", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a backup manager, got %d", w.Code)
	}
}
