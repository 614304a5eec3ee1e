package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// value returns the gauge or counter value of name with the given labels.
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !hasLabels(m, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Histogram != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestCollectorTracksPlayersAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_process_state", map[string]string{"state": "not_started"}))

	c.Notify(server.Notification{Kind: server.NotifyState, Transition: server.Transition{From: server.StateNotStarted, To: server.StateRunning}})
	c.Notify(server.Notification{Kind: server.NotifyEvent, Event: server.Event{Kind: server.KindPlayerJoined, Player: "Alice"}})
	c.Notify(server.Notification{Kind: server.NotifyEvent, Event: server.Event{Kind: server.KindPlayerJoined, Player: "Bob"}})
	c.Notify(server.Notification{Kind: server.NotifyEvent, Event: server.Event{Kind: server.KindPlayerLeft, Player: "Alice"}})

	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_players_online", nil))
	assert.Equal(t, 2.0, value(t, reg, "mc_wrapper_events_total", map[string]string{"kind": "player_joined"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_process_state", map[string]string{"state": "running"}))
	assert.Equal(t, 0.0, value(t, reg, "mc_wrapper_process_state", map[string]string{"state": "not_started"}))
	assert.Equal(t, 0.0, value(t, reg, "mc_wrapper_restarts_total", nil))

	c.Notify(server.Notification{Kind: server.NotifyState, Transition: server.Transition{From: server.StateRunning, To: server.StateStopping}})
	assert.Equal(t, 0.0, value(t, reg, "mc_wrapper_players_online", nil))

	c.Notify(server.Notification{Kind: server.NotifyState, Transition: server.Transition{From: server.StateStopped, To: server.StateRunning, Pending: server.PendingBackup}})
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_restarts_total", nil))
}

func TestCollectorInputsAndLines(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.WriteLine(server.OutputLine{Seq: uint64(i), Text: "line"}))
	}
	c.RecordSinkDrop()

	c.Notify(server.Notification{Kind: server.NotifyInput, Producer: "http", Text: "say hi"})
	c.Notify(server.Notification{Kind: server.NotifyInput, Producer: "http", Text: "say hi", Err: server.ErrRejectedBusy})
	c.Notify(server.Notification{Kind: server.NotifyInput, Producer: "console", Text: "list", Err: fmt.Errorf("wrap: %w", server.ErrNotRunning)})

	assert.Equal(t, 3.0, value(t, reg, "mc_wrapper_output_lines_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_sink_dropped_lines_total", nil))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_input_submissions_total", map[string]string{"producer": "http", "result": "accepted"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_input_submissions_total", map[string]string{"producer": "http", "result": "rejected_busy"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_input_submissions_total", map[string]string{"producer": "console", "result": "not_running"}))
}

func TestCollectorBackups(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	_, err := c.ObserveBackup(func() (*server.BackupResult, error) {
		return &server.BackupResult{Restarted: true, Duration: 42 * time.Second}, nil
	})
	require.NoError(t, err)

	_, err = c.ObserveBackup(func() (*server.BackupResult, error) {
		return &server.BackupResult{Restarted: true}, fmt.Errorf("%w: disk full", server.ErrArchive)
	})
	require.ErrorIs(t, err, server.ErrArchive)

	_, err = c.ObserveBackup(func() (*server.BackupResult, error) {
		return nil, server.ErrAlreadyStopping
	})
	require.ErrorIs(t, err, server.ErrAlreadyStopping)

	c.RecordBackup(&server.BackupResult{}, errors.Join(server.ErrRestartFailed))

	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_backups_total", map[string]string{"result": "success"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_backups_total", map[string]string{"result": "archive_failed"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_backups_total", map[string]string{"result": "rejected"}))
	assert.Equal(t, 1.0, value(t, reg, "mc_wrapper_backups_total", map[string]string{"result": "failed"}))
	assert.Equal(t, 2.0, value(t, reg, "mc_wrapper_backup_duration_seconds", nil))
}

func TestCollectorHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSinkDrop()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.True(t, strings.Contains(string(body), "mc_wrapper_sink_dropped_lines_total 1"))
}
