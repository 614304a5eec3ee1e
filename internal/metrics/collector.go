package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

const namespace = "mc_wrapper"

// Collector exposes supervisor activity as Prometheus metrics. It is a
// server.Observer and a console output.
type Collector struct {
	registry prometheus.Gatherer

	outputLines   prometheus.Counter
	sinkDropped   prometheus.Counter
	events        *prometheus.CounterVec
	playersOnline prometheus.Gauge
	state         *prometheus.GaugeVec
	inputs        *prometheus.CounterVec
	backups       *prometheus.CounterVec
	backupSeconds prometheus.Histogram
	restarts      prometheus.Counter
}

// NewCollector registers the wrapper metrics on reg.
func NewCollector(reg *prometheus.Registry) *Collector {
	c := &Collector{
		registry: reg,
		outputLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_lines_total",
			Help:      "Lines read from the server output",
		}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dropped_lines_total",
			Help:      "Output lines discarded because the console sink was full",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Classified output events by kind",
		}, []string{"kind"}),
		playersOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "players_online",
			Help:      "Players currently connected",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_state",
			Help:      "1 for the current lifecycle state of the server process",
		}, []string{"state"}),
		inputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "input_submissions_total",
			Help:      "Console input submissions by producer and result",
		}, []string{"producer", "result"}),
		backups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup cycles by result",
		}, []string{"result"}),
		backupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backup_duration_seconds",
			Help:      "Duration of stop, archive and restart cycles",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		restarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restarts_total",
			Help:      "Times the server was started again after stopping",
		}),
	}

	reg.MustRegister(
		c.outputLines,
		c.sinkDropped,
		c.events,
		c.playersOnline,
		c.state,
		c.inputs,
		c.backups,
		c.backupSeconds,
		c.restarts,
	)
	c.setState(server.StateNotStarted)

	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// WriteLine counts a line of server output.
func (c *Collector) WriteLine(server.OutputLine) error {
	c.outputLines.Inc()
	return nil
}

// RecordSinkDrop counts a line the console sink discarded.
func (c *Collector) RecordSinkDrop() {
	c.sinkDropped.Inc()
}

// Notify implements server.Observer.
func (c *Collector) Notify(n server.Notification) {
	switch n.Kind {
	case server.NotifyEvent:
		c.events.WithLabelValues(n.Event.Kind.String()).Inc()
		switch n.Event.Kind {
		case server.KindPlayerJoined:
			c.playersOnline.Inc()
		case server.KindPlayerLeft:
			c.playersOnline.Dec()
		}

	case server.NotifyState:
		t := n.Transition
		c.setState(t.To)
		if t.To != server.StateRunning {
			// The player set is cleared whenever the process goes away.
			c.playersOnline.Set(0)
		} else if t.From != server.StateNotStarted {
			c.restarts.Inc()
		}

	case server.NotifyInput:
		c.inputs.WithLabelValues(n.Producer, inputResult(n.Err)).Inc()
	}
}

// RecordBackup records the outcome of a backup cycle.
func (c *Collector) RecordBackup(result *server.BackupResult, err error) {
	if result != nil && result.Duration > 0 {
		c.backupSeconds.Observe(result.Duration.Seconds())
	}
	c.backups.WithLabelValues(backupResult(result, err)).Inc()
}

// ObserveBackup runs fn and records its result.
func (c *Collector) ObserveBackup(fn func() (*server.BackupResult, error)) (*server.BackupResult, error) {
	start := time.Now()
	result, err := fn()
	if result != nil && result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	c.RecordBackup(result, err)
	return result, err
}

func (c *Collector) setState(current server.State) {
	for _, s := range server.States {
		v := 0.0
		if s == current {
			v = 1
		}
		c.state.WithLabelValues(s.String()).Set(v)
	}
}

func inputResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, server.ErrRejectedBusy):
		return "rejected_busy"
	case errors.Is(err, server.ErrNotRunning):
		return "not_running"
	case errors.Is(err, server.ErrInvalidLine):
		return "invalid"
	default:
		return "error"
	}
}

func backupResult(result *server.BackupResult, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, server.ErrAlreadyStopping), errors.Is(err, server.ErrNotRunning):
		return "rejected"
	case result != nil && result.Restarted && errors.Is(err, server.ErrArchive):
		return "archive_failed"
	default:
		return "failed"
	}
}
