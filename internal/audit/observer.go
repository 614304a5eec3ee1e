// Package audit persists supervisor activity: state changes, player
// sessions and console commands.
package audit

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/console"
	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// Observer writes notifications to sqlite on its own goroutine so database
// latency never delays the other observers.
type Observer struct {
	activity *logging.ActivityLogger
	history  *console.CommandHistory
	sessions *SessionStore
	now      func() time.Time

	queue   chan server.Notification
	dropped atomic.Uint64
	stop    chan struct{}
	once    sync.Once
	done    chan struct{}
	logger  *slog.Logger
}

// NewObserver starts the writer goroutine. Any store may be nil.
func NewObserver(activity *logging.ActivityLogger, history *console.CommandHistory, sessions *SessionStore, queue int) *Observer {
	if queue <= 0 {
		queue = 256
	}
	o := &Observer{
		activity: activity,
		history:  history,
		sessions: sessions,
		now:      time.Now,
		queue:    make(chan server.Notification, queue),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logging.L().With("component", "audit"),
	}
	go o.run()
	return o
}

// Notify implements server.Observer.
func (o *Observer) Notify(n server.Notification) {
	if n.Kind == server.NotifyEvent && n.Event.Kind == server.KindUnrecognized {
		return
	}
	select {
	case o.queue <- n:
	default:
		if total := o.dropped.Add(1); total == 1 || total%100 == 0 {
			o.logger.Warn("audit queue full, dropping records", "dropped_total", total)
		}
	}
}

// Close flushes queued records and stops the writer.
func (o *Observer) Close() {
	o.once.Do(func() { close(o.stop) })
	<-o.done
}

func (o *Observer) run() {
	defer close(o.done)
	for {
		select {
		case n := <-o.queue:
			o.record(n)
		case <-o.stop:
			for {
				select {
				case n := <-o.queue:
					o.record(n)
				default:
					return
				}
			}
		}
	}
}

func (o *Observer) record(n server.Notification) {
	switch n.Kind {
	case server.NotifyState:
		o.recordTransition(n.Transition)
	case server.NotifyEvent:
		o.recordEvent(n)
	case server.NotifyInput:
		o.recordInput(n)
	}
}

func (o *Observer) recordTransition(t server.Transition) {
	if o.activity != nil {
		if err := o.activity.LogStatusChange(t.From.String(), t.To.String(), t.Reason); err != nil {
			o.logger.Error("failed to log state change", "error", err)
		}
	}

	// Players cannot outlive the process that hosted them.
	if t.From == server.StateRunning && t.To != server.StateRunning && o.sessions != nil {
		at := t.At
		if at.IsZero() {
			at = o.now()
		}
		if _, err := o.sessions.CloseAll(at, t.To.String()); err != nil {
			o.logger.Error("failed to close player sessions", "error", err)
		}
	}
}

func (o *Observer) recordEvent(n server.Notification) {
	at := n.Line.Time
	if at.IsZero() {
		at = o.now()
	}

	switch n.Event.Kind {
	case server.KindPlayerJoined, server.KindPlayerLeft:
		joined := n.Event.Kind == server.KindPlayerJoined
		if o.activity != nil {
			if err := o.activity.LogPlayer(n.Event.Player, joined); err != nil {
				o.logger.Error("failed to log player", "error", err)
			}
		}
		if o.sessions == nil {
			return
		}
		var err error
		if joined {
			err = o.sessions.Open(n.Event.Player, n.Generation, at)
		} else {
			err = o.sessions.Close(n.Event.Player, at, "left")
		}
		if err != nil {
			o.logger.Error("failed to record player session", "player", n.Event.Player, "error", err)
		}

	case server.KindServerReady:
		if o.activity == nil {
			return
		}
		err := o.activity.LogActivity(&logging.Activity{
			Timestamp:    at,
			Source:       "server",
			ActivityType: logging.ActivityServerReady,
			Description:  n.Line.Text,
			Metadata:     map[string]any{"generation": n.Generation},
			Success:      true,
		})
		if err != nil {
			o.logger.Error("failed to log ready", "error", err)
		}
	}
}

func (o *Observer) recordInput(n server.Notification) {
	errMsg := ""
	if n.Err != nil {
		errMsg = n.Err.Error()
	}
	if o.history != nil {
		if err := o.history.Record(n.Producer, n.Text, o.now(), n.Err); err != nil {
			o.logger.Error("failed to record command", "error", err)
		}
	}
	if o.activity != nil {
		if err := o.activity.LogCommandExecute(n.Producer, n.Text, errMsg); err != nil {
			o.logger.Error("failed to log command", "error", err)
		}
	}
}
