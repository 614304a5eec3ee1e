package server

import (
	"errors"
	"io"
	"log/slog"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

// LineSink is the passive consumer of raw output. Offer must not block.
type LineSink interface {
	Offer(line OutputLine)
}

// DiscardSink drops every line.
type DiscardSink struct{}

func (DiscardSink) Offer(OutputLine) {}

// eventHandler receives classified output for one process generation.
type eventHandler interface {
	handleEvent(gen uint64, line OutputLine, ev Event)
	handleEndOfStream(gen uint64, err error)
}

// Broadcaster owns the read side of one process: it forwards every line to
// the sink, classifies it, and hands the event to the supervisor.
type Broadcaster struct {
	proc       Process
	sink       LineSink
	handler    eventHandler
	generation uint64
	classify   func(string) Event
	logger     *slog.Logger
}

func newBroadcaster(proc Process, sink LineSink, handler eventHandler, generation uint64) *Broadcaster {
	if sink == nil {
		sink = DiscardSink{}
	}
	return &Broadcaster{
		proc:       proc,
		sink:       sink,
		handler:    handler,
		generation: generation,
		classify:   Classify,
		logger:     logging.L().With("component", "broadcaster", "generation", generation),
	}
}

// Run reads until the stream ends. It returns after reporting the end of
// stream to the handler.
func (b *Broadcaster) Run() {
	b.logger.Debug("output reader started", "pid", b.proc.PID())
	for {
		line, err := b.proc.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.logger.Info("server output closed")
				err = nil
			} else {
				b.logger.Error("server output failed", "error", err)
			}
			b.handler.handleEndOfStream(b.generation, err)
			return
		}

		b.sink.Offer(line)
		b.handler.handleEvent(b.generation, line, b.classify(line.Text))
	}
}
