package console

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// Output receives every line the sink accepts, in order.
type Output interface {
	WriteLine(line server.OutputLine) error
}

// OutputFunc adapts a function to Output.
type OutputFunc func(server.OutputLine) error

func (f OutputFunc) WriteLine(line server.OutputLine) error { return f(line) }

// Sink is the passive consumer of server output. Offer never blocks: when
// the buffer is full the oldest queued line is dropped. A single writer
// goroutine fans lines out to the outputs.
type Sink struct {
	queue   chan server.OutputLine
	outputs []Output
	dropped atomic.Uint64
	onDrop  func()
	logger  *slog.Logger

	warnMu   sync.Mutex
	lastWarn time.Time
}

// NewSink creates a sink with room for buffer pending lines.
func NewSink(buffer int, outputs ...Output) *Sink {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Sink{
		queue:   make(chan server.OutputLine, buffer),
		outputs: outputs,
		logger:  logging.L().With("component", "console_sink"),
	}
}

// OnDrop registers a hook called once per dropped line.
func (s *Sink) OnDrop(fn func()) {
	s.onDrop = fn
}

// Offer implements server.LineSink.
func (s *Sink) Offer(line server.OutputLine) {
	select {
	case s.queue <- line:
		return
	default:
	}
	select {
	case <-s.queue:
	default:
	}
	select {
	case s.queue <- line:
	default:
	}
	s.recordDrop()
}

func (s *Sink) recordDrop() {
	total := s.dropped.Add(1)
	if s.onDrop != nil {
		s.onDrop()
	}

	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	if time.Since(s.lastWarn) < 5*time.Second {
		return
	}
	s.lastWarn = time.Now()
	s.logger.Warn("console sink full, dropping oldest output", "dropped_total", total)
}

// Dropped returns the number of lines discarded so far.
func (s *Sink) Dropped() uint64 {
	return s.dropped.Load()
}

// Run writes queued lines to the outputs until ctx is cancelled, then
// flushes what is left.
func (s *Sink) Run(ctx context.Context) {
	for {
		select {
		case line := <-s.queue:
			s.write(line)
		case <-ctx.Done():
			for {
				select {
				case line := <-s.queue:
					s.write(line)
				default:
					return
				}
			}
		}
	}
}

func (s *Sink) write(line server.OutputLine) {
	for _, out := range s.outputs {
		if err := out.WriteLine(line); err != nil {
			s.logger.Debug("console output failed", "seq", line.Seq, "error", err)
		}
	}
}

// Echo mirrors lines verbatim to w, normally the wrapper's stdout.
func Echo(w io.Writer) Output {
	return OutputFunc(func(line server.OutputLine) error {
		_, err := fmt.Fprintln(w, line.Text)
		return err
	})
}
