package server

import (
	"context"
	"strings"
	"sync"
)

// LineWriter is the write side of a process.
type LineWriter interface {
	SendLine(text string) error
}

type inputRequest struct {
	ctx        context.Context
	producer   string
	text       string
	privileged bool
	result     chan error
}

// InputMux serializes every write to the child's stdin. Requests are
// delivered one at a time in arrival order by the Run loop, which is also
// where the freeze flag is checked.
type InputMux struct {
	requests chan inputRequest

	mu     sync.Mutex
	frozen bool
	target LineWriter

	onWriteError func(error)

	runOnce sync.Once
	done    chan struct{}
}

func NewInputMux(queue int) *InputMux {
	if queue <= 0 {
		queue = 64
	}
	return &InputMux{
		requests: make(chan inputRequest, queue),
		done:     make(chan struct{}),
	}
}

// Run delivers requests until ctx is cancelled. Pending and future
// submissions then fail with ErrNotRunning.
func (m *InputMux) Run(ctx context.Context) {
	m.runOnce.Do(func() {
		defer close(m.done)
		for {
			select {
			case req := <-m.requests:
				req.result <- m.deliver(req)
			case <-ctx.Done():
				for {
					select {
					case req := <-m.requests:
						req.result <- ErrNotRunning
					default:
						return
					}
				}
			}
		}
	})
}

func (m *InputMux) deliver(req inputRequest) error {
	m.mu.Lock()
	frozen, target, onErr := m.frozen, m.target, m.onWriteError
	m.mu.Unlock()

	// The caller already returned ctx.Err(); the line must not be written.
	if err := req.ctx.Err(); err != nil {
		return err
	}
	if frozen && !req.privileged {
		return ErrRejectedBusy
	}
	if target == nil {
		return ErrNotRunning
	}
	if err := target.SendLine(req.text); err != nil {
		if onErr != nil {
			onErr(err)
		}
		return err
	}
	return nil
}

// Submit writes text as one line on behalf of producer and waits for the
// outcome.
func (m *InputMux) Submit(ctx context.Context, producer, text string) error {
	if strings.ContainsAny(text, "\r\n") {
		return ErrInvalidLine
	}
	if m.Frozen() {
		return ErrRejectedBusy
	}
	return m.enqueue(ctx, inputRequest{ctx: ctx, producer: producer, text: text})
}

// sendControl bypasses the freeze. Only the supervisor uses it.
func (m *InputMux) sendControl(ctx context.Context, text string) error {
	return m.enqueue(ctx, inputRequest{ctx: ctx, producer: "supervisor", text: text, privileged: true})
}

func (m *InputMux) enqueue(ctx context.Context, req inputRequest) error {
	req.result = make(chan error, 1)
	select {
	case m.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrNotRunning
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		select {
		case err := <-req.result:
			return err
		default:
			return ErrNotRunning
		}
	}
}

// Freeze makes the mux reject freeform input until Unfreeze.
func (m *InputMux) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

func (m *InputMux) Unfreeze() {
	m.mu.Lock()
	m.frozen = false
	m.mu.Unlock()
}

func (m *InputMux) Frozen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frozen
}

// Attach points the mux at a new process.
func (m *InputMux) Attach(w LineWriter) {
	m.mu.Lock()
	m.target = w
	m.mu.Unlock()
}

// Detach drops the current process if it is still w. A nil w detaches unconditionally.
func (m *InputMux) Detach(w LineWriter) {
	m.mu.Lock()
	if w == nil || m.target == w {
		m.target = nil
	}
	m.mu.Unlock()
}

// OnWriteError installs a callback invoked from the delivery loop when a write fails.
func (m *InputMux) OnWriteError(fn func(error)) {
	m.mu.Lock()
	m.onWriteError = fn
	m.mu.Unlock()
}
