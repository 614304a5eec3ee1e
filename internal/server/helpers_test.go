package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeProcess is a scripted Process. Output is fed with Emit and ends with
// Exit; onLine lets a test react to stdin.
type fakeProcess struct {
	pid int
	out chan string
	seq atomic.Uint64

	mu       sync.Mutex
	stdin    []string
	writeErr error
	onLine   func(p *fakeProcess, text string)
	code     int

	exitOnce   sync.Once
	exited     chan struct{}
	terminated atomic.Int32
}

var nextPID atomic.Int32

func newFakeProcess() *fakeProcess {
	return &fakeProcess{
		pid:    int(nextPID.Add(1)) + 1000,
		out:    make(chan string, 1024),
		exited: make(chan struct{}),
	}
}

// vanillaProcess acknowledges "stop" and exits like a real server.
func vanillaProcess() *fakeProcess {
	p := newFakeProcess()
	p.onLine = func(p *fakeProcess, text string) {
		if text == "stop" {
			p.Emit("[12:00:00] [Server thread/INFO]: Stopping the server")
			p.Exit(0)
		}
	}
	return p
}

func (p *fakeProcess) Emit(lines ...string) {
	for _, l := range lines {
		p.out <- l
	}
}

func (p *fakeProcess) Exit(code int) {
	p.exitOnce.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		close(p.out)
		close(p.exited)
	})
}

func (p *fakeProcess) SendLine(text string) error {
	p.mu.Lock()
	if p.writeErr != nil {
		err := p.writeErr
		p.mu.Unlock()
		return err
	}
	select {
	case <-p.exited:
		p.mu.Unlock()
		return ErrWrite
	default:
	}
	p.stdin = append(p.stdin, text)
	hook := p.onLine
	p.mu.Unlock()

	if hook != nil {
		hook(p, text)
	}
	return nil
}

func (p *fakeProcess) ReadLine() (OutputLine, error) {
	text, ok := <-p.out
	if !ok {
		return OutputLine{}, io.EOF
	}
	return OutputLine{Seq: p.seq.Add(1), Text: text, Time: time.Now()}, nil
}

func (p *fakeProcess) Terminate(time.Duration) error {
	p.terminated.Add(1)
	p.Exit(130)
	return nil
}

func (p *fakeProcess) Wait() ExitStatus {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return ExitStatus{Code: p.code, ExitedAt: time.Now()}
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Stdin() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stdin...)
}

func (p *fakeProcess) setWriteErr(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

func (p *fakeProcess) isExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// fakeSpawner hands out processes from build, recording each one.
type fakeSpawner struct {
	mu    sync.Mutex
	build func(n int) *fakeProcess
	procs []*fakeProcess
	fail  map[int]error
}

func newFakeSpawner(build func(n int) *fakeProcess) *fakeSpawner {
	return &fakeSpawner{build: build, fail: map[int]error{}}
}

func (f *fakeSpawner) spawn(StartParams) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.procs) + 1
	if err, ok := f.fail[n]; ok {
		return nil, err
	}
	p := f.build(n)
	f.procs = append(f.procs, p)
	return p, nil
}

func (f *fakeSpawner) failOn(n int, err error) {
	f.mu.Lock()
	f.fail[n] = err
	f.mu.Unlock()
}

func (f *fakeSpawner) proc(n int) *fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 1 || n > len(f.procs) {
		return nil
	}
	return f.procs[n-1]
}

func (f *fakeSpawner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.procs)
}

// recordingSink keeps every offered line.
type recordingSink struct {
	mu    sync.Mutex
	lines []OutputLine
}

func (s *recordingSink) Offer(l OutputLine) {
	s.mu.Lock()
	s.lines = append(s.lines, l)
	s.mu.Unlock()
}

func (s *recordingSink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.lines))
	for i, l := range s.lines {
		out[i] = l.Text
	}
	return out
}

// fakeArchiver records the directory it was asked to archive and whether
// the first server process had exited by then. With gate set, Archive
// signals entered and blocks until gate is closed.
type fakeArchiver struct {
	mu         sync.Mutex
	calls      []string
	initiators []string
	err        error
	path       string
	whileRun   func() bool
	sawLive    bool

	entered chan struct{}
	gate    chan struct{}
}

func (a *fakeArchiver) Archive(dir, initiator string) (string, error) {
	if a.gate != nil {
		close(a.entered)
		<-a.gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, dir)
	a.initiators = append(a.initiators, initiator)
	if a.whileRun != nil && a.whileRun() {
		a.sawLive = true
	}
	if a.err != nil {
		return "", a.err
	}
	return a.path, nil
}

func (a *fakeArchiver) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *fakeArchiver) Initiators() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.initiators...)
}

func testOptions(sp *fakeSpawner) Options {
	return Options{
		Params:       StartParams{Executable: "server"},
		WorldDir:     "world",
		StopCommand:  "stop",
		StopTimeout:  500 * time.Millisecond,
		KillGrace:    200 * time.Millisecond,
		ReadyTimeout: 500 * time.Millisecond,
		EchoTimeout:  500 * time.Millisecond,
		Spawner:      sp.spawn,
	}
}

func startSupervisor(t *testing.T, opts Options) *Supervisor {
	t.Helper()
	s := New(opts)
	t.Cleanup(s.Close)
	if err := s.Start(); err != nil {
		t.Fatalf("failed to start supervisor: %v", err)
	}
	return s
}

var errBrokenPipe = errors.New("broken pipe")

// pausingHandler blocks the goroutine that logs msg until release is
// closed. Other records are discarded.
type pausingHandler struct {
	msg     string
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func newPausingHandler(msg string) *pausingHandler {
	return &pausingHandler{msg: msg, reached: make(chan struct{}), release: make(chan struct{})}
}

func (h *pausingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *pausingHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message == h.msg {
		h.once.Do(func() { close(h.reached) })
		<-h.release
	}
	return nil
}

func (h *pausingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *pausingHandler) WithGroup(string) slog.Handler { return h }
