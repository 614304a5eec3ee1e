package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

// Archiver snapshots the world directory while the server is stopped and
// returns the location of the archive. initiator is the label passed to
// BackupFor, empty for a plain Backup.
type Archiver interface {
	Archive(dir, initiator string) (string, error)
}

// Options configures a Supervisor.
type Options struct {
	Params       StartParams
	WorldDir     string
	StopCommand  string
	StopTimeout  time.Duration
	KillGrace    time.Duration
	ReadyTimeout time.Duration
	EchoTimeout  time.Duration
	InputQueue   int
	NotifyQueue  int

	Spawner   Spawner
	Archiver  Archiver
	Sink      LineSink
	Observers []Observer

	// Logger defaults to logging.L().
	Logger *slog.Logger
}

// DefaultOptions returns options for a vanilla Minecraft server.
func DefaultOptions() Options {
	return Options{
		Params: StartParams{
			Executable: "java",
			Args:       []string{"-jar", "server.jar", "nogui"},
		},
		WorldDir:     "world",
		StopCommand:  "stop",
		StopTimeout:  60 * time.Second,
		KillGrace:    10 * time.Second,
		ReadyTimeout: 120 * time.Second,
		EchoTimeout:  5 * time.Second,
		InputQueue:   64,
		NotifyQueue:  1024,
	}
}

func (o *Options) applyDefaults() {
	def := DefaultOptions()
	if o.StopCommand == "" {
		o.StopCommand = def.StopCommand
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = def.StopTimeout
	}
	if o.KillGrace <= 0 {
		o.KillGrace = def.KillGrace
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = def.ReadyTimeout
	}
	if o.EchoTimeout <= 0 {
		o.EchoTimeout = def.EchoTimeout
	}
	if o.Spawner == nil {
		o.Spawner = StartProcess
	}
	if o.Sink == nil {
		o.Sink = DiscardSink{}
	}
	if o.Logger == nil {
		o.Logger = logging.L()
	}
}

// Supervisor owns the child process and coordinates every caller that
// reads its state, writes to its stdin, or stops it.
type Supervisor struct {
	opts     Options
	input    *InputMux
	notifier *notifier
	logger   *slog.Logger
	cancel   context.CancelFunc

	mu         sync.Mutex
	state      State
	pending    PendingOp
	players    *PlayerSet
	proc       Process
	generation uint64
	ready      *Latch
	exited     *Latch
	waiters    waiterSet
	startedAt  time.Time
	lastExit   *ExitStatus

	terminated *Latch
	termErr    error
}

// New builds a supervisor. Nothing is spawned until Start.
func New(opts Options) *Supervisor {
	opts.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		opts:       opts,
		input:      NewInputMux(opts.InputQueue),
		notifier:   newNotifier(opts.NotifyQueue, opts.Observers),
		logger:     opts.Logger.With("component", "supervisor"),
		cancel:     cancel,
		state:      StateNotStarted,
		players:    NewPlayerSet(),
		terminated: NewLatch(),
	}
	s.input.OnWriteError(s.handleWriteError)

	go s.input.Run(ctx)
	go s.notifier.run()
	return s
}

// Start spawns the server. It returns once the process exists; use
// WaitReady to wait for the ready line.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return fmt.Errorf("server is already %s", s.state)
	}
	if err := s.spawnLocked("started"); err != nil {
		s.setStateLocked(StateCrashed, err.Error())
		s.termErr = err
		s.terminated.Fire()
		return err
	}
	return nil
}

func (s *Supervisor) spawnLocked(reason string) error {
	s.logger.Info("spawning server", "command", s.opts.Params.String(), "dir", s.opts.Params.Dir)
	proc, err := s.opts.Spawner(s.opts.Params)
	if err != nil {
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %v", ErrSpawn, err)
		}
		s.logger.Error("failed to spawn server", "error", err)
		return err
	}

	s.generation++
	s.proc = proc
	s.ready = NewLatch()
	s.exited = NewLatch()
	s.players.Clear()
	s.startedAt = time.Now()
	s.input.Attach(proc)
	s.setStateLocked(StateRunning, reason)

	go newBroadcaster(proc, s.opts.Sink, s, s.generation).Run()
	s.logger.Info("server process started", "pid", proc.PID(), "generation", s.generation)
	return nil
}

func (s *Supervisor) setStateLocked(to State, reason string) {
	from := s.state
	s.state = to
	if from == to {
		return
	}
	t := Transition{From: from, To: to, Pending: s.pending, Reason: reason, At: time.Now()}
	s.logger.Info("state changed", "from", from.String(), "to", to.String(), "reason", reason)
	s.notifier.publish(Notification{Kind: NotifyState, Generation: s.generation, Transition: t})
}

func (s *Supervisor) handleEvent(gen uint64, line OutputLine, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return
	}

	if s.players.Apply(ev, line.Time) {
		s.logger.Info(ev.Kind.String(), "player", ev.Player, "online", s.players.Len())
	}
	if ev.Kind == KindServerReady && s.ready.Fire() {
		s.logger.Info("server ready", "generation", gen, "startup", time.Since(s.startedAt).Round(time.Millisecond).String())
	}
	s.waiters.dispatch(ev)
	s.notifier.publish(Notification{Kind: NotifyEvent, Generation: gen, Line: line, Event: ev})
}

func (s *Supervisor) handleEndOfStream(gen uint64, err error) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.exited.Fire()

	if s.state != StateRunning {
		// A stop or backup owns this exit.
		s.mu.Unlock()
		return
	}

	proc := s.proc
	reason := "server output closed unexpectedly"
	if err != nil {
		reason = err.Error()
	}
	s.players.Clear()
	s.proc = nil
	s.input.Detach(proc)
	s.setStateLocked(StateCrashed, reason)
	s.mu.Unlock()

	go func() {
		status := s.reap(proc)
		s.mu.Lock()
		s.lastExit = &status
		s.mu.Unlock()
		s.logger.Error("server crashed", "exit_code", status.Code, "reason", reason)
		s.terminate(fmt.Errorf("server crashed (exit code %d): %s", status.Code, reason))
	}()
}

// handleWriteError treats a broken stdin as process death. Killing the
// child lets the read loop observe EOF and record the crash.
func (s *Supervisor) handleWriteError(err error) {
	s.mu.Lock()
	if s.state != StateRunning || s.pending != PendingNone || s.proc == nil {
		s.mu.Unlock()
		return
	}
	proc := s.proc
	s.mu.Unlock()

	s.logger.Error("write to server stdin failed, terminating", "error", err)
	go func() { _ = proc.Terminate(s.opts.KillGrace) }()
}

func (s *Supervisor) terminate(err error) {
	s.mu.Lock()
	if !s.terminated.Fired() {
		s.termErr = err
	}
	s.mu.Unlock()
	s.terminated.Fire()
}

// Terminated is closed once the supervisor reaches a terminal state: the
// server was stopped, crashed, or could not be respawned.
func (s *Supervisor) Terminated() <-chan struct{} {
	return s.terminated.Done()
}

// Err returns the cause of termination, nil after a requested stop.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// ListPlayers returns the online players.
func (s *Supervisor) ListPlayers() ([]Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil, ErrNotRunning
	}
	return s.players.Snapshot(), nil
}

// Submit writes one line from producer to the server console.
func (s *Supervisor) Submit(ctx context.Context, producer, line string) error {
	err := s.input.Submit(ctx, producer, line)
	s.notifier.publish(Notification{Kind: NotifyInput, Producer: producer, Text: line, Err: err})
	return err
}

// SendAndAwaitEcho submits line and waits for the server's acknowledgement.
func (s *Supervisor) SendAndAwaitEcho(ctx context.Context, producer, line string) (Event, error) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return Event{}, ErrNotRunning
	}
	w := s.waiters.add(func(ev Event) bool { return ev.Kind == KindCommandEcho })
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.waiters.remove(w)
		s.mu.Unlock()
	}()

	if err := s.Submit(ctx, producer, line); err != nil {
		return Event{}, err
	}
	if !w.latch.Wait(ctx, s.opts.EchoTimeout) {
		if ctx.Err() != nil {
			return Event{}, ctx.Err()
		}
		return Event{}, fmt.Errorf("no acknowledgement within %s: %w", s.opts.EchoTimeout, context.DeadlineExceeded)
	}
	return w.event, nil
}

// WaitReady blocks until the current process reports ready.
func (s *Supervisor) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	ready, exited := s.ready, s.exited
	s.mu.Unlock()

	if ready == nil {
		return ErrNotRunning
	}
	select {
	case <-ready.Done():
		return nil
	case <-exited.Done():
		if ready.Fired() {
			return nil
		}
		return fmt.Errorf("%w: server exited before becoming ready", ErrNotRunning)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current process state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Pending returns the orchestration in flight, if any.
func (s *Supervisor) Pending() PendingOp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Status returns a snapshot for API consumers.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:       s.state.String(),
		Pending:     s.pending.String(),
		Generation:  s.generation,
		PlayerCount: s.players.Len(),
	}
	if s.proc != nil {
		st.PID = s.proc.PID()
	}
	if s.ready != nil && s.state == StateRunning {
		st.Ready = s.ready.Fired()
	}
	if !s.startedAt.IsZero() && s.state == StateRunning {
		started := s.startedAt
		st.StartedAt = &started
		st.Uptime = time.Since(started).Round(time.Second).String()
	}
	if s.lastExit != nil {
		if s.lastExit.Err != nil {
			st.LastExit = s.lastExit.Err.Error()
		} else {
			st.LastExit = fmt.Sprintf("exit status %d", s.lastExit.Code)
		}
	}
	return st
}

// Close stops the input and notification loops. The child is not touched;
// call Stop first.
func (s *Supervisor) Close() {
	s.cancel()
	s.notifier.close()
}
