package server

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// BackupResult describes a completed backup cycle.
type BackupResult struct {
	Initiator   string        `json:"initiator,omitempty"`
	ArchivePath string        `json:"archive_path,omitempty"`
	ArchiveErr  error         `json:"-"`
	Restarted   bool          `json:"restarted"`
	Forced      bool          `json:"forced"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Stop asks the server to shut down, escalating to termination when it
// does not exit in time. It runs to completion once accepted.
func (s *Supervisor) Stop() error {
	proc, exited, err := s.beginStop(PendingShutdown)
	if err != nil {
		return err
	}

	status, forced := s.shutdownProcess(proc, exited)

	s.mu.Lock()
	s.players.Clear()
	s.proc = nil
	s.lastExit = &status
	s.input.Detach(proc)
	s.input.Unfreeze()
	s.pending = PendingNone
	reason := "stopped"
	if forced {
		reason = "terminated after stop timeout"
	}
	s.setStateLocked(StateStopped, reason)
	s.mu.Unlock()

	s.terminate(nil)
	return nil
}

// Backup stops the server, archives the world, restarts the server and
// waits for it to report ready. An archive failure does not prevent the
// restart; it is returned wrapped in ErrArchive alongside the result.
func (s *Supervisor) Backup() (*BackupResult, error) {
	return s.BackupFor("")
}

// BackupFor runs Backup and hands initiator to the Archiver for this cycle
// only.
func (s *Supervisor) BackupFor(initiator string) (*BackupResult, error) {
	result := &BackupResult{Initiator: initiator, StartedAt: time.Now()}

	proc, exited, err := s.beginStop(PendingBackup)
	if err != nil {
		return nil, err
	}

	status, forced := s.shutdownProcess(proc, exited)
	result.Forced = forced

	s.mu.Lock()
	s.players.Clear()
	s.proc = nil
	s.lastExit = &status
	s.setStateLocked(StateStopped, "stopped for backup")
	s.mu.Unlock()
	s.input.Detach(proc)

	result.ArchivePath, result.ArchiveErr = s.archive(initiator)

	s.mu.Lock()
	if err := s.spawnLocked("restarted after backup"); err != nil {
		s.input.Unfreeze()
		s.pending = PendingNone
		s.setStateLocked(StateCrashed, err.Error())
		s.mu.Unlock()
		s.terminate(err)
		result.Duration = time.Since(result.StartedAt)
		return result, errors.Join(result.ArchiveErr, err)
	}
	ready, restartExited := s.ready, s.exited
	s.mu.Unlock()

	restartErr := s.awaitRestart(ready, restartExited)
	result.Restarted = restartErr == nil

	s.mu.Lock()
	s.input.Unfreeze()
	s.pending = PendingNone
	s.mu.Unlock()

	result.Duration = time.Since(result.StartedAt)
	s.logger.Info("backup cycle finished",
		"archive", result.ArchivePath,
		"archive_error", errString(result.ArchiveErr),
		"restarted", result.Restarted,
		"duration", result.Duration.Round(time.Millisecond).String())
	return result, errors.Join(result.ArchiveErr, restartErr)
}

// beginStop claims the pending slot and freezes freeform input. The freeze
// flag only changes under s.mu together with pending, so it is set exactly
// while an operation is pending.
func (s *Supervisor) beginStop(op PendingOp) (Process, *Latch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != PendingNone {
		return nil, nil, ErrAlreadyStopping
	}
	if s.state != StateRunning || s.proc == nil {
		return nil, nil, ErrNotRunning
	}
	s.pending = op
	s.input.Freeze()
	s.setStateLocked(StateStopping, op.String())
	return s.proc, s.exited, nil
}

// shutdownProcess sends the stop command and waits for the output stream to
// close, terminating the child when it does not. StopTimeout is one deadline
// covering both the send and the wait. It reports whether termination was
// needed.
func (s *Supervisor) shutdownProcess(proc Process, exited *Latch) (ExitStatus, bool) {
	s.logger.Info("sending stop command", "command", s.opts.StopCommand, "timeout", s.opts.StopTimeout.String())

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
	defer cancel()

	forced := false
	if err := s.input.sendControl(ctx, s.opts.StopCommand); err != nil {
		s.logger.Warn("failed to send stop command, terminating", "error", err)
		forced = true
	} else if !exited.Wait(ctx, 0) {
		s.logger.Warn("server did not stop in time, terminating", "timeout", s.opts.StopTimeout.String())
		forced = true
	}
	if forced {
		if err := proc.Terminate(s.opts.KillGrace); err != nil {
			s.logger.Error("failed to terminate server", "error", err)
		}
	}

	return s.reap(proc), forced
}

// reap waits for the child to exit after its output closed.
func (s *Supervisor) reap(proc Process) ExitStatus {
	done := make(chan ExitStatus, 1)
	go func() { done <- proc.Wait() }()

	timer := time.NewTimer(s.opts.KillGrace)
	defer timer.Stop()
	select {
	case status := <-done:
		return status
	case <-timer.C:
		s.logger.Warn("server closed its output but did not exit, terminating", "pid", proc.PID())
		_ = proc.Terminate(s.opts.KillGrace)
		return <-done
	}
}

func (s *Supervisor) archive(initiator string) (string, error) {
	if s.opts.Archiver == nil {
		return "", fmt.Errorf("%w: no archiver configured", ErrArchive)
	}
	s.logger.Info("archiving world", "dir", s.opts.WorldDir, "initiator", initiator)
	path, err := s.opts.Archiver.Archive(s.opts.WorldDir, initiator)
	if err != nil {
		s.logger.Error("archive failed", "dir", s.opts.WorldDir, "error", err)
		return path, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	s.logger.Info("world archived", "path", path)
	return path, nil
}

func (s *Supervisor) awaitRestart(ready, exited *Latch) error {
	timer := time.NewTimer(s.opts.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-ready.Done():
		return nil
	case <-exited.Done():
		if ready.Fired() {
			return nil
		}
		return fmt.Errorf("%w: server exited during startup", ErrRestartFailed)
	case <-timer.C:
		s.logger.Error("server not ready after restart", "timeout", s.opts.ReadyTimeout.String())
		return fmt.Errorf("%w within %s", ErrRestartFailed, s.opts.ReadyTimeout)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
