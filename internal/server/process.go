package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// OutputLine is one line read from the child, without its terminator.
type OutputLine struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	Time time.Time `json:"time"`
}

// ExitStatus describes how the child terminated.
type ExitStatus struct {
	Code     int
	Err      error
	ExitedAt time.Time
}

// Success reports whether the child exited cleanly.
func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Code == 0
}

// StartParams describes the child to launch.
type StartParams struct {
	Executable string
	Args       []string
	Dir        string
	Env        []string
}

func (p StartParams) String() string {
	return strings.TrimSpace(p.Executable + " " + strings.Join(p.Args, " "))
}

// Process is a running child with line-oriented stdin and stdout.
type Process interface {
	// SendLine writes text plus a newline as one unit. Concurrent callers
	// never interleave within a line.
	SendLine(text string) error

	// ReadLine returns the next output line, io.EOF once the stream is
	// closed, or an error wrapping ErrRead. Only one goroutine may read.
	ReadLine() (OutputLine, error)

	// Terminate interrupts the child, waits up to grace, then kills it.
	Terminate(grace time.Duration) error

	// Wait blocks until the child has exited.
	Wait() ExitStatus

	PID() int
}

// Spawner launches processes. StartProcess is the production implementation.
type Spawner func(params StartParams) (Process, error)

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	output *os.File

	writeMu sync.Mutex
	seq     atomic.Uint64

	done   chan struct{}
	status ExitStatus
}

// StartProcess launches params.Executable with stdout and stderr merged into
// a single line stream.
func StartProcess(params StartParams) (Process, error) {
	if strings.TrimSpace(params.Executable) == "" {
		return nil, fmt.Errorf("%w: executable is required", ErrSpawn)
	}

	cmd := exec.Command(params.Executable, params.Args...)
	cmd.Dir = params.Dir
	if len(params.Env) > 0 {
		cmd.Env = append(os.Environ(), params.Env...)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawn, err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		outR.Close()
		outW.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSpawn, params, err)
	}
	// The child holds its own copy of the write end; EOF arrives when it exits.
	outW.Close()

	p := &execProcess{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReaderSize(outR, 64*1024),
		output: outR,
		done:   make(chan struct{}),
	}
	go p.wait()
	return p, nil
}

func (p *execProcess) wait() {
	err := p.cmd.Wait()
	status := ExitStatus{ExitedAt: time.Now()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status.Code = exitErr.ExitCode()
		} else {
			status.Code = -1
		}
		status.Err = err
	}
	p.status = status
	close(p.done)
}

func (p *execProcess) SendLine(text string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	select {
	case <-p.done:
		return fmt.Errorf("%w: process has exited", ErrWrite)
	default:
	}

	if _, err := io.WriteString(p.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func (p *execProcess) ReadLine() (OutputLine, error) {
	text, err := p.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			if text != "" {
				// Final unterminated line; EOF is reported on the next call.
				return p.line(text), nil
			}
			p.output.Close()
			return OutputLine{}, io.EOF
		}
		return OutputLine{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return p.line(text), nil
}

func (p *execProcess) line(text string) OutputLine {
	return OutputLine{
		Seq:  p.seq.Add(1),
		Text: strings.TrimRight(text, "\r\n"),
		Time: time.Now(),
	}
}

func (p *execProcess) Terminate(grace time.Duration) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return p.kill()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
		return p.kill()
	}
}

func (p *execProcess) kill() error {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

func (p *execProcess) Wait() ExitStatus {
	<-p.done
	return p.status
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}
