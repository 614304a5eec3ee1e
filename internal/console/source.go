package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
	"github.com/TheGojiOG/mc-server-wrapper/internal/server"
)

// ProducerConsole identifies lines typed on the wrapper's own stdin.
const ProducerConsole = "console"

// MaxLineBytes bounds one console line. Longer lines are skipped.
const MaxLineBytes = 64 * 1024

var errLineTooLong = errors.New("console line too long")

// Submitter accepts input lines for the server.
type Submitter interface {
	Submit(ctx context.Context, producer, line string) error
}

// Source forwards lines read from an operator terminal to the server.
type Source struct {
	in     io.Reader
	errOut io.Writer
	target Submitter
}

// NewSource reads from in and reports rejected lines on errOut.
func NewSource(in io.Reader, errOut io.Writer, target Submitter) *Source {
	return &Source{in: in, errOut: errOut, target: target}
}

// Run submits every non-blank line until the reader is exhausted or ctx is
// cancelled. Reaching the end of input is not an error.
func (s *Source) Run(ctx context.Context) error {
	lines := make(chan inputLine)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReader(s.in)
		for {
			text, err := readLine(reader)
			var line inputLine
			switch {
			case errors.Is(err, errLineTooLong):
				line.tooLong = true
			case errors.Is(err, io.EOF):
				return
			case err != nil:
				readErr <- err
				return
			default:
				line.text = text
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("console input: %w", err)
					}
				default:
				}
				return nil
			}
			if line.tooLong {
				logging.L().Warn("console input line too long, skipped", "limit", MaxLineBytes)
				fmt.Fprintf(s.errOut, "input longer than %d bytes ignored\n", MaxLineBytes)
				continue
			}
			s.submit(ctx, line.text)
		}
	}
}

type inputLine struct {
	text    string
	tooLong bool
}

// readLine returns the next line without its newline. A line over
// MaxLineBytes is consumed and reported as errLineTooLong without being
// buffered whole.
func readLine(r *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(bytes.TrimSuffix(chunk, []byte("\n"))) > MaxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			return "", errLineTooLong
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return string(buf), nil
			}
			return "", err
		}
		return string(bytes.TrimSuffix(buf, []byte("\n"))), nil
	}
}

func (s *Source) submit(ctx context.Context, line string) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return
	}

	err := s.target.Submit(ctx, ProducerConsole, line)
	switch {
	case err == nil:
	case errors.Is(err, server.ErrRejectedBusy):
		fmt.Fprintln(s.errOut, "server is stopping, input ignored:", line)
	case errors.Is(err, server.ErrNotRunning):
		fmt.Fprintln(s.errOut, "server is not running, input ignored:", line)
	default:
		fmt.Fprintln(s.errOut, "input failed:", err)
	}
}
