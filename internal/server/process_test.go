package server

import (
	"errors"
	"io"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func shell(t *testing.T, script string) Process {
	t.Helper()
	p, err := StartProcess(StartParams{Executable: "sh", Args: []string{"-c", script}})
	require.NoError(t, err)
	return p
}

func readAll(t *testing.T, p Process) []OutputLine {
	t.Helper()
	var lines []OutputLine
	for {
		line, err := p.ReadLine()
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

func TestExecProcessEcho(t *testing.T) {
	requireShell(t)
	p := shell(t, `while read l; do echo "got $l"; if [ "$l" = stop ]; then exit 0; fi; done`)

	require.NoError(t, p.SendLine("hello"))
	require.NoError(t, p.SendLine("stop"))

	lines := readAll(t, p)
	require.Len(t, lines, 2)
	assert.Equal(t, "got hello", lines[0].Text)
	assert.Equal(t, "got stop", lines[1].Text)
	assert.Less(t, lines[0].Seq, lines[1].Seq)

	status := p.Wait()
	assert.True(t, status.Success())
	assert.Error(t, p.SendLine("late"))
}

func TestExecProcessMergesStderr(t *testing.T) {
	requireShell(t)
	p := shell(t, `echo out; echo err 1>&2; printf 'tail'`)

	var texts []string
	for _, l := range readAll(t, p) {
		texts = append(texts, l.Text)
	}
	assert.Equal(t, []string{"out", "err", "tail"}, texts)
	p.Wait()
}

func TestExecProcessExitCode(t *testing.T) {
	requireShell(t)
	p := shell(t, `exit 3`)
	readAll(t, p)
	status := p.Wait()
	assert.Equal(t, 3, status.Code)
	assert.False(t, status.Success())
}

func TestExecProcessTerminateInterrupts(t *testing.T) {
	requireShell(t)
	p := shell(t, `exec sleep 30`)

	start := time.Now()
	require.NoError(t, p.Terminate(5*time.Second))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.False(t, p.Wait().Success())
}

func TestExecProcessTerminateKillsAfterGrace(t *testing.T) {
	requireShell(t)
	p := shell(t, `trap "" INT; exec sleep 30`)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Terminate(200*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	assert.Equal(t, -1, p.Wait().Code)
}

func TestStartProcessSpawnError(t *testing.T) {
	_, err := StartProcess(StartParams{Executable: "/nonexistent/server-binary"})
	assert.ErrorIs(t, err, ErrSpawn)

	_, err = StartProcess(StartParams{})
	assert.ErrorIs(t, err, ErrSpawn)
}
