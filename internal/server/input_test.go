package server

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// byteWriter writes a line in two halves with a pause in between, so any
// interleaving across lines would be visible in buf.
type byteWriter struct {
	mu  sync.Mutex
	buf strings.Builder
	err error
}

func (w *byteWriter) SendLine(text string) error {
	if w.err != nil {
		return w.err
	}
	half := len(text) / 2
	w.mu.Lock()
	w.buf.WriteString(text[:half])
	w.mu.Unlock()
	time.Sleep(50 * time.Microsecond)
	w.mu.Lock()
	w.buf.WriteString(text[half:] + "\n")
	w.mu.Unlock()
	return nil
}

func (w *byteWriter) lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Split(strings.TrimSuffix(w.buf.String(), "\n"), "\n")
}

func runMux(t *testing.T) *InputMux {
	t.Helper()
	m := NewInputMux(16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go m.Run(ctx)
	return m
}

func TestInputMuxNoInterleavingAndPerProducerOrder(t *testing.T) {
	m := runMux(t)
	w := &byteWriter{}
	m.Attach(w)

	const producers, perProducer = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, m.Submit(context.Background(), fmt.Sprintf("p%d", p), fmt.Sprintf("say producer-%d line-%03d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	lines := w.lines()
	require.Len(t, lines, producers*perProducer)

	next := make([]int, producers)
	for _, l := range lines {
		var p, i int
		_, err := fmt.Sscanf(l, "say producer-%d line-%03d", &p, &i)
		require.NoError(t, err, "line %q was corrupted", l)
		assert.Equal(t, next[p], i, "producer %d out of order", p)
		next[p] = i + 1
	}
}

func TestInputMuxFrozenRejects(t *testing.T) {
	m := runMux(t)
	w := &byteWriter{}
	m.Attach(w)

	m.Freeze()
	err := m.Submit(context.Background(), "console", "say hi")
	assert.ErrorIs(t, err, ErrRejectedBusy)

	require.NoError(t, m.sendControl(context.Background(), "stop"))
	assert.Equal(t, []string{"stop"}, w.lines())

	m.Unfreeze()
	require.NoError(t, m.Submit(context.Background(), "console", "say hi"))
	assert.Equal(t, []string{"stop", "say hi"}, w.lines())
}

func TestInputMuxSkipsAbandonedRequests(t *testing.T) {
	m := NewInputMux(16)
	w := &byteWriter{}
	m.Attach(w)

	// Nothing drains the queue yet, so the caller times out while queued.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, m.Submit(ctx, "http", "op Alice"), context.DeadlineExceeded)

	runCtx, stop := context.WithCancel(context.Background())
	t.Cleanup(stop)
	go m.Run(runCtx)

	require.NoError(t, m.Submit(context.Background(), "console", "say later"))
	assert.Equal(t, []string{"say later"}, w.lines())
}

func TestInputMuxDetached(t *testing.T) {
	m := runMux(t)
	assert.ErrorIs(t, m.Submit(context.Background(), "console", "list"), ErrNotRunning)

	w := &byteWriter{}
	m.Attach(w)
	m.Detach(&byteWriter{})
	require.NoError(t, m.Submit(context.Background(), "console", "list"))

	m.Detach(w)
	assert.ErrorIs(t, m.Submit(context.Background(), "console", "list"), ErrNotRunning)
}

func TestInputMuxRejectsMultiLine(t *testing.T) {
	m := runMux(t)
	m.Attach(&byteWriter{})
	assert.ErrorIs(t, m.Submit(context.Background(), "http", "say a\nstop"), ErrInvalidLine)
	assert.ErrorIs(t, m.Submit(context.Background(), "http", "say a\r"), ErrInvalidLine)
}

func TestInputMuxWriteErrorCallback(t *testing.T) {
	m := runMux(t)
	m.Attach(&byteWriter{err: fmt.Errorf("%w: pipe closed", ErrWrite)})

	called := make(chan error, 1)
	m.OnWriteError(func(err error) { called <- err })

	err := m.Submit(context.Background(), "console", "list")
	assert.ErrorIs(t, err, ErrWrite)
	select {
	case got := <-called:
		assert.ErrorIs(t, got, ErrWrite)
	case <-time.After(time.Second):
		t.Fatal("write error callback not invoked")
	}
}

func TestInputMuxStopped(t *testing.T) {
	m := NewInputMux(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.ErrorIs(t, m.Submit(context.Background(), "console", "list"), ErrNotRunning)
}
