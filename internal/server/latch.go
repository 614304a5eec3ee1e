package server

import (
	"context"
	"sync"
	"time"
)

// Latch is a one-shot signal. Once fired it stays fired, so a waiter that
// arrives late still observes it.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Fire releases all current and future waiters. Only the first call has an effect.
func (l *Latch) Fire() bool {
	fired := false
	l.once.Do(func() {
		close(l.ch)
		fired = true
	})
	return fired
}

func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

func (l *Latch) Fired() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the latch fires, the timeout elapses, or ctx is done.
// A zero timeout waits without a deadline.
func (l *Latch) Wait(ctx context.Context, timeout time.Duration) bool {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	select {
	case <-l.ch:
		return true
	case <-expired:
		return l.Fired()
	case <-ctx.Done():
		return l.Fired()
	}
}

// eventWaiter fires its latch on the first event accepted by match.
type eventWaiter struct {
	match func(Event) bool
	latch *Latch
	event Event
}

// waiterSet holds pending event waiters. Callers synchronize access.
type waiterSet struct {
	waiters []*eventWaiter
}

func (s *waiterSet) add(match func(Event) bool) *eventWaiter {
	w := &eventWaiter{match: match, latch: NewLatch()}
	s.waiters = append(s.waiters, w)
	return w
}

func (s *waiterSet) remove(w *eventWaiter) {
	for i, cur := range s.waiters {
		if cur == w {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// dispatch fires and drops every waiter that matches ev.
func (s *waiterSet) dispatch(ev Event) int {
	kept := s.waiters[:0]
	fired := 0
	for _, w := range s.waiters {
		if w.match(ev) {
			w.event = ev
			w.latch.Fire()
			fired++
			continue
		}
		kept = append(kept, w)
	}
	for i := len(kept); i < len(s.waiters); i++ {
		s.waiters[i] = nil
	}
	s.waiters = kept
	return fired
}
