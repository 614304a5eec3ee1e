package server

import (
	"sync"
	"sync/atomic"

	"github.com/TheGojiOG/mc-server-wrapper/internal/logging"
)

// NotificationKind tags what a Notification carries.
type NotificationKind string

const (
	NotifyEvent NotificationKind = "event"
	NotifyState NotificationKind = "state"
	NotifyInput NotificationKind = "input"
)

// Notification is delivered to observers for every classified line, state
// change and input submission.
type Notification struct {
	Kind       NotificationKind
	Generation uint64
	Line       OutputLine
	Event      Event
	Transition Transition
	Producer   string
	Text       string
	Err        error
}

// Observer receives supervisor notifications. Notify runs on the
// notifier goroutine and should return quickly.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

// offer pushes v without blocking. When ch is full the oldest value is
// discarded to make room; it reports whether anything was dropped.
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return false
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
		// A concurrent producer refilled the slot; v is the one lost.
	}
	return true
}

// notifier decouples observers from the output read loop.
type notifier struct {
	queue     chan Notification
	observers []Observer
	dropped   atomic.Uint64
	stop      chan struct{}
	stopOnce  sync.Once
	finished  chan struct{}
}

func newNotifier(size int, observers []Observer) *notifier {
	if size <= 0 {
		size = 1024
	}
	return &notifier{
		queue:     make(chan Notification, size),
		observers: observers,
		stop:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
}

func (n *notifier) publish(nt Notification) {
	if len(n.observers) == 0 {
		return
	}
	if offer(n.queue, nt) {
		if dropped := n.dropped.Add(1); dropped == 1 || dropped%1000 == 0 {
			logging.L().Warn("observer queue full, dropping notifications", "dropped_total", dropped)
		}
	}
}

func (n *notifier) run() {
	defer close(n.finished)
	for {
		select {
		case nt := <-n.queue:
			n.deliver(nt)
		case <-n.stop:
			for {
				select {
				case nt := <-n.queue:
					n.deliver(nt)
				default:
					return
				}
			}
		}
	}
}

func (n *notifier) deliver(nt Notification) {
	for _, o := range n.observers {
		o.Notify(nt)
	}
}

func (n *notifier) close() {
	n.stopOnce.Do(func() { close(n.stop) })
	<-n.finished
}

// Feed fans notifications out to dynamic subscribers, each with its own
// bounded buffer that drops its oldest entries when the subscriber lags.
type Feed struct {
	mu          sync.Mutex
	subscribers map[chan Notification]struct{}
	closed      bool
}

func NewFeed() *Feed {
	return &Feed{subscribers: make(map[chan Notification]struct{})}
}

// Subscribe registers a subscriber. The returned cancel func must be called
// when the subscriber is done; the channel is closed by cancel or Close.
func (f *Feed) Subscribe(buffer int) (<-chan Notification, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Notification, buffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.subscribers[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if _, ok := f.subscribers[ch]; ok {
				delete(f.subscribers, ch)
				close(ch)
			}
		})
	}
}

func (f *Feed) Notify(n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subscribers {
		offer(ch, n)
	}
}

func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Close closes every subscriber channel and rejects new subscribers.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, ch)
	}
}
