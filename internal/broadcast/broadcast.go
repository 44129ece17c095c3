// Package broadcast fans out short text events to live subscribers.
//
// One goroutine owns the subscriber registry. Producers and subscribers talk to
// it over channels, so no subscriber can stall a producer and the registry is
// never mutated concurrently.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// BufferSize is the number of undelivered events a subscriber may hold.
	BufferSize = 100

	// DefaultHeartbeat is the interval between liveness probes.
	DefaultHeartbeat = 500 * time.Millisecond

	EventConnected = "connected"
	EventPing      = "ping"

	inboxSize = 1024
)

// ErrStopped is returned by Subscribe once the broadcaster has shut down.
var ErrStopped = errors.New("broadcaster stopped")

// Subscription is one subscriber's view of the stream.
// C is closed when the subscriber is reaped or the broadcaster stops.
type Subscription struct {
	C <-chan string

	c    chan string
	done chan struct{}
	once sync.Once
}

// Close marks the subscription as gone. The next heartbeat reaps it.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer is a non-blocking enqueue. It reports false when the subscriber is gone or full.
func (s *Subscription) offer(msg string) bool {
	if s.closed() {
		return false
	}
	select {
	case s.c <- msg:
		return true
	default:
		return false
	}
}

// Broadcaster distributes events to every registered Subscription.
type Broadcaster struct {
	heartbeat time.Duration
	logger    *slog.Logger

	inbox    chan string
	register chan *Subscription
	count    chan chan int
	stopped  chan struct{}
}

// New creates a broadcaster. Run must be started for events to flow.
func New(heartbeat time.Duration, logger *slog.Logger) *Broadcaster {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		heartbeat: heartbeat,
		logger:    logger,
		inbox:     make(chan string, inboxSize),
		register:  make(chan *Subscription),
		count:     make(chan chan int),
		stopped:   make(chan struct{}),
	}
}

// Run owns the registry until ctx is cancelled, then closes every subscriber channel.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	var subs []*Subscription
	defer func() {
		close(b.stopped)
		for _, s := range subs {
			close(s.c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case s := <-b.register:
			subs = append(subs, s)

		case msg := <-b.inbox:
			for _, s := range subs {
				s.offer(msg)
			}

		case reply := <-b.count:
			reply <- len(subs)

		case <-ticker.C:
			alive := subs[:0]
			for _, s := range subs {
				if s.offer(EventPing) {
					alive = append(alive, s)
					continue
				}
				close(s.c)
			}
			if removed := len(subs) - len(alive); removed > 0 {
				b.logger.Debug("reaped stale subscribers", "removed", removed, "remaining", len(alive))
			}
			clear(subs[len(alive):])
			subs = alive
		}
	}
}

// Subscribe registers a new subscriber. Its first event is "connected".
func (b *Broadcaster) Subscribe(ctx context.Context) (*Subscription, error) {
	c := make(chan string, BufferSize)
	c <- EventConnected
	s := &Subscription{C: c, c: c, done: make(chan struct{})}

	select {
	case b.register <- s:
		return s, nil
	case <-b.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send queues msg for every subscriber. It never blocks; when the broadcaster
// is saturated or stopped the event is dropped.
func (b *Broadcaster) Send(msg string) {
	select {
	case <-b.stopped:
		return
	default:
	}
	select {
	case b.inbox <- msg:
	default:
	}
}

// Subscribers returns the number of registered subscribers, or 0 once stopped.
func (b *Broadcaster) Subscribers() int {
	reply := make(chan int, 1)
	select {
	case b.count <- reply:
		return <-reply
	case <-b.stopped:
		return 0
	}
}
