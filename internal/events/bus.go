package events

import (
	"log/slog"
	"sync"
)

// Bus fans events out to subscribers. Each subscription owns a bounded
// queue drained by its own pump goroutine, so publishing never blocks
// on a slow consumer. Delivery is at-least-once while the queue stays
// within its bound; under sustained overload the oldest events are
// dropped and counted, and consumers dedup by event identity.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Subscription is one consumer's view of the bus.
type Subscription struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	max     int
	dropped int64
	closed  bool
	out     chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a consumer with the given queue bound. Events
// arriving while the queue is full evict the oldest entry.
func (b *Bus) Subscribe(bound int) *Subscription {
	if bound < 1 {
		bound = 1
	}
	s := &Subscription{
		max: bound,
		out: make(chan Event),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		s.close()
		return s
	}
	b.subs = append(b.subs, s)
	return s
}

// Publish delivers the event to every live subscription.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := make([]*Subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.push(e)
	}
}

// Close shuts down all subscriptions. Queued events are still drained
// before each subscription's channel closes.
func (b *Bus) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// Events returns the channel the subscription delivers on. The channel
// closes after the bus shuts down and the queue drains.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Dropped returns how many events were evicted under overload.
func (s *Subscription) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) push(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= s.max {
		s.queue = s.queue[1:]
		s.dropped++
		slog.Warn("event bus queue full, dropping oldest event",
			"bound", s.max, "dropped_total", s.dropped)
	}
	s.queue = append(s.queue, e)
	s.cond.Signal()
}

func (s *Subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			close(s.out)
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.out <- e
	}
}
