package comms

import (
	"context"
	"iter"
	"sync"
)

// Bus is a thread-safe in-process publish point for one task's events.
// Publish never waits on subscribers: every subscriber owns an unbounded
// FIFO that Publish appends to. Until the terminal event the bus keeps its
// history so late subscribers still see the full sequence.
type Bus[E Event] struct {
	mu      sync.Mutex
	subs    map[int]*Subscription[E]
	history []E
	nextID  int
	closed  bool
}

// NewBus creates an open Bus with no subscribers.
func NewBus[E Event]() *Bus[E] {
	return &Bus[E]{subs: make(map[int]*Subscription[E])}
}

// Publish delivers ev to every current subscriber in publish order.
// A terminal event closes the bus; publishing afterwards returns ErrClosed.
func (b *Bus[E]) Publish(ev E) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	for _, s := range b.subs {
		s.push(ev)
	}
	if ev.IsTerminal() {
		b.closed = true
		b.subs = make(map[int]*Subscription[E])
		b.history = nil
		return nil
	}
	b.history = append(b.history, ev)
	return nil
}

// Subscribe registers a subscriber that sees every event the bus has
// carried so far followed by everything published later. Subscribing to a
// closed bus yields a finished subscription whose Next reports false
// immediately; history is not retained past the terminal event.
func (b *Bus[E]) Subscribe() *Subscription[E] {
	s := &Subscription[E]{wake: make(chan struct{}, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.done = true
		return s
	}
	s.queue = append(s.queue, b.history...)
	b.nextID++
	id := b.nextID
	s.unsubscribe = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
	b.subs[id] = s
	return s
}

// Closed reports whether the terminal event has been published.
func (b *Bus[E]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Subscribers returns the number of registered subscribers.
func (b *Bus[E]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Subscription is one consumer's view of a Bus.
type Subscription[E Event] struct {
	mu          sync.Mutex
	queue       []E
	wake        chan struct{}
	done        bool // terminal event drained or subscription closed
	terminated  bool // terminal event queued
	unsubscribe func()
	closeOnce   sync.Once
}

func (s *Subscription[E]) push(ev E) {
	s.mu.Lock()
	if !s.done && !s.terminated {
		s.queue = append(s.queue, ev)
		if ev.IsTerminal() {
			s.terminated = true
		}
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Next returns the next event in publish order. It blocks while the buffer
// is empty. It returns false after the terminal event has been returned,
// after Close, or when ctx ends.
func (s *Subscription[E]) Next(ctx context.Context) (E, bool) {
	var zero E
	for {
		s.mu.Lock()
		if s.done {
			s.mu.Unlock()
			return zero, false
		}
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			if ev.IsTerminal() {
				s.done = true
			}
			s.mu.Unlock()
			return ev, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, false
		case <-s.wake:
		}
	}
}

// All returns a sequence over the remaining events, ending with the terminal
// event or when ctx ends.
func (s *Subscription[E]) All(ctx context.Context) iter.Seq[E] {
	return func(yield func(E) bool) {
		for {
			ev, ok := s.Next(ctx)
			if !ok || !yield(ev) {
				return
			}
		}
	}
}

// Close unregisters the subscription and discards buffered events.
// It is safe to call more than once.
func (s *Subscription[E]) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.mu.Lock()
		s.done = true
		s.queue = nil
		s.mu.Unlock()

		select {
		case s.wake <- struct{}{}:
		default:
		}
	})
}
