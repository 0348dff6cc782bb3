package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Handler receives events. It runs on the emitting goroutine and should
// return promptly.
type Handler func(Event)

// Broadcaster fans events out to every current subscriber.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers []*Subscription
	nextID      uint64
	logger      zerolog.Logger
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id          uint64
	handler     Handler
	broadcaster *Broadcaster
	once        sync.Once
}

// BroadcasterOption configures a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithLogger sets the logger used to report panicking handlers.
func WithLogger(logger zerolog.Logger) BroadcasterOption {
	return func(b *Broadcaster) {
		b.logger = logger
	}
}

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster(opts ...BroadcasterOption) *Broadcaster {
	b := &Broadcaster{logger: log.Logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for every event emitted from now on.
func (b *Broadcaster) Subscribe(handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:          b.nextID,
		handler:     handler,
		broadcaster: b,
	}
	b.subscribers = append(b.subscribers, sub)
	return sub
}

// Unsubscribe stops delivery to this subscription. It is safe to call more
// than once and from inside a handler.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broadcaster.remove(s.id)
	})
}

func (b *Broadcaster) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subscribers {
		if sub.id == id {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Emit delivers event to the subscribers registered at the time of the call,
// in subscription order. A panicking handler is logged and skipped so the
// remaining subscribers still see the event.
func (b *Broadcaster) Emit(event Event) {
	b.mu.RLock()
	subscribers := make([]*Subscription, len(b.subscribers))
	copy(subscribers, b.subscribers)
	b.mu.RUnlock()

	for _, sub := range subscribers {
		b.deliver(sub, event)
	}
}

func (b *Broadcaster) deliver(sub *Subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Err(fmt.Errorf("%v", r)).
				Str("event", string(event.Kind)).
				Uint64("subscription", sub.id).
				Msg("event handler panicked")
		}
	}()
	sub.handler(event)
}

// Len returns the number of current subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
