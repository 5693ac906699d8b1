// Package event provides a typed publish/subscribe bus used to surface
// log, progress and frame notifications of a conversion.
package event

import "sync"

// Handler receives the published values.
type Handler[T any] func(T)

// Bus fans out published values to the registered handlers.
// Handlers are invoked synchronously, in subscription order, on the
// publisher's goroutine. The zero value is ready to use and keeps no history.
type Bus[T any] struct {
	mu       sync.RWMutex
	next     uint64
	handlers map[uint64]Handler[T]
	order    []uint64
	history  []T
	keep     int
}

// Option configures a Bus.
type Option func(*config)

type config struct {
	history int
}

// WithHistory makes the bus remember the last n published values and replay
// them to every new subscriber before it receives live values.
func WithHistory(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.history = n
		}
	}
}

// NewBus creates a new bus.
func NewBus[T any](opts ...Option) *Bus[T] {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return &Bus[T]{keep: c.history}
}

// Subscribe registers fn and returns the function removing it again.
// Calling the returned function more than once is safe.
func (b *Bus[T]) Subscribe(fn Handler[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	if b.handlers == nil {
		b.handlers = make(map[uint64]Handler[T])
	}
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.order = append(b.order, id)
	replay := append([]T(nil), b.history...)
	b.mu.Unlock()

	for _, v := range replay {
		fn(v)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			delete(b.handlers, id)
			for i, oid := range b.order {
				if oid == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish delivers v to every current subscriber.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	if b.keep > 0 {
		b.history = append(b.history, v)
		if len(b.history) > b.keep {
			b.history = b.history[len(b.history)-b.keep:]
		}
	}
	handlers := make([]Handler[T], 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(v)
	}
}

// Len returns the number of active subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
