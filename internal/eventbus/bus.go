// Package eventbus implements a typed, synchronous subscriber registry.
package eventbus

import (
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Subscriber receives events of type E.
// Subscribers are compared by identity, so implementations should be
// pointer types.
type Subscriber[E any] interface {
	HandleEvent(event E) error
}

// FuncSubscriber adapts a plain function to Subscriber.
type FuncSubscriber[E any] struct {
	fn func(E) error
}

// Func wraps fn in a subscriber with its own identity. Keep the returned
// pointer to unsubscribe later.
func Func[E any](fn func(E) error) *FuncSubscriber[E] {
	return &FuncSubscriber[E]{fn: fn}
}

// HandleEvent calls the wrapped function.
func (f *FuncSubscriber[E]) HandleEvent(event E) error {
	return f.fn(event)
}

// Bus dispatches events to its subscribers in subscription order.
// Publish runs on the caller's goroutine; a failing or panicking
// subscriber is logged and skipped.
type Bus[E any] struct {
	name        string
	mu          sync.RWMutex
	subscribers []Subscriber[E]
	logger      *zap.Logger
}

// New creates an empty bus. name is used in log fields.
func New[E any](name string, logger *zap.Logger) *Bus[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus[E]{name: name, logger: logger}
}

// Subscribe adds s unless it is already subscribed. Subscribers whose
// dynamic type is not comparable have no identity and are rejected.
func (b *Bus[E]) Subscribe(s Subscriber[E]) {
	if s == nil {
		return
	}
	if !hasIdentity(s) {
		b.logger.Error("subscriber rejected, type is not comparable",
			zap.String("bus", b.name),
			zap.String("type", fmt.Sprintf("%T", s)))
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.subscribers {
		if existing == s {
			return
		}
	}
	b.subscribers = append(b.subscribers, s)
}

// Unsubscribe removes s. Unknown subscribers are ignored.
func (b *Bus[E]) Unsubscribe(s Subscriber[E]) {
	if s == nil || !hasIdentity(s) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, existing := range b.subscribers {
		if existing == s {
			b.subscribers = append(b.subscribers[:i:i], b.subscribers[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (b *Bus[E]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Publish delivers event to every subscriber.
// The subscriber list is snapshotted first, so subscribers may
// (un)subscribe from inside HandleEvent.
func (b *Bus[E]) Publish(event E) {
	b.mu.RLock()
	subs := make([]Subscriber[E], len(b.subscribers))
	copy(subs, b.subscribers)
	b.mu.RUnlock()

	for i, s := range subs {
		if err := b.deliver(s, event); err != nil {
			b.logger.Error("subscriber failed",
				zap.String("bus", b.name),
				zap.Int("index", i),
				zap.Error(err))
		}
	}
}

func (b *Bus[E]) deliver(s Subscriber[E], event E) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panic: %v", r)
		}
	}()
	return s.HandleEvent(event)
}

func hasIdentity(v interface{}) bool {
	return reflect.TypeOf(v).Comparable()
}
