package eventbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// recorder appends every event it sees to a shared log.
type recorder struct {
	name string
	log  *[]string
}

func (r *recorder) HandleEvent(event string) error {
	*r.log = append(*r.log, r.name+":"+event)
	return nil
}

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	var got []string
	bus := New[string]("test", zap.NewNop())
	bus.Subscribe(&recorder{name: "a", log: &got})
	bus.Subscribe(&recorder{name: "b", log: &got})
	bus.Subscribe(&recorder{name: "c", log: &got})

	bus.Publish("x")

	assert.Equal(t, []string{"a:x", "b:x", "c:x"}, got)
}

func TestBus_SubscribeIsIdempotent(t *testing.T) {
	var got []string
	bus := New[string]("test", nil)
	r := &recorder{name: "a", log: &got}

	bus.Subscribe(r)
	bus.Subscribe(r)

	assert.Equal(t, 1, bus.Len())
	bus.Publish("x")
	assert.Equal(t, []string{"a:x"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	var got []string
	bus := New[string]("test", nil)
	a := &recorder{name: "a", log: &got}
	b := &recorder{name: "b", log: &got}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Unsubscribe(a)
	bus.Unsubscribe(&recorder{name: "never-added", log: &got})
	bus.Publish("x")

	assert.Equal(t, []string{"b:x"}, got)
}

// TestBus_FailingSubscriberIsolated verifies [A, B] where A always fails
// still reaches B on every publish, in order.
func TestBus_FailingSubscriberIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := New[int]("test", zap.New(core))

	var calls []string
	failing := Func(func(int) error {
		calls = append(calls, "A")
		return errors.New("boom")
	})
	panicking := Func(func(int) error {
		calls = append(calls, "P")
		panic("kaboom")
	})
	healthy := Func(func(int) error {
		calls = append(calls, "B")
		return nil
	})
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NotPanics(t, func() {
		bus.Publish(1)
		bus.Publish(2)
	})

	assert.Equal(t, []string{"A", "P", "B", "A", "P", "B"}, calls)
	assert.Equal(t, 4, logs.FilterMessage("subscriber failed").Len())
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := New[int]("test", nil)
	count := 0
	var self *FuncSubscriber[int]
	self = Func(func(int) error {
		count++
		bus.Unsubscribe(self)
		return nil
	})
	bus.Subscribe(self)

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, 1, count)
	assert.Zero(t, bus.Len())
}

// sliceSubscriber has a value receiver and a slice field, so it has no
// usable identity.
type sliceSubscriber struct {
	seen []int
}

func (s sliceSubscriber) HandleEvent(int) error { return nil }

func TestBus_RejectsNonComparableSubscriber(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := New[int]("test", zap.New(core))

	require.NotPanics(t, func() {
		bus.Subscribe(sliceSubscriber{})
		bus.Subscribe(sliceSubscriber{})
		bus.Unsubscribe(sliceSubscriber{})
	})

	assert.Zero(t, bus.Len())
	assert.Equal(t, 2, logs.FilterMessage("subscriber rejected, type is not comparable").Len())
}

func TestBus_ValueSubscriberWithIdentity(t *testing.T) {
	bus := New[int]("test", nil)
	bus.Subscribe(namedSubscriber("a"))
	bus.Subscribe(namedSubscriber("a"))

	assert.Equal(t, 1, bus.Len())

	bus.Unsubscribe(namedSubscriber("a"))
	assert.Zero(t, bus.Len())
}

type namedSubscriber string

func (namedSubscriber) HandleEvent(int) error { return nil }
