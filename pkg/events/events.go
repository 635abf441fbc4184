package events

import (
	"sync"
)

// Handler receives a published event.
type Handler[T any] func(event T)

// Topic is a typed publish/subscribe channel.
// Handlers run synchronously on the publishing goroutine, in subscription order.
type Topic[T any] struct {
	lock     sync.RWMutex
	nextID   int
	handlers []subscription[T]
}

type subscription[T any] struct {
	id      int
	handler Handler[T]
}

// Subscribe registers a handler and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (t *Topic[T]) Subscribe(handler Handler[T]) (unsubscribe func()) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.nextID++
	id := t.nextID
	t.handlers = append(t.handlers, subscription[T]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

func (t *Topic[T]) remove(id int) {
	t.lock.Lock()
	defer t.lock.Unlock()
	for i, s := range t.handlers {
		if s.id == id {
			t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to every handler registered at the time of the call.
func (t *Topic[T]) Publish(event T) {
	t.lock.RLock()
	handlers := make([]Handler[T], len(t.handlers))
	for i, s := range t.handlers {
		handlers[i] = s.handler
	}
	t.lock.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

// Len returns the number of subscribed handlers.
func (t *Topic[T]) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.handlers)
}
