package events

import "sync"

// Emitter is a minimal observer registry. Listeners are invoked in
// subscription order, outside of any Emitter lock, so a listener may
// subscribe or unsubscribe other listeners during delivery.
type Emitter[T any] struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]func(T)
}

// NewEmitter creates an empty emitter.
func NewEmitter[T any]() *Emitter[T] {
	return &Emitter[T]{listeners: make(map[int]func(T))}
}

// Subscribe registers a listener and returns a function that removes it.
// The returned function is idempotent.
func (e *Emitter[T]) Subscribe(listener func(T)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.order = append(e.order, id)
	e.listeners[id] = listener

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

// Emit delivers value to every listener registered at the time of the
// call, in subscription order. Listeners removed before delivery are
// skipped.
func (e *Emitter[T]) Emit(value T) {
	e.mu.Lock()
	snapshot := make([]func(T), 0, len(e.listeners))
	kept := e.order[:0]
	for _, id := range e.order {
		listener, ok := e.listeners[id]
		if !ok {
			continue
		}
		kept = append(kept, id)
		snapshot = append(snapshot, listener)
	}
	e.order = kept
	e.mu.Unlock()

	for _, listener := range snapshot {
		listener(value)
	}
}

// Len reports the number of registered listeners.
func (e *Emitter[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
