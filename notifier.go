package revkit

import (
	"sync"

	"github.com/google/uuid"
)

// notifier is a list of callbacks invoked in registration order.
type notifier[A any] struct {
	mu       sync.Mutex
	handlers []handlerEntry[A]
}

type handlerEntry[A any] struct {
	id uuid.UUID
	fn func(A)
}

// add registers fn and returns a function that removes it.
func (n *notifier[A]) add(fn func(A)) (remove func()) {
	id := uuid.New()
	n.mu.Lock()
	n.handlers = append(n.handlers, handlerEntry[A]{id: id, fn: fn})
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		for i, h := range n.handlers {
			if h.id == id {
				n.handlers = append(n.handlers[:i:i], n.handlers[i+1:]...)
				return
			}
		}
	}
}

// emit calls every handler outside the lock, so handlers may add or remove
// handlers.
func (n *notifier[A]) emit(a A) {
	n.mu.Lock()
	handlers := make([]func(A), len(n.handlers))
	for i, h := range n.handlers {
		handlers[i] = h.fn
	}
	n.mu.Unlock()

	for _, fn := range handlers {
		fn(a)
	}
}

func (n *notifier[A]) reset() {
	n.mu.Lock()
	n.handlers = nil
	n.mu.Unlock()
}
