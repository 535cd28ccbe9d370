package bus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

var errInterrupted = errors.New("bus: memory transport interrupted")

type memoryListener struct {
	deliver   func([]byte)
	interrupt chan struct{}
}

// MemoryTransport fans out messages inside one process
type MemoryTransport struct {
	lock      sync.RWMutex
	listeners map[string]map[*memoryListener]struct{}
	closed    bool
}

// NewMemoryTransport creates an in-process transport
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		listeners: map[string]map[*memoryListener]struct{}{},
	}
}

// Publish delivers payload to the current listeners of topic. Listeners that join later miss it.
func (t *MemoryTransport) Publish(topic string, payload []byte) error {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if t.closed {
		return ErrClosed
	}
	for l := range t.listeners[topic] {
		cp := make([]byte, len(payload))
		copy(cp, payload)
		l.deliver(cp)
	}
	return nil
}

// Listen registers deliver for topic until ctx is cancelled or the transport is interrupted
func (t *MemoryTransport) Listen(ctx context.Context, topic string, deliver func([]byte)) error {
	l := &memoryListener{deliver: deliver, interrupt: make(chan struct{})}
	t.lock.Lock()
	if t.closed {
		t.lock.Unlock()
		return ErrClosed
	}
	if t.listeners[topic] == nil {
		t.listeners[topic] = map[*memoryListener]struct{}{}
	}
	t.listeners[topic][l] = struct{}{}
	t.lock.Unlock()

	var err error
	select {
	case <-ctx.Done():
	case <-l.interrupt:
		err = errInterrupted
	}

	t.lock.Lock()
	delete(t.listeners[topic], l)
	t.lock.Unlock()
	return err
}

// Interrupt drops every current listener as if the broker connection was lost
func (t *MemoryTransport) Interrupt() {
	t.lock.Lock()
	for topic, ls := range t.listeners {
		for l := range ls {
			close(l.interrupt)
		}
		delete(t.listeners, topic)
	}
	t.lock.Unlock()
}

// Listeners returns the number of listeners of topic
func (t *MemoryTransport) Listeners(topic string) int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return len(t.listeners[topic])
}

// Close interrupts all listeners and rejects further use
func (t *MemoryTransport) Close() error {
	t.Interrupt()
	t.lock.Lock()
	t.closed = true
	t.lock.Unlock()
	return nil
}
