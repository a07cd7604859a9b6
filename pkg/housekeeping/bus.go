package housekeeping

import (
	"sync"

	"github.com/aretw0/mqlua/pkg/domain"
)

// Address is the private in-process endpoint name of the housekeeping bus.
// It is only used for diagnostics; nothing outside the process can reach it.
const Address = "inproc://housekeeping"

// Bus is an unbounded, single-consumer queue of housekeeping events.
// Any number of goroutines may Publish; exactly one may Receive.
// Publish never blocks, so a node can always report termination even when
// nobody is draining.
type Bus struct {
	mu     sync.Mutex
	queue  []domain.Event
	notify chan struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{notify: make(chan struct{}, 1)}
}

// Publish appends an event.
func (b *Bus) Publish(e domain.Event) {
	b.mu.Lock()
	b.queue = append(b.queue, e)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Pending reports, without blocking, whether an event is waiting.
func (b *Bus) Pending() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue) > 0
}

// Receive blocks until an event is available and removes it.
func (b *Bus) Receive() domain.Event {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			e := b.queue[0]
			b.queue[0] = 0
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return e
		}
		b.mu.Unlock()
		<-b.notify
	}
}
