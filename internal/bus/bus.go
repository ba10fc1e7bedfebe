package bus

import (
	"sync"

	"github.com/jkaberg/dura-gas/internal/sensors"
)

// Bus provides fan-out pub/sub semantics for *sensors.Snapshot* messages.
// Each Subscribe call gets its own channel that receives every future
// publication. Past messages are not replayed. The implementation is safe for
// concurrent publishers and subscribers.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan *sensors.Snapshot
	closed      bool
}

// New creates a ready-to-use Bus.
func New() *Bus { return &Bus{} }

// Subscribe returns a read-only channel that will receive all future
// snapshots.
func (b *Bus) Subscribe() <-chan *sensors.Snapshot {
	ch := make(chan *sensors.Snapshot, 1) // small buffer avoids blocking
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the snapshot to all subscribers without blocking. A busy
// subscriber has its pending snapshot replaced so it always sees the latest.
func (b *Bus) Publish(s *sensors.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subscribers {
		select {
		case ch <- s:
			continue
		default:
		}
		// drop the stale snapshot and retry once
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publications are dropped.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
}
