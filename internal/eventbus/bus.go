package eventbus

import (
	"sort"
	"sync"
	"time"
)

// Event is a lightweight, in-memory signal used to decouple components.
//
// Contract:
//   - Publish delivers synchronously, in subscriber registration order,
//     before returning. Transition ordering for a single entity therefore
//     follows publish ordering with no buffering in between.
//   - Handlers must not block indefinitely; long work belongs on the
//     caller's own goroutine.
//
// Data should be small; for lifecycle topics it is the event id.
type Event struct {
	Topic string
	Time  time.Time
	Data  any
}

// Handler consumes one published event.
type Handler func(Event)

type Bus interface {
	Publish(e Event)
	// Subscribe registers a handler for one topic. The returned func
	// removes the registration; it is safe to call more than once.
	Subscribe(topic string, h Handler) (unsubscribe func())
}

// New returns a simple in-memory per-topic bus.
//
// It intentionally does not own any background goroutines.
func New() Bus {
	return &memBus{subs: map[string]map[uint64]Handler{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[string]map[uint64]Handler
	seq  uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot handlers so Publish doesn't hold locks while invoking them,
	// and so a handler may unsubscribe itself without deadlocking.
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs[e.Topic]))
	for id := range b.subs[e.Topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	hs := make([]Handler, 0, len(ids))
	for _, id := range ids {
		hs = append(hs, b.subs[e.Topic][id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(e)
	}
}

func (b *memBus) Subscribe(topic string, h Handler) func() {
	b.mu.Lock()
	b.seq++
	id := b.seq
	m := b.subs[topic]
	if m == nil {
		m = map[uint64]Handler{}
		b.subs[topic] = m
	}
	m[id] = h
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if m := b.subs[topic]; m != nil {
				delete(m, id)
				if len(m) == 0 {
					delete(b.subs, topic)
				}
			}
			b.mu.Unlock()
		})
	}
}
