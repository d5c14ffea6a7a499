package feed

import (
	"context"
	"sync"
)

// MemoryFeed is an in-process Feed used by tests and by single-binary
// deployments that do not need Redis. Events are delivered synchronously in
// Publish order, which also makes test assertions deterministic.
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[int]*memorySub
	next int

	down bool
}

type memorySub struct {
	sub    Subscription
	closed bool
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]*memorySub)}
}

// SetDown toggles a simulated transport outage: Ping fails and Publish drops
// events, the way a dead Redis connection would.
func (f *MemoryFeed) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

// Ping reports the simulated connectivity state.
func (f *MemoryFeed) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context, sub Subscription) (Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, context.DeadlineExceeded
	}
	id := f.next
	f.next++
	ms := &memorySub{sub: sub}
	f.subs[id] = ms
	return &memoryHandle{feed: f, id: id, ms: ms}, nil
}

func (f *MemoryFeed) Publish(ctx context.Context, ev Event) error {
	f.mu.Lock()
	if f.down {
		f.mu.Unlock()
		return nil // dropped, like a publish into a dead connection
	}
	var targets []Subscription
	for _, ms := range f.subs {
		if !ms.closed && ms.sub.wants(ev) {
			targets = append(targets, ms.sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.Handler(ev)
	}
	return nil
}

// SubscriberCount returns the number of open subscriptions, for tests.
func (f *MemoryFeed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ms := range f.subs {
		if !ms.closed {
			n++
		}
	}
	return n
}

type memoryHandle struct {
	feed *MemoryFeed
	id   int
	ms   *memorySub
}

func (h *memoryHandle) Close() {
	h.feed.mu.Lock()
	defer h.feed.mu.Unlock()
	h.ms.closed = true
	delete(h.feed.subs, h.id)
}
