package events

import (
	"context"
	"sync"
)

type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id   uint64
	name string // "" subscribes to everything
	fn   Handler
}

// Bus is a synchronous in-process dispatcher. Handlers run on the publisher's
// goroutine in subscription order, outside the bus lock, so a handler may
// publish further events.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for one event name and returns its cancel func.
func (b *Bus) Subscribe(name string, fn Handler) func() {
	return b.add(name, fn)
}

// SubscribeAll registers fn for every event.
func (b *Bus) SubscribeAll(fn Handler) func() {
	return b.add("", fn)
}

func (b *Bus) add(name string, fn Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, name: name, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish returns how many handlers received ev.
func (b *Bus) Publish(ctx context.Context, ev Event) int {
	b.mu.RLock()
	targets := make([]Handler, 0, len(b.subs))
	for _, s := range b.subs {
		if s.name == "" || s.name == ev.Name {
			targets = append(targets, s.fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(ctx, ev)
	}
	return len(targets)
}
