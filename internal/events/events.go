// Package events publishes entity changes committed by the marketplace engine.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Kind is the change type.
type Kind string

const (
	KindUpsert Kind = "upsert"
	KindDelete Kind = "delete"
)

// Entity names the record type carried by an event.
type Entity string

const (
	EntityUser        Entity = "user"
	EntitySchool      Entity = "school"
	EntityRequest     Entity = "request"
	EntityOffer       Entity = "offer"
	EntityTransaction Entity = "transaction"
	EntityMessage     Entity = "message"
)

// Event is emitted once per touched entity after a successful mutation.
// Record holds a copy of the full current field set (a model value), or nil for deletes.
type Event struct {
	Kind   Kind
	Entity Entity
	ID     uuid.UUID
	Record any
	At     time.Time
}

// Subject is the routing key used by external transports, e.g. "flour.offer.upsert".
func (e Event) Subject(prefix string) string {
	return prefix + "." + string(e.Entity) + "." + string(e.Kind)
}

// Handler consumes events. Handlers run on the publisher's goroutine and must not block.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publish/subscribe fan-out.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int64]Handler
	nextID   int64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int64]Handler)}
}

// Subscribe registers a handler and returns its unsubscribe func.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers events to every subscriber in order.
func (b *Bus) Publish(ctx context.Context, evs ...Event) {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		hs = append(hs, h)
	}
	b.mu.RUnlock()

	// Notify handlers outside the lock
	for _, ev := range evs {
		for _, h := range hs {
			h(ctx, ev)
		}
	}
}
