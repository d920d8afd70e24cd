// Package events delivers designer notifications.
//
// Bus is synchronous: handlers run in subscription order on the goroutine
// that fires the notification. Broadcaster forwards notifications to slower
// consumers (websocket clients, autosave) asynchronously through hookz.
package events

import (
	"errors"
	"sync"

	"github.com/product-designer/backend/internal/models"
)

// ErrAlreadyUnsubscribed is returned when a subscription is cancelled twice.
var ErrAlreadyUnsubscribed = errors.New("subscription already cancelled")

// Handler receives a notification.
type Handler func(models.Notification)

// Subscription is a handle to a registered handler.
type Subscription struct {
	cancel func()
}

// Unsubscribe removes the handler. Calling it again returns ErrAlreadyUnsubscribed.
func (s *Subscription) Unsubscribe() error {
	if s.cancel == nil {
		return ErrAlreadyUnsubscribed
	}
	s.cancel()
	s.cancel = nil
	return nil
}

type entry struct {
	id      uint64
	kind    models.NotificationKind
	any     bool
	handler Handler
}

// Bus is a typed publish/subscribe channel keyed by notification kind.
type Bus struct {
	mu      sync.RWMutex
	entries []entry
	nextID  uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers h for one notification kind.
func (b *Bus) Subscribe(kind models.NotificationKind, h Handler) *Subscription {
	return b.add(entry{kind: kind, handler: h})
}

// SubscribeAll registers h for every notification kind.
func (b *Bus) SubscribeAll(h Handler) *Subscription {
	return b.add(entry{any: true, handler: h})
}

func (b *Bus) add(e entry) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	e.id = b.nextID
	b.entries = append(b.entries, e)
	id := e.id
	return &Subscription{cancel: func() { b.remove(id) }}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return
		}
	}
}

// Fire delivers n to every matching handler before returning.
func (b *Bus) Fire(n models.Notification) {
	b.mu.RLock()
	matched := make([]Handler, 0, len(b.entries))
	for _, e := range b.entries {
		if e.any || e.kind == n.Kind {
			matched = append(matched, e.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range matched {
		h(n)
	}
}

// Len returns the number of registered handlers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
