package events

import (
	"context"
	"time"

	"github.com/product-designer/backend/internal/models"
	"github.com/zoobzio/hookz"
)

// Event keys used on the broadcaster. Every notification is emitted under
// KeyNotification and additionally under its own kind.
const (
	KeyNotification hookz.Key = "designer.notification"
)

// KeyFor returns the hookz key of a notification kind.
func KeyFor(kind models.NotificationKind) hookz.Key {
	return hookz.Key("designer." + string(kind))
}

// BroadcasterConfig tunes the async delivery queue.
type BroadcasterConfig struct {
	QueueSize int
	Timeout   time.Duration
}

// Broadcaster fans designer notifications out to asynchronous consumers.
type Broadcaster struct {
	hooks *hookz.Hooks[models.Notification]
}

// NewBroadcaster creates a broadcaster backed by a single hookz worker, so
// hooks observe notifications in emission order.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 256
	}
	opts := []hookz.Option{hookz.WithWorkers(1), hookz.WithQueueSize(queue)}
	if cfg.Timeout > 0 {
		opts = append(opts, hookz.WithTimeout(cfg.Timeout))
	}
	return &Broadcaster{hooks: hookz.New[models.Notification](opts...)}
}

// Attach forwards every notification fired on bus. The returned
// subscription detaches the forwarding.
func (b *Broadcaster) Attach(bus *Bus) *Subscription {
	return bus.SubscribeAll(func(n models.Notification) {
		ctx := context.Background()
		if err := b.hooks.Emit(ctx, KeyNotification, n); err != nil {
			Logger().Warn("broadcast dropped", "kind", n.Kind, "error", err)
			return
		}
		if err := b.hooks.Emit(ctx, KeyFor(n.Kind), n); err != nil {
			Logger().Warn("broadcast dropped", "kind", n.Kind, "error", err)
		}
	})
}

// OnAny registers an async consumer for every notification.
func (b *Broadcaster) OnAny(fn func(context.Context, models.Notification) error) (hookz.Hook, error) {
	return b.hooks.Hook(KeyNotification, fn)
}

// On registers an async consumer for one notification kind.
func (b *Broadcaster) On(kind models.NotificationKind, fn func(context.Context, models.Notification) error) (hookz.Hook, error) {
	return b.hooks.Hook(KeyFor(kind), fn)
}

// Metrics exposes the worker pool counters.
func (b *Broadcaster) Metrics() hookz.Metrics {
	return b.hooks.Metrics()
}

// Close drains queued deliveries and stops the workers.
func (b *Broadcaster) Close() error {
	return b.hooks.Close()
}
