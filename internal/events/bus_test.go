package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/product-designer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFireOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(models.NotifyElementAdd, func(n models.Notification) { got = append(got, "add:"+n.Title) })
	bus.SubscribeAll(func(n models.Notification) { got = append(got, "all:"+string(n.Kind)) })
	bus.Subscribe(models.NotifyElementRemove, func(n models.Notification) { got = append(got, "remove") })

	bus.Fire(models.Notification{Kind: models.NotifyElementAdd, Title: "Logo"})
	bus.Fire(models.Notification{Kind: models.NotifyElementRemove})

	assert.Equal(t, []string{"add:Logo", "all:elementAdd", "all:elementRemove", "remove"}, got)
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	sub := bus.Subscribe(models.NotifyPriceChange, func(models.Notification) { calls++ })

	require.NoError(t, sub.Unsubscribe())
	assert.ErrorIs(t, sub.Unsubscribe(), ErrAlreadyUnsubscribed)

	bus.Fire(models.Notification{Kind: models.NotifyPriceChange})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestBroadcasterForwards(t *testing.T) {
	bus := NewBus()
	b := NewBroadcaster(BroadcasterConfig{QueueSize: 8})
	defer b.Close()

	var mu sync.Mutex
	var kinds []models.NotificationKind
	_, err := b.On(models.NotifyElementModify, func(_ context.Context, n models.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, n.Kind)
		return nil
	})
	require.NoError(t, err)

	sub := b.Attach(bus)
	defer sub.Unsubscribe()

	bus.Fire(models.Notification{Kind: models.NotifyElementAdd})
	bus.Fire(models.Notification{Kind: models.NotifyElementModify, Keys: []string{"fill"}})

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.NotifyElementModify, kinds[0])
}

func TestBroadcasterPreservesEmissionOrder(t *testing.T) {
	bus := NewBus()
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	var mu sync.Mutex
	var got []int
	_, err := b.OnAny(func(_ context.Context, n models.Notification) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, int(n.Price))
		return nil
	})
	require.NoError(t, err)

	sub := b.Attach(bus)
	defer sub.Unsubscribe()

	want := make([]int, 50)
	for i := range want {
		want[i] = i
		bus.Fire(models.Notification{Kind: models.NotifyElementModify, Price: float64(i)})
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(want)
	}, 2*time.Second, 10*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}
