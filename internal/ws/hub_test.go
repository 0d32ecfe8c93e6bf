package ws

import (
	"context"
	"testing"
	"time"

	"storefront-engine/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecipient(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id.String(), recipient(service.Event{Data: map[string]any{"user_id": id}}))
	assert.Equal(t, "u-1", recipient(service.Event{Data: map[string]any{"user_id": "u-1"}}))
	assert.Empty(t, recipient(service.Event{Data: map[string]any{"user_id": 7}}))
	assert.Empty(t, recipient(service.Event{}))
}

func TestPublishQueuesEncodedEvent(t *testing.T) {
	hub := NewHub(zap.NewNop())
	userID := uuid.New()

	err := hub.Publish(context.Background(), service.Event{
		Type:      service.EventOrderStatusChanged,
		Reference: "ORD-1",
		Data:      map[string]any{"user_id": userID, "status": "confirmed"},
	})
	require.NoError(t, err)

	msg := <-hub.Broadcast
	assert.Equal(t, userID.String(), msg.userID)
	assert.Contains(t, string(msg.payload), `"type":"order.status_changed"`)
	assert.Contains(t, string(msg.payload), `"reference":"ORD-1"`)
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < cap(hub.Broadcast); i++ {
		require.NoError(t, hub.Publish(context.Background(), service.Event{Type: service.EventStockChanged}))
	}
	err := hub.Publish(context.Background(), service.Event{Type: service.EventStockChanged})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}

func TestStoppedHub(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	assert.ErrorIs(t, hub.Publish(context.Background(), service.Event{Type: service.EventOrderCreated}), ErrHubClosed)
	assert.False(t, hub.Join(&Client{UserID: "u-1"}))
	hub.Leave(nil)
	assert.Zero(t, hub.Count())
}
