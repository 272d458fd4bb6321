package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelForAccount(t *testing.T) {
	assert.Equal(t, "wa:events:7", ChannelForAccount(7))
	assert.Equal(t, "wa:events:123", ChannelForAccount(123))
}

func TestRedisPublisherPublishesToAccountChannel(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, ChannelForAccount(7))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewRedisPublisher(client)
	publisher.Publish(ctx, SessionEvent{
		AccountID:   7,
		Kind:        string(EventConnected),
		PhoneNumber: "6281234567890",
	})

	select {
	case msg := <-sub.Channel():
		var event SessionEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, uint(7), event.AccountID)
		assert.Equal(t, string(EventConnected), event.Kind)
		assert.Equal(t, "6281234567890", event.PhoneNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published event")
	}
}

func TestRedisPublisherQRPayload(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, ChannelForAccount(3))
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	publisher := NewRedisPublisher(client)
	publisher.Publish(ctx, SessionEvent{AccountID: 3, Kind: string(EventQR), QRCode: "pairing-payload"})

	select {
	case msg := <-sub.Channel():
		var event SessionEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
		assert.Equal(t, "pairing-payload", event.QRCode)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a published event")
	}
}

func TestNoopPublisherDiscards(t *testing.T) {
	// Must not panic without a backend
	NoopPublisher{}.Publish(context.Background(), SessionEvent{AccountID: 1, Kind: string(EventDisconnected)})
}
