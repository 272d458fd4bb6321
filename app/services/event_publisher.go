package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

// SessionEvent is the payload pushed to the realtime channel on session
// lifecycle transitions
type SessionEvent struct {
	AccountID   uint   `json:"account_id"`
	Kind        string `json:"kind"`
	QRCode      string `json:"qr_code,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	// WillReconnect tells the frontend whether a disconnected event is
	// followed by an automatic reconnect attempt.
	WillReconnect bool `json:"will_reconnect,omitempty"`
}

// RealtimePublisher pushes session lifecycle events to interested frontends.
// Publishing is best-effort: failures are logged, never propagated.
type RealtimePublisher interface {
	Publish(ctx context.Context, event SessionEvent)
}

// RedisPublisher publishes session events on a per-account Pub/Sub channel
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a publisher backed by a Redis client
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// ChannelForAccount returns the Pub/Sub channel name of an account
func ChannelForAccount(accountID uint) string {
	return fmt.Sprintf("wa:events:%d", accountID)
}

// Publish marshals and publishes the event; errors are logged only
func (p *RedisPublisher) Publish(ctx context.Context, event SessionEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Publisher] Failed to marshal event for account %d: %v", event.AccountID, err)
		return
	}
	if err := p.client.Publish(ctx, ChannelForAccount(event.AccountID), payload).Err(); err != nil {
		log.Printf("[Publisher] Failed to publish event for account %d: %v", event.AccountID, err)
	}
}

// NoopPublisher discards all events; used when Redis is not configured
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event SessionEvent) {}
