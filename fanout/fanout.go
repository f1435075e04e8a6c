// Package fanout republishes controller-emitted events to every connection
// endpoint attached to a session, over Redis pub/sub so a deployment can run
// more than one front-end process against the same set of sessions.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Group names the two channel kinds a session fans out over: every
// connection in the session, and only its current host.
type Group string

const (
	GroupAll   Group = "all"
	GroupHosts Group = "hosts"
)

func channelName(sessionID uuid.UUID, group Group) string {
	return fmt.Sprintf("session:%s:%s", sessionID, group)
}

// Bus wraps a Redis client with the publish/subscribe operations the
// connection endpoint needs, keyed by session id and group.
type Bus struct {
	rdb *redis.Client
}

// NewBus wraps an already-connected client.
func NewBus(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// Publish marshals payload to JSON and publishes it to sessionID's group
// channel.
func (b *Bus) Publish(ctx context.Context, sessionID uuid.UUID, group Group, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fanout: marshal payload: %w", err)
	}
	if err := b.rdb.Publish(ctx, channelName(sessionID, group), data).Err(); err != nil {
		return fmt.Errorf("fanout: publish to %s: %w", channelName(sessionID, group), err)
	}
	return nil
}

// Subscription is a single connection's view of a session's group channel.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription to sessionID's group channel. The caller
// drains Messages() in its own read-pump goroutine, matching the teacher's
// per-connection writePump pattern of dedicating one goroutine to outbound
// delivery.
func (b *Bus) Subscribe(ctx context.Context, sessionID uuid.UUID, group Group) *Subscription {
	return &Subscription{pubsub: b.rdb.Subscribe(ctx, channelName(sessionID, group))}
}

// Messages returns the channel of raw JSON payloads published to this
// subscription.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close releases the underlying Redis subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
