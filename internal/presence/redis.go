package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel presence changes are published on.
const DefaultChannel = "presence"

// Change is the payload published for each transition.
type Change struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
	At     int64  `json:"at"`
}

// publisher is the subset of *redis.Client used by RedisNotifier.
type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes presence transitions to a Redis channel so other
// processes can follow who is online.
type RedisNotifier struct {
	client  publisher
	channel string
	closer  func() error
	now     func() time.Time
}

// NewRedisNotifier connects to the Redis instance at url.
func NewRedisNotifier(ctx context.Context, url string) (*RedisNotifier, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisNotifier{
		client:  client,
		channel: DefaultChannel,
		closer:  client.Close,
		now:     time.Now,
	}, nil
}

var _ Notifier = (*RedisNotifier)(nil)

// Online publishes an online transition.
func (n *RedisNotifier) Online(ctx context.Context, userID string) error {
	return n.publish(ctx, Change{UserID: userID, Online: true})
}

// Offline publishes a fully-offline transition.
func (n *RedisNotifier) Offline(ctx context.Context, userID string) error {
	return n.publish(ctx, Change{UserID: userID, Online: false})
}

// Close releases the Redis connection.
func (n *RedisNotifier) Close() error {
	if n.closer == nil {
		return nil
	}
	return n.closer()
}

func (n *RedisNotifier) publish(ctx context.Context, change Change) error {
	change.At = n.now().Unix()
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode presence change: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	return nil
}
