package ban

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis set holding banned clean names.
const DefaultKey = "clans:banned"

// RedisList is a ban list shared by every server instance.
// The client lifecycle is managed by the caller.
type RedisList struct {
	client *redis.Client
	key    string
}

// RedisOption configures a RedisList.
type RedisOption func(*RedisList)

// WithKey stores bans under a different set key.
func WithKey(key string) RedisOption {
	return func(l *RedisList) {
		l.key = key
	}
}

// NewRedisList creates a Redis-backed ban list.
func NewRedisList(client *redis.Client, opts ...RedisOption) *RedisList {
	l := &RedisList{client: client, key: DefaultKey}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Ban adds name to the set.
func (l *RedisList) Ban(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if err := l.client.SAdd(ctx, l.key, name).Err(); err != nil {
		return fmt.Errorf("redis ban %q: %w", name, err)
	}
	return nil
}

// Unban removes name from the set.
func (l *RedisList) Unban(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}
	if err := l.client.SRem(ctx, l.key, name).Err(); err != nil {
		return fmt.Errorf("redis unban %q: %w", name, err)
	}
	return nil
}

// IsBanned reports whether name is in the set.
func (l *RedisList) IsBanned(ctx context.Context, name string) (bool, error) {
	if name == "" {
		return false, nil
	}
	banned, err := l.client.SIsMember(ctx, l.key, name).Result()
	if err != nil {
		return false, fmt.Errorf("redis ban lookup %q: %w", name, err)
	}
	return banned, nil
}

// Health checks the Redis connection.
func (l *RedisList) Health(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
