package storage

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Presence mirrors the online state of authenticated users so that other
// services can answer "is this user reachable and on which node". The
// in-process registry stays the source of truth for delivery.
type Presence interface {
	Online(ctx context.Context, userID string) error
	Offline(ctx context.Context, userID string) error
}

// presence key: chat:presence:<user>
// value: node id, TTL bounds the online validity period
func presenceKey(user string) string { return "chat:presence:" + user }

type RedisPresence struct {
	nodeID string
	ttl    time.Duration
}

func NewRedisPresence(nodeID string, ttl time.Duration) *RedisPresence {
	return &RedisPresence{nodeID: nodeID, ttl: ttl}
}

// Online marks the user online and renews the TTL.
func (p *RedisPresence) Online(ctx context.Context, userID string) error {
	return GetRedis().Set(ctx, presenceKey(userID), p.nodeID, p.ttl).Err()
}

// Offline removes the presence key.
func (p *RedisPresence) Offline(ctx context.Context, userID string) error {
	return GetRedis().Del(ctx, presenceKey(userID)).Err()
}

// Lookup reports whether the user is online and on which node.
func (p *RedisPresence) Lookup(ctx context.Context, userID string) (nodeID string, online bool, err error) {
	val, err := GetRedis().Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// NopPresence is used when no redis address is configured.
type NopPresence struct{}

func (NopPresence) Online(context.Context, string) error  { return nil }
func (NopPresence) Offline(context.Context, string) error { return nil }
