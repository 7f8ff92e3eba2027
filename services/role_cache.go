package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/distinctlyminty44/role-based-rls/authz"
	"github.com/go-redis/redis/v8"
)

// RoleCache holds refreshed session roles. The session middleware prefers a cached role
// over the role claim baked into the caller's token.
type RoleCache interface {
	Get(ctx context.Context, userID string) (authz.Role, bool, error)
	Set(ctx context.Context, userID string, role authz.Role) error
}

type RedisRoleCache struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	return &RedisRoleCache{Redis: client, TTL: ttl}
}

func roleCacheKey(userID string) string {
	return fmt.Sprintf("rbrls:session_role:%s", userID)
}

func (c *RedisRoleCache) Get(ctx context.Context, userID string) (authz.Role, bool, error) {
	val, err := c.Redis.Get(ctx, roleCacheKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get cached role: %w", err)
	}

	role, err := authz.ParseRole(val)
	if err != nil {
		// Stale or foreign value; fall back to the token claim
		return "", false, nil
	}
	return role, true, nil
}

func (c *RedisRoleCache) Set(ctx context.Context, userID string, role authz.Role) error {
	if err := c.Redis.Set(ctx, roleCacheKey(userID), string(role), c.TTL).Err(); err != nil {
		return fmt.Errorf("cache role: %w", err)
	}
	return nil
}
