// Package lock guards autofetch runs across processes.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "growthrag:autofetch:"

// Locker acquires short-lived named locks.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// Noop always grants the lock. It is used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string) error                       { return nil }

// Redis implements Locker with SETNX and an owner-checked release.
type Redis struct {
	client  *redis.Client
	ownerID string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, ownerID: uuid.NewString()}
}

// Dial connects to the Redis URL and verifies the connection.
func Dial(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedis(client), nil
}

func (l *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+name, l.ownerID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Release deletes the lock only if this instance still owns it.
func (l *Redis) Release(ctx context.Context, name string) error {
	_, err := releaseScript.Run(ctx, l.client, []string{keyPrefix + name}, l.ownerID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

func (l *Redis) Close() error {
	return l.client.Close()
}
