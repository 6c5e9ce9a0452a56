package lease

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "leadflow:lease:"

// Release and Renew must only touch the key when the caller still owns
// it, so both run as compare scripts on the server.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	renewScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// RedisStore coordinates leases across workers through a shared Redis.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client, mainly for tests.
func NewRedisStoreWithClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Acquire(ctx context.Context, key, owner string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, owner, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}

	if ok {
		return nil
	}

	current, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to inspect lease: %w", err)
	}

	if current == owner {
		return s.Renew(ctx, key, owner, ttl)
	}

	return ErrLeaseHeld
}

func (s *RedisStore) Renew(ctx context.Context, key, owner string, ttl time.Duration) error {
	renewed, err := renewScript.Run(ctx, s.client, []string{keyPrefix + key}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}

	if renewed == 0 {
		return ErrLeaseHeld
	}

	return nil
}

func (s *RedisStore) Release(ctx context.Context, key, owner string) error {
	_, err := releaseScript.Run(ctx, s.client, []string{keyPrefix + key}, owner).Int()
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
