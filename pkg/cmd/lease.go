package cmd

import (
	"context"
	"fmt"

	"github.com/Ktej255/leadflow/pkg/lease"
	"github.com/redis/go-redis/v9"
)

// NewLeaseStore builds the execution lease store. An empty redis URL
// falls back to the in-process store, which is only safe for a single
// worker instance.
func NewLeaseStore(ctx context.Context, redisURL string) lease.Store {
	if redisURL == "" {
		return lease.NewMemoryStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		panic(fmt.Errorf("failed to parse redis URL: %w", err))
	}

	store, err := lease.NewRedisStore(ctx, opts.Addr, opts.Password, opts.DB)
	if err != nil {
		panic(fmt.Errorf("failed to connect to redis: %w", err))
	}

	return store
}
