package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Open parses a redis:// URL and returns a client. An empty URL returns nil: health counters are optional.
func Open(url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = time.Second
	opt.WriteTimeout = time.Second
	return redis.NewClient(opt), nil
}

// Ping checks the client, treating a nil client as healthy.
func Ping(ctx context.Context, rdb *redis.Client) error {
	if rdb == nil {
		return nil
	}
	return rdb.Ping(ctx).Err()
}
