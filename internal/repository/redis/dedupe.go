// Package redis holds Redis-backed repositories.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/and161185/flour/internal/repository"
)

// DefaultTTL is how long processed webhook ids are remembered.
const DefaultTTL = 72 * time.Hour

type setNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
}

// Deduper implements repository.EventDeduper with SET NX.
type Deduper struct {
	rdb    setNXer
	prefix string
	ttl    time.Duration
}

var _ repository.EventDeduper = (*Deduper)(nil)

// NewDeduper wraps a client; keys are "<prefix>:<id>".
func NewDeduper(rdb setNXer, prefix string, ttl time.Duration) *Deduper {
	if prefix == "" {
		prefix = "flour:webhook"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Deduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := goredis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func (d *Deduper) FirstSeen(ctx context.Context, id string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, d.prefix+":"+id, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: setnx %s: %w", id, err)
	}
	return ok, nil
}
