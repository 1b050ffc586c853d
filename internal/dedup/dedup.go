// Package dedup remembers which inbound messages were already pulled from
// the transport, using a Redis key with TTL. The message store deduplicates
// by Message-Id anyway; this filter just spares the pump from re-parsing
// mail that overlapping fetch windows deliver twice.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a seen message id is remembered. Mailbox
	// polling never looks back further than a day.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "chv:seen:"
)

// Filter tracks message ids already handed to the pump.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a filter backed by an existing Redis client.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

// NewFilterURL creates a filter from a redis:// URL.
func NewFilterURL(url string) (*Filter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("dedup redis url: %w", err)
	}
	return NewFilter(redis.NewClient(opts)), nil
}

// IsNew reports whether the message id has not been seen before and marks
// it seen atomically (SETNX).
func (f *Filter) IsNew(ctx context.Context, messageID string) (bool, error) {
	key := keyPrefix + messageID

	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}
