package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDenylist keeps revoked access-token ids until their natural expiry.
// It is only consulted when ACCESS_DENYLIST_ENABLED is set; otherwise
// access tokens stay valid until they expire.
type RedisDenylist struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisDenylist(rdb *redis.Client, prefix string) *RedisDenylist {
	if prefix == "" {
		prefix = "denylist:access"
	}
	return &RedisDenylist{rdb: rdb, prefix: prefix, now: time.Now}
}

func (d *RedisDenylist) key(jti string) string { return d.prefix + ":" + jti }

// Add denylists jti until the given expiry. Already-expired ids are skipped.
func (d *RedisDenylist) Add(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(d.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := d.rdb.Set(ctx, d.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("denylist add: %w", err)
	}
	return nil
}

// Contains reports whether jti has been denylisted.
func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("denylist lookup: %w", err)
	}
	return n > 0, nil
}
