package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// writerLockKey is the key of the single advisory lock that WithWriterLock
// takes. Spec §5: "one sync run or rebuild at a time per installation."
// The lock only serializes callers that go through WithWriterLock;
// ingest.Sync and lots.RebuildTaxLots do not call it, so neither the
// scheduler started by jobs.Scheduler.Start nor the server takes it.
const writerLockKey = "ledger:writer-lock"

// WithWriterLock runs fn while holding a Redis-backed advisory lock, token
// is unique to the caller so an expired-but-still-running holder can't be
// clobbered by a different acquirer's release.
func (c *Conn) WithWriterLock(ctx context.Context, ttl time.Duration, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	ok, err := c.Cache.SetNX(ctx, writerLockKey, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("acquiring writer lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another sync or rebuild is already running")
	}
	defer func() {
		// Only release if we still own it (best-effort; TTL bounds the
		// worst case of a crash leaving a dangling lock).
		if v, err := c.Cache.Get(context.Background(), writerLockKey).Result(); err == nil && v == token {
			c.Cache.Del(context.Background(), writerLockKey)
		}
	}()
	return fn(ctx)
}
