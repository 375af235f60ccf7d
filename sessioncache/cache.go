package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when no entry exists for the key.
var ErrMiss = errors.New("cache entry not found")

// ErrUnavailable is returned when the cache backend cannot serve the call:
// connection failure, pool exhaustion, or the per-call timeout elapsing.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is the Redis adapter for serialized session contexts. Every entry
// write also registers the key in a per-user index set so user-scoped
// invalidation never scans the key space.
type Cache struct {
	redis   redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// New creates a Cache backed by the given Redis client. prefix namespaces
// all keys; timeout bounds every individual call.
func New(rdb redis.UniversalClient, prefix string, timeout time.Duration) *Cache {
	return &Cache{
		redis:   rdb,
		prefix:  prefix,
		timeout: timeout,
	}
}

func (c *Cache) key(tokenHash string) string {
	return c.prefix + ":ctx:" + tokenHash
}

func (c *Cache) userKey(userID string) string {
	return c.prefix + ":uidx:" + userID
}

func (c *Cache) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Get fetches and decodes the context cached under the token hash.
// Returns ErrMiss when absent, ErrUnavailable on backend failure.
//
//	Performance: 1 Redis GET.
func (c *Cache) Get(ctx context.Context, tokenHash string) (*Context, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	data, err := c.redis.Get(ctx, c.key(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cctx, err := Decode(data)
	if err != nil {
		// Corrupt blob: drop it so the next read repopulates from the store.
		_ = c.Delete(context.WithoutCancel(ctx), tokenHash)
		return nil, ErrMiss
	}

	return cctx, nil
}

// saveEntryScript writes an entry and registers it in the user index. The
// index TTL is only ever extended, never shortened: it must outlive its
// longest-lived member, or a purge could miss entries whose index expired
// under a later short-TTL save.
// KEYS[1] = entry key, KEYS[2] = user index key,
// ARGV[1] = encoded context, ARGV[2] = TTL in milliseconds.
const saveEntryScript = `
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], KEYS[1])
local ttl = tonumber(ARGV[2])
local cur = redis.call("PTTL", KEYS[2])
if cur == -1 or cur < ttl then
  redis.call("PEXPIRE", KEYS[2], ttl)
end
return 1
`

var saveEntryLua = redis.NewScript(saveEntryScript)

// Save persists a context under the token hash with the given TTL and
// registers the key in the user index. The index set tracks the longest
// remaining member TTL so user-scoped invalidation always sees every live
// entry.
//
//	Performance: 1 Redis script call (SET + SADD + conditional PEXPIRE).
func (c *Cache) Save(ctx context.Context, tokenHash string, cctx *Context, ttl time.Duration) error {
	data, err := Encode(cctx)
	if err != nil {
		return err
	}

	entryKey := c.key(tokenHash)
	userKey := c.userKey(cctx.UserID)

	ctx, cancel := c.bound(ctx)
	defer cancel()

	err = saveEntryLua.Run(ctx, c.redis,
		[]string{entryKey, userKey}, data, ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// deleteEntryScript removes an entry and its user-index member atomically.
// KEYS[1] = entry key, KEYS[2] = user index key, ARGV[1] = entry key.
const deleteEntryScript = `
local existed = redis.call("EXISTS", KEYS[1])
redis.call("SREM", KEYS[2], ARGV[1])
if existed == 1 then
  redis.call("DEL", KEYS[1])
end
return existed
`

var deleteEntryLua = redis.NewScript(deleteEntryScript)

// Delete removes a single entry by token hash. Deleting an absent entry is
// not an error. The entry must be read first to locate the owning user's
// index set.
func (c *Cache) Delete(ctx context.Context, tokenHash string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	entryKey := c.key(tokenHash)

	data, err := c.redis.Get(ctx, entryKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	cctx, err := Decode(data)
	if err != nil {
		// Unparseable entry: delete the key alone, no index to fix.
		if delErr := c.redis.Del(ctx, entryKey).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, delErr)
		}
		return nil
	}

	if err := deleteEntryLua.Run(ctx, c.redis,
		[]string{entryKey, c.userKey(cctx.UserID)}, entryKey).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// PurgeUser removes every cached entry belonging to a user, across all of
// their sessions and devices.
//
// ATOMICITY NOTE: the index is read (SMembers) before the delete transaction
// runs. An entry written between the two phases survives the purge; it
// carries the pre-switch active organization for at most one TTL, which is
// already the documented staleness bound for any cached value. Callers who
// need a tighter window can invoke PurgeUser a second time.
func (c *Cache) PurgeUser(ctx context.Context, userID string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	userKey := c.userKey(userID)

	entryKeys, err := c.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	_, err = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(entryKeys) > 0 {
			pipe.Del(ctx, entryKeys...)
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// Ping measures cache-backend round-trip latency.
func (c *Cache) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()

	start := time.Now()
	if err := c.redis.Ping(ctx).Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// PoolStats exposes the underlying connection pool counters for the health
// surface.
func (c *Cache) PoolStats() *redis.PoolStats {
	return c.redis.PoolStats()
}
