package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sitegate:"

// takeScript implements Store.Take atomically.
// KEYS[1] counter key; ARGV[1] max; ARGV[2] window in ms.
// Returns {count, pttl, allowed}.
var takeScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
local window = tonumber(ARGV[2])
if not current then
  redis.call('SET', KEYS[1], 1, 'PX', window)
  return {1, window, 1}
end
current = tonumber(current)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
if current < tonumber(ARGV[1]) then
  current = redis.call('INCR', KEYS[1])
  return {current, ttl, 1}
end
return {current, ttl, 0}
`)

// RedisStore keeps counters in Redis so that every instance behind a load
// balancer shares the same windows and blocked set. Expiry is delegated to
// Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses "sitegate:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL parses a redis:// URL and connects lazily. Commands
// are traced through the global TracerProvider.
func NewRedisStoreFromURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("enable redis tracing: %w", err)
	}
	return NewRedisStore(client, ""), nil
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) rateKey(key string) string   { return s.prefix + "rl:" + key }
func (s *RedisStore) suspectKey(ip string) string { return s.prefix + "suspect:" + ip }
func (s *RedisStore) blockedKey() string          { return s.prefix + "blocked" }

func (s *RedisStore) Take(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Entry, bool, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.rateKey(key)}, max, window.Milliseconds()).Int64Slice()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis take %s: %w", key, err)
	}
	if len(res) != 3 {
		return Entry{}, false, fmt.Errorf("redis take %s: unexpected reply %v", key, res)
	}
	entry := Entry{Count: int(res[0]), ResetAt: now.Add(time.Duration(res[1]) * time.Millisecond)}
	return entry, res[2] == 1, nil
}

// Sweep is a no-op: Redis expires counters on its own.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) RecordSuspicion(ctx context.Context, ip string, _ time.Time, decay time.Duration) (int, error) {
	k := s.suspectKey(ip)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.PExpire(ctx, k, decay)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis record suspicion %s: %w", ip, err)
	}
	return int(incr.Val()), nil
}

func (s *RedisStore) Block(ctx context.Context, ip string) error {
	if err := s.client.SAdd(ctx, s.blockedKey(), ip).Err(); err != nil {
		return fmt.Errorf("redis block %s: %w", ip, err)
	}
	return nil
}

func (s *RedisStore) Unblock(ctx context.Context, ip string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, s.blockedKey(), ip)
		pipe.Del(ctx, s.suspectKey(ip))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis unblock %s: %w", ip, err)
	}
	return nil
}

func (s *RedisStore) IsBlocked(ctx context.Context, ip string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.blockedKey(), ip).Result()
	if err != nil {
		return false, fmt.Errorf("redis is blocked %s: %w", ip, err)
	}
	return ok, nil
}

func (s *RedisStore) Blocked(ctx context.Context) ([]string, error) {
	ips, err := s.client.SMembers(ctx, s.blockedKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list blocked: %w", err)
	}
	sort.Strings(ips)
	return ips, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
