package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"geo_gate/internal/dataType"
)

const (
	usageKeyPrefix = "usage:"
	fieldCharged   = "charged_visitors"
	usageTTL       = 100 * 24 * time.Hour
)

// claimScript applies dataType.Overage and charges the result in one step.
const claimScript = `
local total = tonumber(redis.call("HGET", KEYS[1], "total_visitors") or "0")
local charged = tonumber(redis.call("HGET", KEYS[1], "charged_visitors") or "0")
local limit = tonumber(ARGV[1])

local overage = total - limit - charged
if overage <= 0 then
    return 0
end

redis.call("HINCRBY", KEYS[1], "charged_visitors", overage)
return overage
`

const releaseScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
local charged = tonumber(redis.call("HGET", KEYS[1], "charged_visitors") or "0")
local left = charged - tonumber(ARGV[1])
if left < 0 then
    left = 0
end
redis.call("HSET", KEYS[1], "charged_visitors", left)
return left
`

// RedisUsageStore shares usage counters between nodes. Each (shop, month)
// is one hash; the overage claim runs as a Lua script.
type RedisUsageStore struct {
	client  *redis.Client
	claim   *redis.Script
	release *redis.Script
}

func NewRedisUsageStore(addr string, password string, db int) *RedisUsageStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisUsageStore{
		client:  client,
		claim:   redis.NewScript(claimScript),
		release: redis.NewScript(releaseScript),
	}
}

// the braces keep all months of a shop in one cluster slot
func redisUsageKey(shop, month string) string {
	return usageKeyPrefix + "{" + shop + "}:" + month
}

func (s *RedisUsageStore) Increment(ctx context.Context, shop, month string, field dataType.UsageField) (dataType.UsageCounter, error) {
	key := redisUsageKey(shop, month)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, string(field), 1)
	pipe.Expire(ctx, key, usageTTL)
	all := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return dataType.UsageCounter{}, fmt.Errorf("increment %s: %w", key, err)
	}
	return counterFromHash(shop, month, all.Val()), nil
}

func (s *RedisUsageStore) Snapshot(ctx context.Context, shop, month string) (dataType.UsageCounter, error) {
	key := redisUsageKey(shop, month)
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return dataType.UsageCounter{}, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return counterFromHash(shop, month, fields), nil
}

func (s *RedisUsageStore) ClaimOverage(ctx context.Context, shop, month string, limit int64) (int64, error) {
	res, err := s.claim.Run(ctx, s.client, []string{redisUsageKey(shop, month)}, limit).Int64()
	if err != nil {
		return 0, fmt.Errorf("claim overage: %w", err)
	}
	return res, nil
}

func (s *RedisUsageStore) ReleaseOverage(ctx context.Context, shop, month string, units int64) error {
	if err := s.release.Run(ctx, s.client, []string{redisUsageKey(shop, month)}, units).Err(); err != nil {
		return fmt.Errorf("release overage: %w", err)
	}
	return nil
}

func (s *RedisUsageStore) DeleteShop(ctx context.Context, shop string) error {
	_, err := s.deleteMatching(ctx, usageKeyPrefix+"{"+shop+"}:*", func(string) bool { return true })
	return err
}

// GC deletes counters of months before oldestMonth. Keys also carry a TTL,
// so this only matters for counters that are still being touched.
func (s *RedisUsageStore) GC(ctx context.Context, oldestMonth string) (int, error) {
	return s.deleteMatching(ctx, usageKeyPrefix+"*", func(key string) bool {
		idx := strings.LastIndex(key, ":")
		return idx >= 0 && key[idx+1:] < oldestMonth
	})
}

func (s *RedisUsageStore) deleteMatching(ctx context.Context, pattern string, match func(string) bool) (int, error) {
	removed := 0
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !match(key) {
			continue
		}
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Err()
}

func (s *RedisUsageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisUsageStore) Close() error {
	return s.client.Close()
}

func counterFromHash(shop, month string, fields map[string]string) dataType.UsageCounter {
	num := func(name string) int64 {
		v, _ := strconv.ParseInt(fields[name], 10, 64)
		return v
	}
	return dataType.UsageCounter{
		Shop:            shop,
		Month:           month,
		TotalVisitors:   num(string(dataType.FieldTotalVisitors)),
		Redirected:      num(string(dataType.FieldRedirected)),
		Blocked:         num(string(dataType.FieldBlocked)),
		ChargedVisitors: num(fieldCharged),
	}
}
