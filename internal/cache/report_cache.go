package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"matrix-sync/internal/models"

	"github.com/redis/go-redis/v9"
)

const generationsKeyPrefix = "matrix:generations:"

// ReportCache keeps generation reports in redis for a short time. Joins and activations
// do not touch it: a cached report can lag the tree until a reconciliation sweep drops
// every entry or the TTL expires, whichever comes first.
type ReportCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewReportCache returns a cache over rdb, or nil when rdb is nil or ttl is not positive
func NewReportCache(rdb *redis.Client, ttl time.Duration) *ReportCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &ReportCache{rdb: rdb, ttl: ttl}
}

func generationsKey(userID uint) string {
	return fmt.Sprintf("%s%d", generationsKeyPrefix, userID)
}

// GetGenerations returns a cached report, false on miss or any redis error
func (c *ReportCache) GetGenerations(ctx context.Context, userID uint) ([]models.GenerationLevel, bool) {
	data, err := c.rdb.Get(ctx, generationsKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[Cache] Failed to read generations for user %d: %v", userID, err)
		}
		return nil, false
	}

	var levels []models.GenerationLevel
	if err := json.Unmarshal(data, &levels); err != nil {
		log.Printf("[Cache] Dropping malformed generations entry for user %d: %v", userID, err)
		return nil, false
	}
	return levels, true
}

// SetGenerations stores a report; failures are logged only
func (c *ReportCache) SetGenerations(ctx context.Context, userID uint, levels []models.GenerationLevel) {
	data, err := json.Marshal(levels)
	if err != nil {
		log.Printf("[Cache] Failed to encode generations for user %d: %v", userID, err)
		return
	}
	if err := c.rdb.Set(ctx, generationsKey(userID), data, c.ttl).Err(); err != nil {
		log.Printf("[Cache] Failed to store generations for user %d: %v", userID, err)
	}
}

// InvalidateAll drops every cached report, used after a reconciliation sweep
func (c *ReportCache) InvalidateAll(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, generationsKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}
