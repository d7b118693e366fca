package database

import (
	"context"
	"fmt"
	"log"

	"matrix-sync/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client for the configured redis, or nil when none is configured
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		log.Println("Redis not configured, cache and rate limiting disabled")
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Connected to Redis")
	return rdb, nil
}
