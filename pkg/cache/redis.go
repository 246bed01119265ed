package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tutor-schedule-api/pkg/config"
)

// NewRedis returns a configured Redis client, or nil when caching is disabled.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// WorkloadKey builds the cache key for a month's workload summary.
func WorkloadKey(month, classID string) string {
	if classID == "" {
		classID = "all"
	}
	return fmt.Sprintf("workload:%s:%s", month, classID)
}

// WorkloadPattern matches every cached workload entry for a month.
func WorkloadPattern(month string) string {
	return fmt.Sprintf("workload:%s:*", month)
}
