package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/registercohort/pkg/common/config"
	"github.com/synaptica-ai/registercohort/pkg/common/logger"
)

var (
	redisClient *redis.Client
	redisErr    error
	redisOnce   sync.Once
)

// GetRedis connects to the cache Redis once per process. Unlike a pure
// cache, stage artifacts are required for a run, so a failed ping is an error.
func GetRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	redisOnce.Do(func() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			redisErr = fmt.Errorf("connect to redis: %w", err)
			logger.Log.WithError(err).Error("Failed to connect to Redis")
			return
		}
		logger.Log.Info("Connected to Redis")
	})
	return redisClient, redisErr
}

func CloseRedis() error {
	if redisClient != nil {
		return redisClient.Close()
	}
	return nil
}
