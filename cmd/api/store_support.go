package main

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/catalog-auth/internal/config"
	"github.com/yourusername/catalog-auth/internal/users"
)

// setupUserStore は USER_STORE_REDIS_URL があれば Redis、無ければメモリ上のストアを返します。
func setupUserStore(cfg *config.Config, logger *zap.Logger) (users.Store, func() error, error) {
	if cfg.UserStoreRedisURL == "" {
		logger.Warn("USER_STORE_REDIS_URL is empty; users are kept in memory and lost on restart")
		return users.NewMemoryStore(), func() error { return nil }, nil
	}

	opt, err := redis.ParseURL(cfg.UserStoreRedisURL)
	if err != nil {
		return nil, nil, err
	}

	redisClient := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, nil, err
	}

	logger.Info("user store connected", zap.String("redis_addr", opt.Addr), zap.Int("redis_db", opt.DB))
	return users.NewRedisStore(redisClient), redisClient.Close, nil
}
