package main

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/walletauth/adapters/ratelimit"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/internal/config"
	"github.com/layer-3/walletauth/ports"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type stores struct {
	Challenges ports.ChallengeStore
	Sessions   ports.SessionStore
	Limiter    ports.RateLimiter

	// Redis is nil with the memory driver
	Redis redis.UniversalClient

	ping func(context.Context) error
}

func (s *stores) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *stores) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

func initStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.Store.Driver {
	case config.StoreRedis:
		return initRedisStores(ctx, cfg, logger)
	default:
		return initMemoryStores(ctx, cfg, logger), nil
	}
}

func initRedisStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:       cfg.Redis.Addrs,
		Username:    cfg.Redis.Username,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("redis connected", zap.Strings("addrs", cfg.Redis.Addrs))

	st := store.NewRedisStore(client, store.WithPrefix(cfg.Redis.Prefix))
	return &stores{
		Challenges: st,
		Sessions:   st,
		Limiter:    ratelimit.NewRedisLimiter(client, cfg.Redis.Prefix, cfg.AsBuckets()),
		Redis:      client,
		ping:       st.Ping,
	}, nil
}

func initMemoryStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) *stores {
	logger.Warn("using in-memory stores, state is lost on restart and not shared between instances")

	st := store.NewMemoryStore()
	go st.Run(ctx, cfg.Store.PruneInterval)

	limiter := ratelimit.NewMemoryLimiter(cfg.AsBuckets())
	go sweepLimiter(ctx, limiter, cfg.Store.PruneInterval, cfg.AsRouterConfig().RetryAfter)

	return &stores{
		Challenges: st,
		Sessions:   st,
		Limiter:    limiter,
		ping:       st.Ping,
	}
}

// sweepLimiter forgets keys whose buckets have fully refilled
func sweepLimiter(ctx context.Context, limiter *ratelimit.MemoryLimiter, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(idle)
		}
	}
}
