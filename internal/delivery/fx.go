package delivery

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/invora/internal/clock"
	"github.com/smallbiznis/invora/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("delivery",
	fx.Provide(NewRedisClient),
	fx.Provide(NewQueueFromConfig),
	fx.Provide(NewConfigFromApp),
	fx.Provide(NewWorker),
	fx.Invoke(registerWorker),
)

// NewRedisClient returns nil when no redis address is configured;
// consumers fall back to in-process equivalents.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func NewConfigFromApp(cfg config.Config) Config {
	return Config{
		Concurrency:  cfg.Delivery.Concurrency,
		MaxAttempts:  cfg.Delivery.MaxAttempts,
		BackoffBase:  cfg.Delivery.BackoffBase,
		PollInterval: cfg.Delivery.PollInterval,
	}.withDefaults()
}

// NewQueueFromConfig picks the queue backend: redis when a client is
// configured, otherwise the in-process queue.
func NewQueueFromConfig(client *redis.Client, c clock.Clock, log *zap.Logger) Queue {
	if client == nil {
		log.Named("delivery").Info("redis not configured, using in-memory delivery queue")
		return NewMemoryQueue(c)
	}
	return NewRedisQueue(client, c)
}

func registerWorker(lc fx.Lifecycle, w *Worker) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				w.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
