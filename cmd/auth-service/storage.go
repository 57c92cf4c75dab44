package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pribylovaa/auth-sessions/internal/config"
	"github.com/pribylovaa/auth-sessions/internal/storage"
	"github.com/pribylovaa/auth-sessions/internal/storage/memory"
	"github.com/pribylovaa/auth-sessions/internal/storage/postgres"
	"github.com/pribylovaa/auth-sessions/internal/storage/redis"
)

// openStorage открывает хранилище по конфигу: пользователи в postgres или
// в памяти; refresh-сессии там же либо в Redis.
func openStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	const op = "main.openStorage"

	var base storage.Storage

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		base = memory.New()
		log.Warn("memory_storage_in_use")

	case config.DriverPostgres:
		pg, err := postgres.New(ctx, cfg.DB.DatabaseURL, postgres.WithQueryTimeout(cfg.Storage.QueryTimeout))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("postgres_connected")

		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		log.Info("postgres_migrated")

		base = pg

	default:
		return nil, fmt.Errorf("%s: unknown driver %q", op, cfg.Storage.Driver)
	}

	if cfg.Storage.Sessions != config.SessionsRedis {
		return base, nil
	}

	rs, err := redis.New(ctx, cfg.Redis.RedisURL,
		redis.WithPrefix(cfg.Redis.Prefix),
		redis.WithRetention(cfg.Redis.Retention),
	)
	if err != nil {
		base.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("redis_connected", slog.String("prefix", cfg.Redis.Prefix))

	return storage.Compose(base, rs, base.Close, rs.Close), nil
}

// Purger удаляет просроченные сессии (реализует service.Service).
type Purger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// PurgeObserver учитывает число удалённых сессий.
type PurgeObserver interface {
	SessionsPurged(n int64)
}

// startSessionJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-сессии. period <= 0 отключает очистку.
func startSessionJanitor(ctx context.Context, p Purger, obs PurgeObserver, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		log.Info("session_janitor_disabled")
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n, err := p.PurgeExpiredSessions(ctx)
				if err != nil {
					log.Error("session_janitor_failed", slog.String("err", err.Error()))
					continue
				}
				if n > 0 {
					log.Info("sessions_purged", slog.Int64("count", n))
				}
				obs.SessionsPurged(n)
			}
		}
	}()
}
