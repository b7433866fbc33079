// Package app собирает зависимости движка из конфигурации.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/cache"
	"github.com/mmeshcher/uniform-points/internal/config"
	"github.com/mmeshcher/uniform-points/internal/repository"
	"github.com/mmeshcher/uniform-points/internal/service"
	"github.com/mmeshcher/uniform-points/internal/telemetry"
)

// App содержит собранный сервис и ресурсы, которые нужно закрыть при остановке.
type App struct {
	Service *service.Service

	closers []func(context.Context) error
}

// New создаёт хранилище, кэш, блокировку и метрики по конфигурации.
// Без DATABASE_URI используется хранилище в памяти, без REDIS_ADDRESS кэш
// отключён, а блокировка пакетного начисления действует в пределах процесса.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, fmt.Errorf("database initialization: %w", err)
		}
		repo = pg
	} else {
		logger.Warn("DATABASE_URI is empty, using in-memory store")
		repo = repository.NewMemoryRepository()
	}

	opts := []service.Option{
		service.WithTicketRate(cfg.TicketRate),
		service.WithLocation(loc),
	}

	if cfg.RedisAddress != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddress)
		if err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("redis initialization: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		opts = append(opts,
			service.WithCache(cache.NewRedisSummaryCache(client)),
			service.WithLocker(cache.NewRedisLocker(client)),
		)
	}

	provider, err := telemetry.NewMeterProvider(ctx, cfg.OTLPEndpoint, logger)
	if err != nil {
		_ = a.Close(ctx)
		_ = repo.Close()
		return nil, fmt.Errorf("telemetry initialization: %w", err)
	}
	a.closers = append(a.closers, provider.Shutdown)

	metrics, err := telemetry.NewMetrics(provider.Meter())
	if err != nil {
		_ = a.Close(ctx)
		_ = repo.Close()
		return nil, fmt.Errorf("metrics initialization: %w", err)
	}
	opts = append(opts, service.WithMetrics(metrics))

	a.Service = service.NewService(repo, logger, opts...)
	return a, nil
}

// Close закрывает сервис и вспомогательные ресурсы в обратном порядке.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Service != nil {
		errs = append(errs, a.Service.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	return errors.Join(errs...)
}
