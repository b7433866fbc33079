// Package cache содержит кэш сводок баллов и распределённую блокировку пакетных заданий.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// ErrNotObtained возвращается, если блокировка уже удерживается другим процессом.
var ErrNotObtained = errors.New("lock not obtained")

// SummaryCache кэширует сводки баллов для чтения.
// Источником истины остаётся журнал в хранилище; кэш только ускоряет запросы.
// Set не заменяет сводку, если в кэше уже лежит сводка с тем же или более
// поздним UpdatedAt.
type SummaryCache interface {
	Get(ctx context.Context, personID int64) (*model.PointSummary, bool, error)
	Set(ctx context.Context, summary *model.PointSummary, ttl time.Duration) error
	Invalidate(ctx context.Context, personIDs ...int64) error
}

// Locker выдаёт именованные блокировки с ограниченным временем жизни.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock описывает удерживаемую блокировку.
type Lock interface {
	Release(ctx context.Context) error
}

// Supersedes сообщает, новее ли next сводки cached.
func Supersedes(next, cached *model.PointSummary) bool {
	return cached == nil || next.UpdatedAt.After(cached.UpdatedAt)
}

// NoopSummaryCache отключает кэширование сводок.
type NoopSummaryCache struct{}

// Get всегда сообщает о промахе.
func (NoopSummaryCache) Get(_ context.Context, _ int64) (*model.PointSummary, bool, error) {
	return nil, false, nil
}

// Set ничего не сохраняет.
func (NoopSummaryCache) Set(_ context.Context, _ *model.PointSummary, _ time.Duration) error {
	return nil
}

// Invalidate ничего не делает.
func (NoopSummaryCache) Invalidate(_ context.Context, _ ...int64) error {
	return nil
}

// LocalLocker блокирует в пределах одного процесса и используется без Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLocker создаёт пустой LocalLocker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]time.Time{}, now: time.Now}
}

// Obtain захватывает ключ на ttl или возвращает ErrNotObtained, если он занят.
func (l *LocalLocker) Obtain(_ context.Context, key string, ttl time.Duration) (Lock, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, ErrNotObtained
	}
	expires := now.Add(ttl)
	l.held[key] = expires
	return &localLock{parent: l, key: key, expires: expires}, nil
}

type localLock struct {
	parent  *LocalLocker
	key     string
	expires time.Time
}

func (l *localLock) Release(_ context.Context) error {
	l.parent.mu.Lock()
	defer l.parent.mu.Unlock()

	if l.parent.held[l.key] == l.expires {
		delete(l.parent.held, l.key)
	}
	return nil
}
