// Package service реализует движок баллов: начисления, заказы, талоны на пошив,
// расчёты с ателье и движение остатков.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/cache"
	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/points"
	"github.com/mmeshcher/uniform-points/internal/repository"
	"github.com/mmeshcher/uniform-points/internal/telemetry"
	"github.com/mmeshcher/uniform-points/internal/validation"
)

// DefaultTicketRate задаёт фиксированную ставку расчёта за один талон.
const DefaultTicketRate int64 = 30000

const summaryCacheTTL = 5 * time.Minute

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	repository.Reader
	InTx(ctx context.Context, fn func(repository.Tx) error) error
	Close() error
}

// Service содержит бизнес-логику движка баллов.
type Service struct {
	repo       Repository
	logger     *zap.Logger
	cache      cache.SummaryCache
	locker     cache.Locker
	metrics    *telemetry.Metrics
	ticketRate int64
	loc        *time.Location
	now        func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithCache подключает кэш сводок баллов.
func WithCache(c cache.SummaryCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLocker подключает распределённую блокировку пакетного начисления.
func WithLocker(l cache.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithMetrics подключает счётчики бизнес-событий.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTicketRate задаёт ставку расчёта за талон.
func WithTicketRate(rate int64) Option {
	return func(s *Service) {
		if rate > 0 {
			s.ticketRate = rate
		}
	}
}

// WithLocation задаёт канонический часовой пояс для дат номеров и периодов расчёта.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:       repo,
		logger:     logger,
		cache:      cache.NoopSummaryCache{},
		locker:     cache.NewLocalLocker(),
		ticketRate: DefaultTicketRate,
		loc:        time.UTC,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// clock возвращает текущее время в каноническом часовом поясе.
func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

// nextNumber выделяет номер документа из дневного счётчика хранилища.
func (s *Service) nextNumber(ctx context.Context, tx repository.Tx, prefix string, at time.Time) (string, error) {
	seq, err := tx.NextSequence(ctx, prefix, at)
	if err != nil {
		return "", err
	}
	return validation.FormatNumber(prefix, at, seq), nil
}

// summaryLog запоминает последнюю сводку каждого получателя, изменённую в транзакции.
type summaryLog map[int64]*model.PointSummary

// keep принимает результат AppendLedgerEntry и запоминает сводку, если ошибки нет.
func (l summaryLog) keep(summary *model.PointSummary, err error) error {
	if err == nil && summary != nil {
		l[summary.PersonID] = summary
	}
	return err
}

// publish записывает в кэш сводки, зафиксированные транзакцией. Если запись
// не удалась, ключ сбрасывается.
func (s *Service) publish(ctx context.Context, changed summaryLog) {
	for personID, summary := range changed {
		if err := s.cache.Set(ctx, summary, summaryCacheTTL); err != nil {
			s.logger.Warn("summary cache write failed", zap.Int64("personID", personID), zap.Error(err))
			s.invalidate(ctx, personID)
		}
	}
}

// invalidate сбрасывает закэшированные сводки.
func (s *Service) invalidate(ctx context.Context, personIDs ...int64) {
	if err := s.cache.Invalidate(ctx, personIDs...); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Int64s("personIDs", personIDs), zap.Error(err))
	}
}

func malformedDates(personID int64, err error) error {
	if errors.Is(err, points.ErrMalformedDates) {
		return &repository.ValidationError{Field: fmt.Sprintf("person %d dates", personID), Reason: err.Error()}
	}
	return err
}

func requireText(field, value string) error {
	if value == "" {
		return &repository.ValidationError{Field: field, Reason: "must not be empty"}
	}
	return nil
}
