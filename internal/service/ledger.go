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
)

const grantLockTTL = 10 * time.Minute

// Entitlement содержит результат расчёта годовой нормы без начисления.
type Entitlement struct {
	PersonID   int64 `json:"person_id"`
	FiscalYear int   `json:"fiscal_year"`
	Points     int64 `json:"points"`
	KnownRank  bool  `json:"known_rank"`
}

// GetPointSummary возвращает сводку баллов получателя, используя кэш для чтения.
// Прочитанная из хранилища сводка не вытесняет из кэша более свежую, записанную
// после фиксации изменения.
func (s *Service) GetPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error) {
	cached, ok, err := s.cache.Get(ctx, personID)
	if err != nil {
		s.logger.Warn("summary cache read failed", zap.Int64("personID", personID), zap.Error(err))
	}
	if ok {
		return cached, nil
	}

	summary, err := s.repo.GetPointSummary(ctx, personID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, summary, summaryCacheTTL); err != nil {
		s.logger.Warn("summary cache write failed", zap.Int64("personID", personID), zap.Error(err))
	}
	return summary, nil
}

// ListLedgerEntries возвращает журнал движений баллов получателя.
func (s *Service) ListLedgerEntries(ctx context.Context, personID int64) ([]model.LedgerEntry, error) {
	return s.repo.ListLedgerEntries(ctx, personID)
}

// CalculatePoints рассчитывает годовую норму человека без изменения журнала.
func (s *Service) CalculatePoints(ctx context.Context, personID int64, fiscalYear int) (*Entitlement, error) {
	p, err := s.repo.GetPerson(ctx, personID)
	if err != nil {
		return nil, err
	}

	amount, err := points.Calculate(*p, fiscalYear)
	if err != nil {
		return nil, malformedDates(p.ID, err)
	}

	return &Entitlement{
		PersonID:   p.ID,
		FiscalYear: fiscalYear,
		Points:     amount,
		KnownRank:  points.IsKnownRank(p.Rank),
	}, nil
}

// GrantAnnual начисляет годовую норму всем активным получателям, у которых ещё нет
// начисления за fiscalYear. Выполняется одной транзакцией: сбой откатывает весь пакет.
// Повторный запуск за тот же год ничего не меняет.
func (s *Service) GrantAnnual(ctx context.Context, actor model.Actor, fiscalYear int) (*model.GrantReport, error) {
	if fiscalYear <= 0 {
		return nil, &repository.ValidationError{Field: "fiscal_year", Reason: "must be positive"}
	}

	lock, err := s.locker.Obtain(ctx, fmt.Sprintf("grant:%d", fiscalYear), grantLockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrNotObtained) {
			return nil, fmt.Errorf("grant %d: %w", fiscalYear, repository.ErrBatchInProgress)
		}
		return nil, fmt.Errorf("%w: %w", repository.ErrTransactionFailure, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release grant lock", zap.Int("fiscalYear", fiscalYear), zap.Error(err))
		}
	}()

	var (
		report  model.GrantReport
		changed summaryLog
	)
	err = s.repo.InTx(ctx, func(tx repository.Tx) error {
		report = model.GrantReport{FiscalYear: fiscalYear}
		changed = summaryLog{}

		persons, err := tx.ListActiveBeneficiaries(ctx)
		if err != nil {
			return err
		}

		for _, p := range persons {
			if p.RetirementDate != nil && p.RetirementDate.Year() < fiscalYear {
				report.Skipped++
				continue
			}

			granted, err := tx.HasAnnualGrant(ctx, p.ID, fiscalYear)
			if err != nil {
				return err
			}
			if granted {
				report.Skipped++
				continue
			}

			if !points.IsKnownRank(p.Rank) {
				report.UnknownRank = append(report.UnknownRank, p.ID)
			}

			amount, err := points.Calculate(p, fiscalYear)
			if err != nil {
				return malformedDates(p.ID, err)
			}
			if amount == 0 {
				report.ZeroAmount++
				continue
			}

			year := fiscalYear
			err = changed.keep(tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
				PersonID:    p.ID,
				Kind:        model.LedgerGrant,
				Amount:      amount,
				FiscalYear:  &year,
				Description: fmt.Sprintf("annual grant %d", fiscalYear),
				CreatedBy:   actor.ID,
			}))
			if err != nil {
				return err
			}

			report.Granted++
			report.TotalPoints += amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changed)
	s.metrics.RecordPoints(ctx, string(model.LedgerGrant), report.TotalPoints)

	for _, id := range report.UnknownRank {
		s.logger.Warn("unknown rank, base amount is zero", zap.Int64("personID", id), zap.Int("fiscalYear", fiscalYear))
	}
	s.logger.Info("annual grant completed",
		zap.Int("fiscalYear", fiscalYear),
		zap.Int("granted", report.Granted),
		zap.Int("skipped", report.Skipped),
		zap.Int("zeroAmount", report.ZeroAmount),
		zap.Int64("totalPoints", report.TotalPoints),
		zap.Int64("actor", actor.ID),
	)

	return &report, nil
}
