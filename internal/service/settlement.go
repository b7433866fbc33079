package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
)

// RequestSettlement объединяет все зарегистрированные талоны ателье в пакет расчёта
// за текущий календарный месяц. Сумма равна числу талонов, умноженному на фиксированную
// ставку, и не зависит от стоимости изделий.
func (s *Service) RequestSettlement(ctx context.Context, actor model.Actor, tailorID int64) (*model.SettlementBatch, error) {
	var batch *model.SettlementBatch
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.LockTailor(ctx, tailorID); err != nil {
			return err
		}

		tickets, err := tx.LockRegisteredTickets(ctx, tailorID)
		if err != nil {
			return err
		}
		if len(tickets) == 0 {
			return fmt.Errorf("tailor %d: %w", tailorID, repository.ErrNoEligibleTickets)
		}

		start, end := monthBounds(s.clock())
		batch = &model.SettlementBatch{
			TailorID:    tailorID,
			PeriodStart: start,
			PeriodEnd:   end,
			TotalAmount: int64(len(tickets)) * s.ticketRate,
			TicketCount: len(tickets),
			Status:      model.SettlementPending,
			CreatedBy:   actor.ID,
		}
		if err := tx.InsertSettlementBatch(ctx, batch); err != nil {
			return err
		}

		ids := make([]int64, 0, len(tickets))
		for _, tk := range tickets {
			ids = append(ids, tk.ID)
		}
		return tx.MoveTicketsToBatch(ctx, ids, batch.ID)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordSettlementBatch(ctx)
	s.logger.Info("settlement requested",
		zap.Int64("batchID", batch.ID),
		zap.Int64("tailorID", tailorID),
		zap.Int("tickets", batch.TicketCount),
		zap.Int64("total", batch.TotalAmount),
		zap.Int64("actor", actor.ID),
	)
	return batch, nil
}

// ConfirmSettlement подтверждает пакет расчёта и переводит его талоны в settled.
func (s *Service) ConfirmSettlement(ctx context.Context, actor model.Actor, batchID int64) (*model.SettlementBatch, error) {
	var batch *model.SettlementBatch
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		b, err := tx.LockSettlementBatch(ctx, batchID)
		if err != nil {
			return err
		}
		if b.Status != model.SettlementPending {
			return &repository.InvalidStateError{Entity: "settlement batch", ID: b.ID, State: string(b.Status), Action: "confirm"}
		}

		at := s.clock()
		if err := tx.ConfirmSettlementBatch(ctx, b.ID, at); err != nil {
			return err
		}
		settled, err := tx.SettleBatchTickets(ctx, b.ID)
		if err != nil {
			return err
		}
		if settled != b.TicketCount {
			return fmt.Errorf("settlement batch %d: settled %d tickets, expected %d", b.ID, settled, b.TicketCount)
		}

		b.Status = model.SettlementConfirmed
		b.ConfirmedAt = &at
		batch = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("settlement confirmed", zap.Int64("batchID", batch.ID), zap.Int64("actor", actor.ID))
	return batch, nil
}

// ListSettlements возвращает пакеты расчётов ателье.
func (s *Service) ListSettlements(ctx context.Context, tailorID int64) ([]model.SettlementBatch, error) {
	return s.repo.ListSettlementBatches(ctx, tailorID)
}

// monthBounds возвращает первый и последний день календарного месяца, содержащего t.
func monthBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 1, -1)
}
