package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
	"github.com/mmeshcher/uniform-points/internal/validation"
)

// issueTickets выдаёт по одному талону на каждую единицу каждой позиции заказа на пошив.
func (s *Service) issueTickets(ctx context.Context, tx repository.Tx, o *model.Order, at time.Time) (int, error) {
	issued := 0
	for _, it := range o.Items {
		for range it.Quantity {
			number, err := s.nextNumber(ctx, tx, repository.ScopeTicket, at)
			if err != nil {
				return 0, err
			}
			err = tx.InsertTicket(ctx, &model.Ticket{
				Number:      number,
				PersonID:    o.PersonID,
				OrderID:     o.ID,
				OrderItemID: it.ID,
				Status:      model.TicketIssued,
			})
			if err != nil {
				return 0, err
			}
			issued++
		}
	}
	return issued, nil
}

// LookupTicket ищет талон по номеру, который вводит сотрудник ателье.
func (s *Service) LookupTicket(ctx context.Context, number string) (*model.Ticket, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !validation.IsValidTicketNumber(number) {
		return nil, &repository.ValidationError{Field: "number", Reason: "expected TKT-YYYYMMDD-NNNNN"}
	}
	return s.repo.GetTicketByNumber(ctx, number)
}

// RegisterTicket закрепляет выданный талон за ателье. Допустимо только для талона в статусе issued.
func (s *Service) RegisterTicket(ctx context.Context, actor model.Actor, ticketID, tailorID int64) (*model.Ticket, error) {
	var ticket *model.Ticket
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		tailor, err := tx.LockTailor(ctx, tailorID)
		if err != nil {
			return err
		}
		if !tailor.Active {
			return &repository.ValidationError{Field: "tailor_id", Reason: "tailor is not active"}
		}

		tk, err := tx.LockTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if tk.Status != model.TicketIssued {
			return &repository.InvalidStateError{Entity: "ticket", ID: tk.ID, State: string(tk.Status), Action: "register"}
		}

		at := s.clock()
		if err := tx.RegisterTicket(ctx, tk.ID, tailor.ID, at); err != nil {
			return err
		}
		tk.Status = model.TicketRegistered
		tk.TailorID = &tailor.ID
		tk.RegisteredAt = &at
		ticket = tk
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket registered",
		zap.String("ticket", ticket.Number),
		zap.Int64("tailorID", tailorID),
		zap.Int64("actor", actor.ID),
	)
	return ticket, nil
}

// ListTickets возвращает талоны получателя.
func (s *Service) ListTickets(ctx context.Context, personID int64) ([]model.Ticket, error) {
	return s.repo.ListTicketsByPerson(ctx, personID)
}

// ListTailorTickets возвращает талоны ателье, при необходимости отфильтрованные по статусу.
func (s *Service) ListTailorTickets(ctx context.Context, tailorID int64, status model.TicketStatus) ([]model.Ticket, error) {
	return s.repo.ListTicketsByTailor(ctx, tailorID, status)
}
