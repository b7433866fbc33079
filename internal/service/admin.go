package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
)

// CreatePerson регистрирует человека. Для получателя баллов одновременно создаётся
// пустая сводка баллов.
func (s *Service) CreatePerson(ctx context.Context, actor model.Actor, p model.Person) (*model.Person, error) {
	p.ServiceNumber = strings.TrimSpace(p.ServiceNumber)
	p.Name = strings.TrimSpace(p.Name)

	if err := requireText("service_number", p.ServiceNumber); err != nil {
		return nil, err
	}
	if err := requireText("name", p.Name); err != nil {
		return nil, err
	}
	if !p.Role.IsValid() {
		return nil, &repository.ValidationError{Field: "role", Reason: "unknown role"}
	}
	if p.EnlistmentDate.IsZero() {
		return nil, &repository.ValidationError{Field: "enlistment_date", Reason: "must be set"}
	}
	if p.RetirementDate != nil && p.RetirementDate.Before(p.EnlistmentDate) {
		return nil, &repository.ValidationError{Field: "retirement_date", Reason: "before enlistment"}
	}
	if p.Role == model.RoleStoreOperator && p.StoreID == nil {
		return nil, &repository.ValidationError{Field: "store_id", Reason: "required for store operator"}
	}
	if p.Role == model.RoleTailorOperator && p.TailorID == nil {
		return nil, &repository.ValidationError{Field: "tailor_id", Reason: "required for tailor operator"}
	}

	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.InsertPerson(ctx, &p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("person created", zap.Int64("personID", p.ID), zap.String("role", string(p.Role)), zap.Int64("actor", actor.ID))
	return &p, nil
}

// GetPerson возвращает человека по идентификатору.
func (s *Service) GetPerson(ctx context.Context, personID int64) (*model.Person, error) {
	return s.repo.GetPerson(ctx, personID)
}

// DeactivatePerson мягко деактивирует человека; журнал и заказы сохраняются.
func (s *Service) DeactivatePerson(ctx context.Context, actor model.Actor, personID int64) error {
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		return tx.DeactivatePerson(ctx, personID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("person deactivated", zap.Int64("personID", personID), zap.Int64("actor", actor.ID))
	return nil
}

// CreateProduct добавляет позицию каталога.
func (s *Service) CreateProduct(ctx context.Context, actor model.Actor, p model.Product) (*model.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := requireText("name", p.Name); err != nil {
		return nil, err
	}
	if !p.Type.IsValid() {
		return nil, &repository.ValidationError{Field: "type", Reason: "unknown product type"}
	}
	if p.Price <= 0 {
		return nil, &repository.ValidationError{Field: "price", Reason: "must be positive"}
	}

	if err := s.repo.InTx(ctx, func(tx repository.Tx) error { return tx.InsertProduct(ctx, &p) }); err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.Int64("productID", p.ID), zap.Int64("actor", actor.ID))
	return &p, nil
}

// CreateStore добавляет точку продаж.
func (s *Service) CreateStore(ctx context.Context, actor model.Actor, name string) (*model.Store, error) {
	st := model.Store{Name: strings.TrimSpace(name)}
	if err := requireText("name", st.Name); err != nil {
		return nil, err
	}

	if err := s.repo.InTx(ctx, func(tx repository.Tx) error { return tx.InsertStore(ctx, &st) }); err != nil {
		return nil, err
	}

	s.logger.Info("store created", zap.Int64("storeID", st.ID), zap.Int64("actor", actor.ID))
	return &st, nil
}

// CreateTailor добавляет ателье-партнёра.
func (s *Service) CreateTailor(ctx context.Context, actor model.Actor, name string) (*model.Tailor, error) {
	tl := model.Tailor{Name: strings.TrimSpace(name)}
	if err := requireText("name", tl.Name); err != nil {
		return nil, err
	}

	if err := s.repo.InTx(ctx, func(tx repository.Tx) error { return tx.InsertTailor(ctx, &tl) }); err != nil {
		return nil, err
	}

	s.logger.Info("tailor created", zap.Int64("tailorID", tl.ID), zap.Int64("actor", actor.ID))
	return &tl, nil
}
