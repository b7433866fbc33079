package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
)

// StockRequest описывает ручное изменение остатка на точке продаж.
// Для AdjustStock знак Quantity задаёт направление корректировки.
type StockRequest struct {
	StoreID   int64
	ProductID int64
	Variant   string
	Quantity  int
	Reason    string
}

// ReceiveStock оприходует поступление товара.
func (s *Service) ReceiveStock(ctx context.Context, actor model.Actor, req StockRequest) (*model.InventoryLog, error) {
	if req.Quantity <= 0 {
		return nil, &repository.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return s.applyStock(ctx, actor, req, model.InventoryIncoming, req.Quantity)
}

// AdjustStock корректирует остаток по итогам инвентаризации. Причина обязательна.
func (s *Service) AdjustStock(ctx context.Context, actor model.Actor, req StockRequest) (*model.InventoryLog, error) {
	if err := requireText("reason", strings.TrimSpace(req.Reason)); err != nil {
		return nil, err
	}

	switch {
	case req.Quantity > 0:
		return s.applyStock(ctx, actor, req, model.InventoryAdjustUp, req.Quantity)
	case req.Quantity < 0:
		return s.applyStock(ctx, actor, req, model.InventoryAdjustDown, -req.Quantity)
	}
	return nil, &repository.ValidationError{Field: "quantity", Reason: "must not be zero"}
}

func (s *Service) applyStock(ctx context.Context, actor model.Actor, req StockRequest, changeType model.InventoryChangeType, quantity int) (*model.InventoryLog, error) {
	variant := strings.TrimSpace(req.Variant)
	if err := requireText("variant", variant); err != nil {
		return nil, err
	}

	var log *model.InventoryLog
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		if _, err := tx.GetStore(ctx, req.StoreID); err != nil {
			return err
		}
		if _, err := tx.GetProduct(ctx, req.ProductID); err != nil {
			return err
		}

		var err error
		log, err = tx.ApplyInventoryChange(ctx, model.InventoryChange{
			StoreID:   req.StoreID,
			ProductID: req.ProductID,
			Variant:   variant,
			Type:      changeType,
			Quantity:  quantity,
			Reason:    strings.TrimSpace(req.Reason),
			CreatedBy: actor.ID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("inventory changed",
		zap.Int64("storeID", req.StoreID),
		zap.Int64("productID", req.ProductID),
		zap.String("variant", variant),
		zap.String("type", string(changeType)),
		zap.Int("balance", log.BalanceAfter),
		zap.Int64("actor", actor.ID),
	)
	return log, nil
}

// ListInventory возвращает остатки точки продаж.
func (s *Service) ListInventory(ctx context.Context, storeID int64) ([]model.InventoryRecord, error) {
	return s.repo.ListInventory(ctx, storeID)
}

// ListInventoryLogs возвращает журнал движений по записи остатка.
func (s *Service) ListInventoryLogs(ctx context.Context, recordID int64) ([]model.InventoryLog, error) {
	return s.repo.ListInventoryLogs(ctx, recordID)
}
