package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
	"github.com/mmeshcher/uniform-points/internal/validation"
)

// MaxItemQuantity ограничивает количество единиц в одной позиции заказа.
const MaxItemQuantity = 100

func validateOrderRequest(req model.OrderRequest) error {
	if !req.Channel.IsValid() {
		return &repository.ValidationError{Field: "channel", Reason: "unknown channel"}
	}
	if !req.ProductType.IsValid() {
		return &repository.ValidationError{Field: "product_type", Reason: "unknown product type"}
	}
	if len(req.Items) == 0 {
		return &repository.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, it := range req.Items {
		if strings.TrimSpace(it.Variant) == "" {
			return &repository.ValidationError{Field: fmt.Sprintf("items[%d].variant", i), Reason: "must not be empty"}
		}
		if it.Quantity < 1 || it.Quantity > MaxItemQuantity {
			return &repository.ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: fmt.Sprintf("must be between 1 and %d", MaxItemQuantity),
			}
		}
	}
	return nil
}

// priceItems формирует позиции заказа по ценам каталога и возвращает итоговую сумму.
func priceItems(ctx context.Context, tx repository.Tx, req model.OrderRequest) ([]model.OrderItem, int64, error) {
	items := make([]model.OrderItem, 0, len(req.Items))
	var total int64

	for i, line := range req.Items {
		product, err := tx.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if !product.Active {
			return nil, 0, &repository.ValidationError{Field: fmt.Sprintf("items[%d].product_id", i), Reason: "product is not active"}
		}
		if product.Type != req.ProductType {
			return nil, 0, &repository.ValidationError{
				Field:  fmt.Sprintf("items[%d].product_id", i),
				Reason: fmt.Sprintf("product type %s does not match order type %s", product.Type, req.ProductType),
			}
		}

		subtotal := int64(line.Quantity) * product.Price
		items = append(items, model.OrderItem{
			ProductID: product.ID,
			Variant:   strings.TrimSpace(line.Variant),
			Quantity:  line.Quantity,
			UnitPrice: product.Price,
			Subtotal:  subtotal,
		})
		total += subtotal
	}
	return items, total, nil
}

// CreateOrder создаёт заказ одной транзакцией: проверка остатка баллов, номер заказа,
// заказ с позициями, талоны на пошив, запись журнала баллов и списание остатков
// для продаж на точке. Любой сбой откатывает все изменения.
func (s *Service) CreateOrder(ctx context.Context, actor model.Actor, req model.OrderRequest) (*model.Order, error) {
	if err := validateOrderRequest(req); err != nil {
		return nil, err
	}

	var (
		order   *model.Order
		tickets int
		changed summaryLog
	)
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		tickets = 0
		changed = summaryLog{}

		person, err := tx.GetPerson(ctx, req.PersonID)
		if err != nil {
			return err
		}
		if !person.Active || !person.IsBeneficiary() {
			return &repository.ValidationError{Field: "person_id", Reason: "not an active beneficiary"}
		}
		if _, err := tx.GetStore(ctx, req.StoreID); err != nil {
			return err
		}

		items, total, err := priceItems(ctx, tx, req)
		if err != nil {
			return err
		}

		summary, err := tx.LockPointSummary(ctx, person.ID)
		if err != nil {
			return err
		}
		if summary.Available() < total {
			return &repository.InsufficientPointsError{PersonID: person.ID, Available: summary.Available(), Requested: total}
		}

		now := s.clock()
		number, err := s.nextNumber(ctx, tx, req.Channel.NumberPrefix(), now)
		if err != nil {
			return err
		}

		status := model.OrderPending
		if req.Channel == model.ChannelOffline {
			status = model.OrderDelivered
		}

		order = &model.Order{
			Number:          number,
			PersonID:        person.ID,
			StoreID:         req.StoreID,
			Channel:         req.Channel,
			ProductType:     req.ProductType,
			Status:          status,
			TotalAmount:     total,
			DeliveryMethod:  req.DeliveryMethod,
			DeliveryAddress: req.DeliveryAddress,
			Items:           items,
			CreatedBy:       actor.ID,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		if req.ProductType == model.ProductCustom {
			tickets, err = s.issueTickets(ctx, tx, order, now)
			if err != nil {
				return err
			}
		}

		kind := model.LedgerReserve
		if req.Channel == model.ChannelOffline {
			kind = model.LedgerUse
		}
		orderID := order.ID
		err = changed.keep(tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
			PersonID:    person.ID,
			Kind:        kind,
			Amount:      total,
			OrderID:     &orderID,
			Description: "order " + order.Number,
			CreatedBy:   actor.ID,
		}))
		if err != nil {
			return err
		}

		if req.Channel == model.ChannelOffline {
			for _, it := range order.Items {
				_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
					StoreID:   order.StoreID,
					ProductID: it.ProductID,
					Variant:   it.Variant,
					Type:      model.InventorySale,
					Quantity:  it.Quantity,
					Reason:    "sale " + order.Number,
					OrderID:   &orderID,
					CreatedBy: actor.ID,
				})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changed)
	s.metrics.RecordOrderCreated(ctx, string(order.Channel), string(order.ProductType))
	if order.Channel == model.ChannelOffline {
		s.metrics.RecordPoints(ctx, string(model.LedgerUse), order.TotalAmount)
	} else {
		s.metrics.RecordPoints(ctx, string(model.LedgerReserve), order.TotalAmount)
	}
	s.metrics.RecordTicketsIssued(ctx, tickets)

	s.logger.Info("order created",
		zap.String("order", order.Number),
		zap.Int64("personID", order.PersonID),
		zap.String("channel", string(order.Channel)),
		zap.Int64("total", order.TotalAmount),
		zap.Int("tickets", tickets),
		zap.Int64("actor", actor.ID),
	)
	return order, nil
}

// ConfirmOrder подтверждает онлайн-заказ: резерв снимается и те же баллы считаются использованными.
func (s *Service) ConfirmOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error) {
	order, changed, err := s.transitionOrder(ctx, actor, orderID, model.OrderConfirmed, func(ctx context.Context, tx repository.Tx, o *model.Order, changed summaryLog) error {
		if err := changed.keep(s.appendOrderEntry(ctx, tx, actor, o, model.LedgerRelease, "confirm "+o.Number)); err != nil {
			return err
		}
		return changed.keep(s.appendOrderEntry(ctx, tx, actor, o, model.LedgerUse, "confirm "+o.Number))
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changed)
	s.metrics.RecordPoints(ctx, string(model.LedgerUse), order.TotalAmount)
	s.logger.Info("order confirmed", zap.String("order", order.Number), zap.Int64("actor", actor.ID))
	return order, nil
}

// CancelOrder отменяет ожидающий онлайн-заказ и освобождает резерв.
func (s *Service) CancelOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error) {
	order, changed, err := s.transitionOrder(ctx, actor, orderID, model.OrderCancelled, func(ctx context.Context, tx repository.Tx, o *model.Order, changed summaryLog) error {
		return changed.keep(s.appendOrderEntry(ctx, tx, actor, o, model.LedgerRelease, "cancel "+o.Number))
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changed)
	s.metrics.RecordPoints(ctx, string(model.LedgerRelease), order.TotalAmount)
	s.logger.Info("order cancelled", zap.String("order", order.Number), zap.Int64("actor", actor.ID))
	return order, nil
}

// AdvanceOrder переводит подтверждённый заказ в доставку или отмечает его доставленным.
func (s *Service) AdvanceOrder(ctx context.Context, actor model.Actor, orderID int64, to model.OrderStatus) (*model.Order, error) {
	if to != model.OrderShipping && to != model.OrderDelivered {
		return nil, &repository.ValidationError{Field: "status", Reason: "only shipping or delivered"}
	}

	order, _, err := s.transitionOrder(ctx, actor, orderID, to, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("order advanced", zap.String("order", order.Number), zap.String("status", string(to)), zap.Int64("actor", actor.ID))
	return order, nil
}

// ProcessReturn оформляет возврат заказа. Использованные баллы возвращаются записью return,
// резерв ожидающего заказа снимается записью release. Для продаж на точке остатки
// восстанавливаются. Выданные талоны на пошив не отзываются.
func (s *Service) ProcessReturn(ctx context.Context, actor model.Actor, orderID int64, reason string) (*model.Order, error) {
	reason = strings.TrimSpace(reason)
	if err := requireText("reason", reason); err != nil {
		return nil, err
	}

	var credit model.LedgerKind
	order, changed, err := s.transitionOrder(ctx, actor, orderID, model.OrderReturned, func(ctx context.Context, tx repository.Tx, o *model.Order, changed summaryLog) error {
		credit = model.LedgerReturn
		if o.Status == model.OrderPending {
			credit = model.LedgerRelease
		}
		if err := changed.keep(s.appendOrderEntry(ctx, tx, actor, o, credit, "return "+o.Number+": "+reason)); err != nil {
			return err
		}

		if o.Channel != model.ChannelOffline {
			return nil
		}
		orderID := o.ID
		for _, it := range o.Items {
			_, err := tx.ApplyInventoryChange(ctx, model.InventoryChange{
				StoreID:   o.StoreID,
				ProductID: it.ProductID,
				Variant:   it.Variant,
				Type:      model.InventoryReturn,
				Quantity:  it.Quantity,
				Reason:    "return " + o.Number,
				OrderID:   &orderID,
				CreatedBy: actor.ID,
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, withReturnReason(reason))
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changed)
	s.metrics.RecordReturn(ctx)
	s.metrics.RecordPoints(ctx, string(credit), order.TotalAmount)
	s.logger.Info("order returned",
		zap.String("order", order.Number),
		zap.String("credit", string(credit)),
		zap.Int64("amount", order.TotalAmount),
		zap.Int64("actor", actor.ID),
	)
	return order, nil
}

type transitionOption func(*transitionParams)

type transitionParams struct {
	returnReason string
}

func withReturnReason(reason string) transitionOption {
	return func(p *transitionParams) { p.returnReason = reason }
}

// transitionOrder блокирует заказ, проверяет допустимость перехода, выполняет
// побочные эффекты effect и сохраняет новый статус в одной транзакции.
func (s *Service) transitionOrder(
	ctx context.Context,
	actor model.Actor,
	orderID int64,
	to model.OrderStatus,
	effect func(ctx context.Context, tx repository.Tx, o *model.Order, changed summaryLog) error,
	opts ...transitionOption,
) (*model.Order, summaryLog, error) {
	var params transitionParams
	for _, opt := range opts {
		opt(&params)
	}

	var (
		order   *model.Order
		changed summaryLog
	)
	err := s.repo.InTx(ctx, func(tx repository.Tx) error {
		changed = summaryLog{}

		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !o.Status.CanTransition(to) {
			return &repository.InvalidStateError{Entity: "order", ID: o.ID, State: string(o.Status), Action: "move to " + string(to)}
		}

		if effect != nil {
			if err := effect(ctx, tx, o, changed); err != nil {
				return err
			}
		}

		at := s.clock()
		if err := tx.UpdateOrderStatus(ctx, o.ID, to, params.returnReason, at); err != nil {
			return err
		}
		o.Status = to
		o.UpdatedAt = at
		if params.returnReason != "" {
			o.ReturnReason = params.returnReason
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return order, changed, nil
}

func (s *Service) appendOrderEntry(ctx context.Context, tx repository.Tx, actor model.Actor, o *model.Order, kind model.LedgerKind, description string) (*model.PointSummary, error) {
	orderID := o.ID
	return tx.AppendLedgerEntry(ctx, &model.LedgerEntry{
		PersonID:    o.PersonID,
		Kind:        kind,
		Amount:      o.TotalAmount,
		OrderID:     &orderID,
		Description: description,
		CreatedBy:   actor.ID,
	})
}

// GetOrder возвращает заказ с позициями.
func (s *Service) GetOrder(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// GetOrderByNumber возвращает заказ по номеру.
func (s *Service) GetOrderByNumber(ctx context.Context, number string) (*model.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if !validation.IsValidOrderNumber(number) {
		return nil, &repository.ValidationError{Field: "number", Reason: "expected {ORD|OFF}-YYYYMMDD-NNNNN"}
	}
	return s.repo.GetOrderByNumber(ctx, number)
}

// ListOrders возвращает заказы получателя.
func (s *Service) ListOrders(ctx context.Context, personID int64) ([]model.Order, error) {
	return s.repo.ListOrdersByPerson(ctx, personID)
}
