package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// CreateOrder оформляет заказ за баллы. Получатель может заказать только на себя.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	if actor.Role == model.RoleBeneficiary && (req.PersonID != actor.ID || req.Channel != string(model.ChannelOnline)) {
		h.writeError(w, http.StatusForbidden, "forbidden", "Недостаточно прав")
		return
	}

	order, err := h.service.CreateOrder(r.Context(), actor, req.toModel())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newOrderResponse(order))
}

// GetOrder возвращает заказ по идентификатору.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.idParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeOwnOrder(w, r, order)
}

// GetOrderByNumber возвращает заказ по номеру.
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeOwnOrder(w, r, order)
}

func (h *Handler) writeOwnOrder(w http.ResponseWriter, r *http.Request, order *model.Order) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if actor.Role == model.RoleBeneficiary && order.PersonID != actor.ID {
		h.writeError(w, http.StatusNotFound, "not_found", "Объект не найден")
		return
	}
	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}

// ListOrders возвращает заказы получателя.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), personID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ConfirmOrder подтверждает ожидающий заказ и списывает зарезервированные баллы.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(actor model.Actor, orderID int64) (*model.Order, error) {
		return h.service.ConfirmOrder(r.Context(), actor, orderID)
	})
}

// CancelOrder отменяет ожидающий заказ и снимает резерв.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.orderAction(w, r, func(actor model.Actor, orderID int64) (*model.Order, error) {
		return h.service.CancelOrder(r.Context(), actor, orderID)
	})
}

// AdvanceOrder переводит заказ в доставку или отмечает доставленным.
func (h *Handler) AdvanceOrder(w http.ResponseWriter, r *http.Request) {
	var req advanceOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.orderAction(w, r, func(actor model.Actor, orderID int64) (*model.Order, error) {
		return h.service.AdvanceOrder(r.Context(), actor, orderID, model.OrderStatus(req.Status))
	})
}

// ReturnOrder оформляет возврат заказа с обязательной причиной.
func (h *Handler) ReturnOrder(w http.ResponseWriter, r *http.Request) {
	var req returnOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	h.orderAction(w, r, func(actor model.Actor, orderID int64) (*model.Order, error) {
		return h.service.ProcessReturn(r.Context(), actor, orderID, req.Reason)
	})
}

func (h *Handler) orderAction(w http.ResponseWriter, r *http.Request, action func(model.Actor, int64) (*model.Order, error)) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	orderID, ok := h.idParam(w, r, "orderID")
	if !ok {
		return
	}

	order, err := action(actor, orderID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newOrderResponse(order))
}
