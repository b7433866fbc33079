package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/service"
)

// ReceiveStock оприходует поступление товара на точку продаж.
func (h *Handler) ReceiveStock(w http.ResponseWriter, r *http.Request) {
	h.stockAction(w, r, h.service.ReceiveStock)
}

// AdjustStock корректирует остаток; знак quantity задаёт направление.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	h.stockAction(w, r, h.service.AdjustStock)
}

func (h *Handler) stockAction(
	w http.ResponseWriter,
	r *http.Request,
	apply func(ctx context.Context, actor model.Actor, req service.StockRequest) (*model.InventoryLog, error),
) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	storeID, ok := h.idParam(w, r, "storeID")
	if !ok {
		return
	}
	if actor.Role == model.RoleStoreOperator && !h.operatesStore(w, r, actor, storeID) {
		return
	}

	var req stockRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := apply(r.Context(), actor, service.StockRequest{
		StoreID:   storeID,
		ProductID: req.ProductID,
		Variant:   req.Variant,
		Quantity:  req.Quantity,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newInventoryLogResponse(entry))
}

// operatesStore проверяет, что оператор точки работает именно с ней.
func (h *Handler) operatesStore(w http.ResponseWriter, r *http.Request, actor model.Actor, storeID int64) bool {
	person, err := h.service.GetPerson(r.Context(), actor.ID)
	if err != nil {
		h.handleError(w, r, err)
		return false
	}
	if person.StoreID == nil || *person.StoreID != storeID {
		h.writeError(w, http.StatusForbidden, "forbidden", "Недостаточно прав")
		return false
	}
	return true
}

// ListInventory возвращает остатки точки продаж.
func (h *Handler) ListInventory(w http.ResponseWriter, r *http.Request) {
	storeID, ok := h.idParam(w, r, "storeID")
	if !ok {
		return
	}

	records, err := h.service.ListInventory(r.Context(), storeID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]inventoryRecordResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, inventoryRecordResponse{
			ID:        rec.ID,
			StoreID:   rec.StoreID,
			ProductID: rec.ProductID,
			Variant:   rec.Variant,
			Quantity:  rec.Quantity,
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListInventoryLogs возвращает журнал движения по записи остатка.
func (h *Handler) ListInventoryLogs(w http.ResponseWriter, r *http.Request) {
	recordID, ok := h.idParam(w, r, "recordID")
	if !ok {
		return
	}

	logs, err := h.service.ListInventoryLogs(r.Context(), recordID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]inventoryLogResponse, 0, len(logs))
	for i := range logs {
		resp = append(resp, newInventoryLogResponse(&logs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}
