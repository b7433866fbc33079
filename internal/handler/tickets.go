package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// LookupTicket возвращает талон по номеру.
func (h *Handler) LookupTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.service.LookupTicket(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTicketResponse(ticket))
}

// RegisterTicket регистрирует выданный талон в ателье.
func (h *Handler) RegisterTicket(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	ticketID, ok := h.idParam(w, r, "ticketID")
	if !ok {
		return
	}

	var req registerTicketRequest
	if !h.decode(w, r, &req) {
		return
	}

	ticket, err := h.service.RegisterTicket(r.Context(), actor, ticketID, req.TailorID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newTicketResponse(ticket))
}

// ListPersonTickets возвращает талоны получателя.
func (h *Handler) ListPersonTickets(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	tickets, err := h.service.ListTickets(r.Context(), personID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeTickets(w, tickets)
}

// ListTailorTickets возвращает талоны ателье, опционально отфильтрованные по ?status=.
func (h *Handler) ListTailorTickets(w http.ResponseWriter, r *http.Request) {
	tailorID, ok := h.idParam(w, r, "tailorID")
	if !ok {
		return
	}

	status := model.TicketStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректный статус талона")
		return
	}

	tickets, err := h.service.ListTailorTickets(r.Context(), tailorID, status)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeTickets(w, tickets)
}

func (h *Handler) writeTickets(w http.ResponseWriter, tickets []model.Ticket) {
	resp := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, newTicketResponse(&tickets[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// RequestSettlement формирует пакет расчётов с ателье за текущий месяц.
func (h *Handler) RequestSettlement(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tailorID, ok := h.idParam(w, r, "tailorID")
	if !ok {
		return
	}

	batch, err := h.service.RequestSettlement(r.Context(), actor, tailorID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newSettlementResponse(batch))
}

// ListSettlements возвращает пакеты расчётов ателье.
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	tailorID, ok := h.idParam(w, r, "tailorID")
	if !ok {
		return
	}

	batches, err := h.service.ListSettlements(r.Context(), tailorID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]settlementResponse, 0, len(batches))
	for i := range batches {
		resp = append(resp, newSettlementResponse(&batches[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ConfirmSettlement подтверждает пакет расчётов; талоны пакета становятся рассчитанными.
func (h *Handler) ConfirmSettlement(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	batchID, ok := h.idParam(w, r, "batchID")
	if !ok {
		return
	}

	batch, err := h.service.ConfirmSettlement(r.Context(), actor, batchID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSettlementResponse(batch))
}
