package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// GetPointSummary возвращает сводку баллов получателя.
func (h *Handler) GetPointSummary(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetPointSummary(r.Context(), personID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newSummaryResponse(summary))
}

// GetLedger возвращает журнал движения баллов получателя.
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	entries, err := h.service.ListLedgerEntries(r.Context(), personID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	resp := make([]ledgerEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, ledgerEntryResponse{
			ID:          e.ID,
			Kind:        string(e.Kind),
			Amount:      e.Amount,
			FiscalYear:  e.FiscalYear,
			OrderID:     e.OrderID,
			Description: e.Description,
			CreatedBy:   e.CreatedBy,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetEntitlement рассчитывает годовую норму без начисления. Год берётся из ?year=,
// по умолчанию текущий.
func (h *Handler) GetEntitlement(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	year := time.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректный год")
			return
		}
		year = parsed
	}

	ent, err := h.service.CalculatePoints(r.Context(), personID, year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ent)
}

// GrantAnnual запускает ежегодное начисление баллов за указанный год.
func (h *Handler) GrantAnnual(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректный год")
		return
	}

	report, err := h.service.GrantAnnual(r.Context(), actor, year)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}
