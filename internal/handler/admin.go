package handler

import (
	"net/http"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// CreatePerson регистрирует военнослужащего или сотрудника.
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createPersonRequest
	if !h.decode(w, r, &req) {
		return
	}

	person, err := h.service.CreatePerson(r.Context(), actor, req.toModel())
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, newPersonResponse(person))
}

// GetPerson возвращает карточку человека.
func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	personID, ok := h.personParam(w, r)
	if !ok {
		return
	}

	person, err := h.service.GetPerson(r.Context(), personID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, newPersonResponse(person))
}

// DeactivatePerson деактивирует человека.
func (h *Handler) DeactivatePerson(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	personID, ok := h.idParam(w, r, "personID")
	if !ok {
		return
	}

	if err := h.service.DeactivatePerson(r.Context(), actor, personID); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateProduct добавляет позицию в каталог.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), actor, model.Product{
		Name:   req.Name,
		Type:   model.ProductType(req.Type),
		Price:  req.Price,
		Active: true,
	})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":    product.ID,
		"name":  product.Name,
		"type":  product.Type,
		"price": product.Price,
	})
}

// CreateStore добавляет точку продаж.
func (h *Handler) CreateStore(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req nameRequest
	if !h.decode(w, r, &req) {
		return
	}

	store, err := h.service.CreateStore(r.Context(), actor, req.Name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"id": store.ID, "name": store.Name})
}

// CreateTailor добавляет ателье-партнёра.
func (h *Handler) CreateTailor(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req nameRequest
	if !h.decode(w, r, &req) {
		return
	}

	tailor, err := h.service.CreateTailor(r.Context(), actor, req.Name)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"id": tailor.ID, "name": tailor.Name, "active": tailor.Active})
}
