// Package handler содержит HTTP-обработчики API сервиса баллов вещевого обеспечения.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/mmeshcher/uniform-points/internal/middleware"
	"github.com/mmeshcher/uniform-points/internal/model"
	"github.com/mmeshcher/uniform-points/internal/repository"
	"github.com/mmeshcher/uniform-points/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	GetPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error)
	ListLedgerEntries(ctx context.Context, personID int64) ([]model.LedgerEntry, error)
	CalculatePoints(ctx context.Context, personID int64, fiscalYear int) (*service.Entitlement, error)
	GrantAnnual(ctx context.Context, actor model.Actor, fiscalYear int) (*model.GrantReport, error)

	CreateOrder(ctx context.Context, actor model.Actor, req model.OrderRequest) (*model.Order, error)
	ConfirmOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error)
	CancelOrder(ctx context.Context, actor model.Actor, orderID int64) (*model.Order, error)
	AdvanceOrder(ctx context.Context, actor model.Actor, orderID int64, to model.OrderStatus) (*model.Order, error)
	ProcessReturn(ctx context.Context, actor model.Actor, orderID int64, reason string) (*model.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	ListOrders(ctx context.Context, personID int64) ([]model.Order, error)

	LookupTicket(ctx context.Context, number string) (*model.Ticket, error)
	RegisterTicket(ctx context.Context, actor model.Actor, ticketID, tailorID int64) (*model.Ticket, error)
	ListTickets(ctx context.Context, personID int64) ([]model.Ticket, error)
	ListTailorTickets(ctx context.Context, tailorID int64, status model.TicketStatus) ([]model.Ticket, error)

	RequestSettlement(ctx context.Context, actor model.Actor, tailorID int64) (*model.SettlementBatch, error)
	ConfirmSettlement(ctx context.Context, actor model.Actor, batchID int64) (*model.SettlementBatch, error)
	ListSettlements(ctx context.Context, tailorID int64) ([]model.SettlementBatch, error)

	ReceiveStock(ctx context.Context, actor model.Actor, req service.StockRequest) (*model.InventoryLog, error)
	AdjustStock(ctx context.Context, actor model.Actor, req service.StockRequest) (*model.InventoryLog, error)
	ListInventory(ctx context.Context, storeID int64) ([]model.InventoryRecord, error)
	ListInventoryLogs(ctx context.Context, recordID int64) ([]model.InventoryLog, error)

	CreatePerson(ctx context.Context, actor model.Actor, p model.Person) (*model.Person, error)
	GetPerson(ctx context.Context, personID int64) (*model.Person, error)
	DeactivatePerson(ctx context.Context, actor model.Actor, personID int64) error
	CreateProduct(ctx context.Context, actor model.Actor, p model.Product) (*model.Product, error)
	CreateStore(ctx context.Context, actor model.Actor, name string) (*model.Store, error)
	CreateTailor(ctx context.Context, actor model.Actor, name string) (*model.Tailor, error)
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	validate       *validator.Validate
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		validate:       v,
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Success: true, Data: data}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Error: &errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// handleError переводит ошибку движка в HTTP-статус и код ответа.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *repository.ValidationError
		pointsErr     *repository.InsufficientPointsError
		inventoryErr  *repository.InsufficientInventoryError
	)

	switch {
	case errors.As(err, &validationErr):
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректное значение поля "+validationErr.Field)
	case errors.Is(err, repository.ErrValidation):
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректные данные запроса")
	case errors.As(err, &pointsErr):
		h.writeError(w, http.StatusPaymentRequired, "insufficient_points",
			"Недостаточно баллов: доступно "+strconv.FormatInt(pointsErr.Available, 10))
	case errors.As(err, &inventoryErr):
		h.writeError(w, http.StatusConflict, "insufficient_inventory",
			"Недостаточно товара на складе: в наличии "+strconv.Itoa(inventoryErr.OnHand))
	case errors.Is(err, repository.ErrInvalidState):
		h.writeError(w, http.StatusConflict, "invalid_state", "Операция недоступна в текущем статусе")
	case errors.Is(err, repository.ErrBatchInProgress):
		h.writeError(w, http.StatusConflict, "batch_in_progress", "Начисление уже выполняется")
	case errors.Is(err, repository.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Объект не найден")
	case errors.Is(err, repository.ErrNoEligibleTickets):
		h.writeError(w, http.StatusUnprocessableEntity, "no_eligible_tickets", "Нет талонов для расчёта")
	case errors.Is(err, repository.ErrSequenceExhausted):
		h.writeError(w, http.StatusServiceUnavailable, "sequence_exhausted", "Исчерпан дневной лимит номеров")
	case errors.Is(err, repository.ErrTransactionFailure):
		h.logger.Warn("transaction failure", zap.Error(err), zap.String("path", r.URL.Path))
		h.writeError(w, http.StatusServiceUnavailable, "transaction_failure", "Сервис временно недоступен, повторите запрос")
	default:
		h.logger.Error("request error", zap.Error(err), zap.String("path", r.URL.Path))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Внутренняя ошибка сервера")
	}
}

// decode читает JSON тело запроса и проверяет его тегами validate.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "Некорректный JSON")
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректное значение поля "+fieldErrs[0].Field())
			return false
		}
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректные данные запроса")
		return false
	}
	return true
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthorized", "Требуется авторизация")
	}
	return actor, ok
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "validation_error", "Некорректный идентификатор "+name)
		return 0, false
	}
	return id, true
}

// personParam возвращает идентификатор человека из пути. Получатель баллов
// видит только собственные данные.
func (h *Handler) personParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return 0, false
	}
	id, ok := h.idParam(w, r, "personID")
	if !ok {
		return 0, false
	}
	if actor.Role == model.RoleBeneficiary && actor.ID != id {
		h.writeError(w, http.StatusForbidden, "forbidden", "Недостаточно прав")
		return 0, false
	}
	return id, true
}
