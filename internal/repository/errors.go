package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation возвращается при некорректных или отсутствующих входных данных.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientPoints возвращается, если доступного остатка баллов недостаточно.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrInsufficientInventory возвращается, если остаток товара стал бы отрицательным.
	ErrInsufficientInventory = errors.New("insufficient inventory")
	// ErrInvalidState возвращается, если сущность не находится в требуемом для перехода статусе.
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound возвращается, если запрошенная сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrNoEligibleTickets возвращается, если у ателье нет талонов, готовых к расчёту.
	ErrNoEligibleTickets = errors.New("no eligible tickets")
	// ErrTransactionFailure возвращается при сбое хранилища; транзакция откатывается полностью.
	ErrTransactionFailure = errors.New("transaction failure")
	// ErrSequenceExhausted возвращается, если дневной счётчик номеров исчерпан.
	ErrSequenceExhausted = errors.New("daily sequence exhausted")
	// ErrBatchInProgress возвращается, если пакетное начисление уже выполняется.
	ErrBatchInProgress = errors.New("batch already in progress")
)

// ValidationError уточняет, какое поле не прошло проверку.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InsufficientPointsError содержит детали нехватки баллов.
type InsufficientPointsError struct {
	PersonID  int64
	Available int64
	Requested int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points for person %d: available %d, requested %d",
		e.PersonID, e.Available, e.Requested)
}

func (e *InsufficientPointsError) Unwrap() error {
	return ErrInsufficientPoints
}

// InsufficientInventoryError содержит детали нехватки товара.
type InsufficientInventoryError struct {
	StoreID   int64
	ProductID int64
	Variant   string
	OnHand    int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory for product %d (%s) in store %d: on hand %d, requested %d",
		e.ProductID, e.Variant, e.StoreID, e.OnHand, e.Requested)
}

func (e *InsufficientInventoryError) Unwrap() error {
	return ErrInsufficientInventory
}

// InvalidStateError описывает запрещённый переход статуса.
type InvalidStateError struct {
	Entity string
	ID     int64
	State  string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s %s %d in state %q", e.Action, e.Entity, e.ID, e.State)
}

func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// IsDomainError сообщает, является ли ошибка ожидаемым исходом бизнес-правила.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNoEligibleTickets) ||
		errors.Is(err, ErrSequenceExhausted) ||
		errors.Is(err, ErrBatchInProgress)
}

// asTransactionFailure оборачивает ошибку хранилища в ErrTransactionFailure,
// оставляя доменные ошибки и ошибки контекста без изменений.
func asTransactionFailure(err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrTransactionFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransactionFailure, err)
}
