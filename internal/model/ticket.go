package model

import "time"

// TicketStatus описывает статус талона на пошив.
type TicketStatus string

const (
	TicketIssued              TicketStatus = "issued"
	TicketRegistered          TicketStatus = "registered"
	TicketSettlementRequested TicketStatus = "settlement_requested"
	TicketSettled             TicketStatus = "settled"
)

// IsValid сообщает, является ли статус одним из известных.
func (s TicketStatus) IsValid() bool {
	switch s {
	case TicketIssued, TicketRegistered, TicketSettlementRequested, TicketSettled:
		return true
	}
	return false
}

// Next возвращает единственный допустимый следующий статус.
func (s TicketStatus) Next() (TicketStatus, bool) {
	switch s {
	case TicketIssued:
		return TicketRegistered, true
	case TicketRegistered:
		return TicketSettlementRequested, true
	case TicketSettlementRequested:
		return TicketSettled, true
	}
	return "", false
}

// Ticket описывает талон на индивидуальный пошив одной единицы изделия.
type Ticket struct {
	ID           int64
	Number       string
	PersonID     int64
	OrderID      int64
	OrderItemID  int64
	TailorID     *int64
	Status       TicketStatus
	RegisteredAt *time.Time
	BatchID      *int64
	CreatedAt    time.Time
}

// SettlementStatus описывает статус пакета расчётов с ателье.
type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementConfirmed SettlementStatus = "confirmed"
)

// SettlementBatch описывает пакет расчётов с ателье за период.
type SettlementBatch struct {
	ID          int64
	TailorID    int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	TotalAmount int64
	TicketCount int
	Status      SettlementStatus
	CreatedBy   int64
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}
