// Package repository содержит хранилища журнала баллов, остатков, заказов и талонов:
// реализацию на PostgreSQL и in-memory реализацию для тестов.
package repository

import (
	"context"
	"time"

	"github.com/mmeshcher/uniform-points/internal/model"
)

// Sequence scopes.
const (
	ScopeOnlineOrder  = "ORD"
	ScopeOfflineOrder = "OFF"
	ScopeTicket       = "TKT"
)

// MaxDailySequence задаёт наибольший номер, помещающийся в пять разрядов.
const MaxDailySequence = 99999

// Tx описывает операции, выполняемые внутри одной атомарной транзакции.
type Tx interface {
	GetPerson(ctx context.Context, id int64) (*model.Person, error)
	ListActiveBeneficiaries(ctx context.Context) ([]model.Person, error)
	InsertPerson(ctx context.Context, p *model.Person) error
	DeactivatePerson(ctx context.Context, id int64) error

	GetProduct(ctx context.Context, id int64) (*model.Product, error)
	InsertProduct(ctx context.Context, p *model.Product) error
	GetStore(ctx context.Context, id int64) (*model.Store, error)
	InsertStore(ctx context.Context, s *model.Store) error
	LockTailor(ctx context.Context, id int64) (*model.Tailor, error)
	InsertTailor(ctx context.Context, t *model.Tailor) error

	// LockPointSummary читает сводку с блокировкой строки до конца транзакции.
	LockPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error)
	// AppendLedgerEntry добавляет запись журнала и применяет её к сводке.
	// Это единственный способ изменить PointSummary.
	AppendLedgerEntry(ctx context.Context, e *model.LedgerEntry) (*model.PointSummary, error)
	HasAnnualGrant(ctx context.Context, personID int64, fiscalYear int) (bool, error)

	// NextSequence возвращает следующий номер счётчика для пары (scope, day).
	NextSequence(ctx context.Context, scope string, day time.Time) (int, error)

	InsertOrder(ctx context.Context, o *model.Order) error
	LockOrder(ctx context.Context, id int64) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, returnReason string, at time.Time) error

	// ApplyInventoryChange атомарно изменяет остаток и пишет запись движения.
	// Это единственный способ изменить InventoryRecord.
	ApplyInventoryChange(ctx context.Context, c model.InventoryChange) (*model.InventoryLog, error)

	InsertTicket(ctx context.Context, t *model.Ticket) error
	LockTicket(ctx context.Context, id int64) (*model.Ticket, error)
	RegisterTicket(ctx context.Context, id, tailorID int64, at time.Time) error
	LockRegisteredTickets(ctx context.Context, tailorID int64) ([]model.Ticket, error)
	MoveTicketsToBatch(ctx context.Context, ids []int64, batchID int64) error
	SettleBatchTickets(ctx context.Context, batchID int64) (int, error)

	InsertSettlementBatch(ctx context.Context, b *model.SettlementBatch) error
	LockSettlementBatch(ctx context.Context, id int64) (*model.SettlementBatch, error)
	ConfirmSettlementBatch(ctx context.Context, id int64, at time.Time) error
}

// Reader описывает запросы только для чтения, выполняемые вне транзакции.
type Reader interface {
	GetPerson(ctx context.Context, id int64) (*model.Person, error)
	GetPointSummary(ctx context.Context, personID int64) (*model.PointSummary, error)
	ListLedgerEntries(ctx context.Context, personID int64) ([]model.LedgerEntry, error)
	GetOrder(ctx context.Context, id int64) (*model.Order, error)
	GetOrderByNumber(ctx context.Context, number string) (*model.Order, error)
	ListOrdersByPerson(ctx context.Context, personID int64) ([]model.Order, error)
	GetTicketByNumber(ctx context.Context, number string) (*model.Ticket, error)
	ListTicketsByPerson(ctx context.Context, personID int64) ([]model.Ticket, error)
	ListTicketsByTailor(ctx context.Context, tailorID int64, status model.TicketStatus) ([]model.Ticket, error)
	ListSettlementBatches(ctx context.Context, tailorID int64) ([]model.SettlementBatch, error)
	ListInventory(ctx context.Context, storeID int64) ([]model.InventoryRecord, error)
	ListInventoryLogs(ctx context.Context, recordID int64) ([]model.InventoryLog, error)
}
