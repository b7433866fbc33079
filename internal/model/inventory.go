package model

import "time"

// InventoryChangeType описывает вид движения остатков.
type InventoryChangeType string

const (
	InventoryIncoming   InventoryChangeType = "incoming"
	InventoryAdjustUp   InventoryChangeType = "adjust_up"
	InventoryAdjustDown InventoryChangeType = "adjust_down"
	InventorySale       InventoryChangeType = "sale"
	InventoryReturn     InventoryChangeType = "return"
)

// Sign возвращает знак изменения количества для вида движения.
func (t InventoryChangeType) Sign() int {
	switch t {
	case InventoryIncoming, InventoryAdjustUp, InventoryReturn:
		return 1
	case InventoryAdjustDown, InventorySale:
		return -1
	}
	return 0
}

// InventoryRecord содержит остаток товара в точке продаж.
type InventoryRecord struct {
	ID        int64
	StoreID   int64
	ProductID int64
	Variant   string
	Quantity  int
	UpdatedAt time.Time
}

// InventoryLog описывает неизменяемый факт движения остатков.
type InventoryLog struct {
	ID             int64
	RecordID       int64
	ChangeType     InventoryChangeType
	ChangeQuantity int
	BalanceAfter   int
	Reason         string
	OrderID        *int64
	CreatedBy      int64
	CreatedAt      time.Time
}

// InventoryChange описывает запрос на изменение остатка.
// Quantity всегда положительно, направление задаёт Type.
type InventoryChange struct {
	StoreID   int64
	ProductID int64
	Variant   string
	Type      InventoryChangeType
	Quantity  int
	Reason    string
	OrderID   *int64
	CreatedBy int64
}

// Delta возвращает знаковое изменение количества.
func (c InventoryChange) Delta() int {
	return c.Type.Sign() * c.Quantity
}
