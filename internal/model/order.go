package model

import "time"

// Channel описывает канал продаж.
type Channel string

const (
	ChannelOnline  Channel = "online"
	ChannelOffline Channel = "offline"
)

// IsValid сообщает, является ли канал известным.
func (c Channel) IsValid() bool {
	return c == ChannelOnline || c == ChannelOffline
}

// NumberPrefix возвращает префикс номера заказа для канала.
func (c Channel) NumberPrefix() string {
	if c == ChannelOffline {
		return "OFF"
	}
	return "ORD"
}

// ProductType описывает тип товара: готовое изделие или индивидуальный пошив.
type ProductType string

const (
	ProductFinished ProductType = "finished"
	ProductCustom   ProductType = "custom"
)

// IsValid сообщает, является ли тип товара известным.
func (t ProductType) IsValid() bool {
	return t == ProductFinished || t == ProductCustom
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderShipping  OrderStatus = "shipping"
	OrderDelivered OrderStatus = "delivered"
	OrderReturned  OrderStatus = "returned"
	OrderCancelled OrderStatus = "cancelled"
)

// CanTransition сообщает, допустим ли переход статуса заказа.
// Переходы однонаправленные; возврат допускается один раз из любого
// статуса, кроме отменённого.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	switch to {
	case OrderReturned:
		return s != OrderReturned && s != OrderCancelled
	case OrderCancelled:
		return s == OrderPending
	case OrderConfirmed:
		return s == OrderPending
	case OrderShipping:
		return s == OrderConfirmed
	case OrderDelivered:
		return s == OrderShipping
	}
	return false
}

// Order описывает заказ, оплаченный баллами.
type Order struct {
	ID              int64
	Number          string
	PersonID        int64
	StoreID         int64
	Channel         Channel
	ProductType     ProductType
	Status          OrderStatus
	TotalAmount     int64
	DeliveryMethod  string
	DeliveryAddress string
	ReturnReason    string
	Items           []OrderItem
	CreatedBy       int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderItem описывает строку заказа.
type OrderItem struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Variant   string
	Quantity  int
	UnitPrice int64
	Subtotal  int64
}

// OrderRequest содержит входные данные для создания заказа.
type OrderRequest struct {
	PersonID        int64
	StoreID         int64
	Channel         Channel
	ProductType     ProductType
	Items           []OrderLine
	DeliveryMethod  string
	DeliveryAddress string
}

// OrderLine описывает позицию запроса на заказ. Цена берётся из каталога.
type OrderLine struct {
	ProductID int64
	Variant   string
	Quantity  int
}
