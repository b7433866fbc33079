package handler

import (
	"time"

	"github.com/mmeshcher/uniform-points/internal/model"
)

const dateLayout = "2006-01-02"

type summaryResponse struct {
	PersonID  int64  `json:"person_id"`
	Granted   int64  `json:"granted"`
	Used      int64  `json:"used"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
	UpdatedAt string `json:"updated_at"`
}

func newSummaryResponse(s *model.PointSummary) summaryResponse {
	return summaryResponse{
		PersonID:  s.PersonID,
		Granted:   s.Granted,
		Used:      s.Used,
		Reserved:  s.Reserved,
		Available: s.Available(),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

type ledgerEntryResponse struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	FiscalYear  *int   `json:"fiscal_year,omitempty"`
	OrderID     *int64 `json:"order_id,omitempty"`
	Description string `json:"description"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   string `json:"created_at"`
}

type orderItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Variant   string `json:"variant" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type createOrderRequest struct {
	PersonID        int64              `json:"person_id" validate:"required,gt=0"`
	StoreID         int64              `json:"store_id" validate:"required,gt=0"`
	Channel         string             `json:"channel" validate:"required,oneof=online offline"`
	ProductType     string             `json:"product_type" validate:"required,oneof=finished custom"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
	DeliveryMethod  string             `json:"delivery_method,omitempty" validate:"max=64"`
	DeliveryAddress string             `json:"delivery_address,omitempty" validate:"max=512"`
}

func (r createOrderRequest) toModel() model.OrderRequest {
	lines := make([]model.OrderLine, 0, len(r.Items))
	for _, it := range r.Items {
		lines = append(lines, model.OrderLine{ProductID: it.ProductID, Variant: it.Variant, Quantity: it.Quantity})
	}
	return model.OrderRequest{
		PersonID:        r.PersonID,
		StoreID:         r.StoreID,
		Channel:         model.Channel(r.Channel),
		ProductType:     model.ProductType(r.ProductType),
		Items:           lines,
		DeliveryMethod:  r.DeliveryMethod,
		DeliveryAddress: r.DeliveryAddress,
	}
}

type advanceOrderRequest struct {
	Status string `json:"status" validate:"required,oneof=shipping delivered"`
}

type returnOrderRequest struct {
	Reason string `json:"reason" validate:"required,max=512"`
}

type orderItemResponse struct {
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Subtotal  int64  `json:"subtotal"`
}

type orderResponse struct {
	ID              int64               `json:"id"`
	Number          string              `json:"number"`
	PersonID        int64               `json:"person_id"`
	StoreID         int64               `json:"store_id"`
	Channel         string              `json:"channel"`
	ProductType     string              `json:"product_type"`
	Status          string              `json:"status"`
	TotalAmount     int64               `json:"total_amount"`
	DeliveryMethod  string              `json:"delivery_method,omitempty"`
	DeliveryAddress string              `json:"delivery_address,omitempty"`
	ReturnReason    string              `json:"return_reason,omitempty"`
	Items           []orderItemResponse `json:"items,omitempty"`
	CreatedAt       string              `json:"created_at"`
	UpdatedAt       string              `json:"updated_at"`
}

func newOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Variant:   it.Variant,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Subtotal:  it.Subtotal,
		})
	}
	return orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		PersonID:        o.PersonID,
		StoreID:         o.StoreID,
		Channel:         string(o.Channel),
		ProductType:     string(o.ProductType),
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		DeliveryMethod:  o.DeliveryMethod,
		DeliveryAddress: o.DeliveryAddress,
		ReturnReason:    o.ReturnReason,
		Items:           items,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}
}

type registerTicketRequest struct {
	TailorID int64 `json:"tailor_id" validate:"required,gt=0"`
}

type ticketResponse struct {
	ID           int64   `json:"id"`
	Number       string  `json:"number"`
	PersonID     int64   `json:"person_id"`
	OrderID      int64   `json:"order_id"`
	TailorID     *int64  `json:"tailor_id,omitempty"`
	Status       string  `json:"status"`
	RegisteredAt *string `json:"registered_at,omitempty"`
	BatchID      *int64  `json:"batch_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func newTicketResponse(t *model.Ticket) ticketResponse {
	return ticketResponse{
		ID:           t.ID,
		Number:       t.Number,
		PersonID:     t.PersonID,
		OrderID:      t.OrderID,
		TailorID:     t.TailorID,
		Status:       string(t.Status),
		RegisteredAt: formatOptional(t.RegisteredAt),
		BatchID:      t.BatchID,
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
	}
}

type settlementResponse struct {
	ID          int64   `json:"id"`
	TailorID    int64   `json:"tailor_id"`
	PeriodStart string  `json:"period_start"`
	PeriodEnd   string  `json:"period_end"`
	TotalAmount int64   `json:"total_amount"`
	TicketCount int     `json:"ticket_count"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	ConfirmedAt *string `json:"confirmed_at,omitempty"`
}

func newSettlementResponse(b *model.SettlementBatch) settlementResponse {
	return settlementResponse{
		ID:          b.ID,
		TailorID:    b.TailorID,
		PeriodStart: b.PeriodStart.Format(dateLayout),
		PeriodEnd:   b.PeriodEnd.Format(dateLayout),
		TotalAmount: b.TotalAmount,
		TicketCount: b.TicketCount,
		Status:      string(b.Status),
		CreatedAt:   b.CreatedAt.Format(time.RFC3339),
		ConfirmedAt: formatOptional(b.ConfirmedAt),
	}
}

type stockRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Variant   string `json:"variant" validate:"required,max=64"`
	Quantity  int    `json:"quantity" validate:"required"`
	Reason    string `json:"reason,omitempty" validate:"max=512"`
}

type inventoryRecordResponse struct {
	ID        int64  `json:"id"`
	StoreID   int64  `json:"store_id"`
	ProductID int64  `json:"product_id"`
	Variant   string `json:"variant"`
	Quantity  int    `json:"quantity"`
	UpdatedAt string `json:"updated_at"`
}

type inventoryLogResponse struct {
	ID             int64  `json:"id"`
	RecordID       int64  `json:"record_id"`
	ChangeType     string `json:"change_type"`
	ChangeQuantity int    `json:"change_quantity"`
	BalanceAfter   int    `json:"balance_after"`
	Reason         string `json:"reason,omitempty"`
	OrderID        *int64 `json:"order_id,omitempty"`
	CreatedBy      int64  `json:"created_by"`
	CreatedAt      string `json:"created_at"`
}

func newInventoryLogResponse(l *model.InventoryLog) inventoryLogResponse {
	return inventoryLogResponse{
		ID:             l.ID,
		RecordID:       l.RecordID,
		ChangeType:     string(l.ChangeType),
		ChangeQuantity: l.ChangeQuantity,
		BalanceAfter:   l.BalanceAfter,
		Reason:         l.Reason,
		OrderID:        l.OrderID,
		CreatedBy:      l.CreatedBy,
		CreatedAt:      l.CreatedAt.Format(time.RFC3339),
	}
}

type createPersonRequest struct {
	ServiceNumber  string `json:"service_number" validate:"required,max=32"`
	Name           string `json:"name" validate:"required,max=128"`
	Rank           string `json:"rank" validate:"max=64"`
	EnlistmentDate string `json:"enlistment_date" validate:"required,datetime=2006-01-02"`
	RetirementDate string `json:"retirement_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Role           string `json:"role" validate:"required,oneof=staff store_operator tailor_operator beneficiary"`
	StoreID        *int64 `json:"store_id,omitempty" validate:"omitempty,gt=0"`
	TailorID       *int64 `json:"tailor_id,omitempty" validate:"omitempty,gt=0"`
}

func (r createPersonRequest) toModel() model.Person {
	// формат дат уже проверен тегом datetime
	enlisted, _ := time.Parse(dateLayout, r.EnlistmentDate)
	p := model.Person{
		ServiceNumber:  r.ServiceNumber,
		Name:           r.Name,
		Rank:           r.Rank,
		EnlistmentDate: enlisted,
		Role:           model.Role(r.Role),
		StoreID:        r.StoreID,
		TailorID:       r.TailorID,
		Active:         true,
	}
	if r.RetirementDate != "" {
		retired, _ := time.Parse(dateLayout, r.RetirementDate)
		p.RetirementDate = &retired
	}
	return p
}

type personResponse struct {
	ID             int64  `json:"id"`
	ServiceNumber  string `json:"service_number"`
	Name           string `json:"name"`
	Rank           string `json:"rank,omitempty"`
	EnlistmentDate string `json:"enlistment_date"`
	RetirementDate string `json:"retirement_date,omitempty"`
	Role           string `json:"role"`
	StoreID        *int64 `json:"store_id,omitempty"`
	TailorID       *int64 `json:"tailor_id,omitempty"`
	Active         bool   `json:"active"`
}

func newPersonResponse(p *model.Person) personResponse {
	resp := personResponse{
		ID:             p.ID,
		ServiceNumber:  p.ServiceNumber,
		Name:           p.Name,
		Rank:           p.Rank,
		EnlistmentDate: p.EnlistmentDate.Format(dateLayout),
		Role:           string(p.Role),
		StoreID:        p.StoreID,
		TailorID:       p.TailorID,
		Active:         p.Active,
	}
	if p.RetirementDate != nil {
		resp.RetirementDate = p.RetirementDate.Format(dateLayout)
	}
	return resp
}

type createProductRequest struct {
	Name  string `json:"name" validate:"required,max=128"`
	Type  string `json:"type" validate:"required,oneof=finished custom"`
	Price int64  `json:"price" validate:"required,gt=0"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
