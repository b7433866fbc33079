package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLedgerKindEffectFoldsIntoSummary(t *testing.T) {
	s := PointSummary{}
	s = s.Apply(LedgerGrant, 100)
	s = s.Apply(LedgerReserve, 30)
	s = s.Apply(LedgerRelease, 30)
	s = s.Apply(LedgerUse, 30)
	s = s.Apply(LedgerReturn, 10)

	assert.Equal(t, int64(100), s.Granted)
	assert.Equal(t, int64(20), s.Used)
	assert.Equal(t, int64(0), s.Reserved)
	assert.Equal(t, int64(80), s.Available())
	assert.True(t, s.Valid())
}

func TestPointSummaryValid(t *testing.T) {
	tests := []struct {
		name    string
		summary PointSummary
		valid   bool
	}{
		{name: "empty", summary: PointSummary{}, valid: true},
		{name: "fully spent", summary: PointSummary{Granted: 10, Used: 6, Reserved: 4}, valid: true},
		{name: "overdrawn", summary: PointSummary{Granted: 10, Used: 6, Reserved: 5}, valid: false},
		{name: "negative used", summary: PointSummary{Granted: 10, Used: -1}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.summary.Valid())
		})
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from OrderStatus
		to   OrderStatus
		ok   bool
	}{
		{OrderPending, OrderConfirmed, true},
		{OrderConfirmed, OrderShipping, true},
		{OrderShipping, OrderDelivered, true},
		{OrderPending, OrderCancelled, true},
		{OrderDelivered, OrderReturned, true},
		{OrderPending, OrderReturned, true},
		{OrderReturned, OrderReturned, false},
		{OrderCancelled, OrderReturned, false},
		{OrderConfirmed, OrderPending, false},
		{OrderDelivered, OrderShipping, false},
		{OrderConfirmed, OrderCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}
}

func TestTicketStatusIsForwardOnly(t *testing.T) {
	next, ok := TicketIssued.Next()
	assert.True(t, ok)
	assert.Equal(t, TicketRegistered, next)

	next, ok = TicketRegistered.Next()
	assert.True(t, ok)
	assert.Equal(t, TicketSettlementRequested, next)

	next, ok = TicketSettlementRequested.Next()
	assert.True(t, ok)
	assert.Equal(t, TicketSettled, next)

	_, ok = TicketSettled.Next()
	assert.False(t, ok)

	assert.True(t, TicketSettled.IsValid())
	assert.False(t, TicketStatus("void").IsValid())
}

func TestInventoryChangeDelta(t *testing.T) {
	assert.Equal(t, 3, InventoryChange{Type: InventoryIncoming, Quantity: 3}.Delta())
	assert.Equal(t, -2, InventoryChange{Type: InventorySale, Quantity: 2}.Delta())
	assert.Equal(t, -1, InventoryChange{Type: InventoryAdjustDown, Quantity: 1}.Delta())
	assert.Equal(t, 4, InventoryChange{Type: InventoryReturn, Quantity: 4}.Delta())
}
