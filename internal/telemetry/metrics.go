package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics содержит счётчики бизнес-событий. Нулевой указатель допустим и ничего не записывает.
type Metrics struct {
	ordersCreated     metric.Int64Counter
	points            metric.Int64Counter
	ticketsIssued     metric.Int64Counter
	settlementBatches metric.Int64Counter
	returns           metric.Int64Counter
}

// NewMetrics регистрирует счётчики в meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, errors.New("meter cannot be nil")
	}

	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.ordersCreated, "uniformpoints_orders_created_total", "Orders created", "{order}"},
		{&m.points, "uniformpoints_points_total", "Points moved through the ledger", "{point}"},
		{&m.ticketsIssued, "uniformpoints_tickets_issued_total", "Tailoring tickets issued", "{ticket}"},
		{&m.settlementBatches, "uniformpoints_settlement_batches_total", "Settlement batches requested", "{batch}"},
		{&m.returns, "uniformpoints_returns_total", "Orders returned", "{order}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}
	return &m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, channel, productType string) {
	if m == nil {
		return
	}
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("product_type", productType),
	))
}

func (m *Metrics) RecordPoints(ctx context.Context, kind string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.points.Add(ctx, amount, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordTicketsIssued(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ticketsIssued.Add(ctx, int64(n))
}

func (m *Metrics) RecordSettlementBatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.settlementBatches.Add(ctx, 1)
}

func (m *Metrics) RecordReturn(ctx context.Context) {
	if m == nil {
		return
	}
	m.returns.Add(ctx, 1)
}
