package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records order lifecycle counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ordersPlaced     metric.Int64Counter
	itemTransitions  metric.Int64Counter
	itemCancels      metric.Int64Counter
	outboxDelivered  metric.Int64Counter
	outboxFailed     metric.Int64Counter
	paymentCallbacks metric.Int64Counter
}

// NewMetrics registers the lifecycle instruments on meter, defaulting to the global provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(instrumentation)
	}
	m := &Metrics{}
	var err error
	if m.ordersPlaced, err = meter.Int64Counter("orders.placed", metric.WithDescription("orders persisted by checkout")); err != nil {
		return nil, fmt.Errorf("metrics: orders.placed: %w", err)
	}
	if m.itemTransitions, err = meter.Int64Counter("orders.item_transitions", metric.WithDescription("order item stage advances")); err != nil {
		return nil, fmt.Errorf("metrics: orders.item_transitions: %w", err)
	}
	if m.itemCancels, err = meter.Int64Counter("orders.item_cancellations", metric.WithDescription("order item cancellations by actor")); err != nil {
		return nil, fmt.Errorf("metrics: orders.item_cancellations: %w", err)
	}
	if m.outboxDelivered, err = meter.Int64Counter("outbox.delivered"); err != nil {
		return nil, fmt.Errorf("metrics: outbox.delivered: %w", err)
	}
	if m.outboxFailed, err = meter.Int64Counter("outbox.failed"); err != nil {
		return nil, fmt.Errorf("metrics: outbox.failed: %w", err)
	}
	if m.paymentCallbacks, err = meter.Int64Counter("payments.callbacks"); err != nil {
		return nil, fmt.Errorf("metrics: payments.callbacks: %w", err)
	}
	return m, nil
}

func (m *Metrics) OrderPlaced(ctx context.Context, method string) {
	if m == nil {
		return
	}
	m.ordersPlaced.Add(ctx, 1, metric.WithAttributes(attribute.String("payment_method", method)))
}

func (m *Metrics) ItemAdvanced(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.itemTransitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}

func (m *Metrics) ItemCancelled(ctx context.Context, actor string) {
	if m == nil {
		return
	}
	m.itemCancels.Add(ctx, 1, metric.WithAttributes(attribute.String("actor", actor)))
}

func (m *Metrics) OutboxDelivered(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.outboxDelivered.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *Metrics) OutboxFailed(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.outboxFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", eventType)))
}

func (m *Metrics) PaymentCallback(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.paymentCallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
