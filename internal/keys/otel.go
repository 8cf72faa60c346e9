package keys

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "keyforge/keys"
	MeterName  = "keyforge/keys"
)

// Metrics holds the lifecycle instruments
type Metrics struct {
	Operations        metric.Int64Counter
	OperationDuration metric.Float64Histogram
	KeysMinted        metric.Int64Counter
	StoreSaves        metric.Int64Counter
	LockWait          metric.Float64Histogram
}

// NewMetrics creates the lifecycle instruments on meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Operations, err = meter.Int64Counter(
		"key_operations_total",
		metric.WithDescription("Total number of key lifecycle operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operations counter: %w", err)
	}

	m.OperationDuration, err = meter.Float64Histogram(
		"key_operation_duration_seconds",
		metric.WithDescription("Key lifecycle operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation duration histogram: %w", err)
	}

	m.KeysMinted, err = meter.Int64Counter(
		"keys_minted_total",
		metric.WithDescription("Total number of keys minted"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create minted counter: %w", err)
	}

	m.StoreSaves, err = meter.Int64Counter(
		"key_store_saves_total",
		metric.WithDescription("Total number of collection saves"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create saves counter: %w", err)
	}

	m.LockWait, err = meter.Float64Histogram(
		"key_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the collection lock"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock wait histogram: %w", err)
	}

	return m, nil
}

// Outcome classifies err into a low-cardinality metric label
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyBound):
		return "already_bound"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrStorage):
		return "storage_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (m *Manager) startOp(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := m.tracer.Start(ctx, "keys."+op,
		trace.WithAttributes(attribute.String("key.operation", op)))
	return ctx, span, time.Now()
}

func (m *Manager) endOp(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	outcome := Outcome(err)
	span.SetAttributes(attribute.String("key.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.End()

	if m.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.metrics.Operations.Add(ctx, 1, attrs)
	m.metrics.OperationDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
