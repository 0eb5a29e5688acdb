package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the engine's OpenTelemetry counters.
type Metrics struct {
	claims      metric.Int64Counter
	transitions metric.Int64Counter
}

// NewMetrics registers the engine counters on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("taskforge/backend/services")

	claims, err := meter.Int64Counter("engine.claims",
		metric.WithDescription("Claim attempts by outcome"))
	if err != nil {
		return nil, err
	}
	transitions, err := meter.Int64Counter("engine.transitions",
		metric.WithDescription("Execution state transitions by target status"))
	if err != nil {
		return nil, err
	}
	return &Metrics{claims: claims, transitions: transitions}, nil
}

func (m *Metrics) recordClaim(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.claims.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) recordTransition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", to)))
}
