package remote

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/networked-ai/formguard/availability/remote"

type clientMetrics struct {
	checks   metric.Int64Counter
	duration metric.Float64Histogram
}

// newClientMetrics registers instruments on the global meter provider. With no
// provider installed they are no-ops.
func newClientMetrics() *clientMetrics {
	meter := otel.GetMeterProvider().Meter(meterName)
	m := &clientMetrics{}
	var err error
	m.checks, err = meter.Int64Counter(
		"formguard.availability.checks",
		metric.WithDescription("Number of remote availability checks by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.duration, err = meter.Float64Histogram(
		"formguard.availability.check.duration.seconds",
		metric.WithDescription("Duration of remote availability checks"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		otel.Handle(err)
	}
	return m
}

func (m *clientMetrics) record(ctx context.Context, kind Kind, available bool, err error, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("outcome", outcome(available, err)),
	)
	if m.checks != nil {
		m.checks.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func outcome(available bool, err error) string {
	var se *StatusError
	switch {
	case err == nil && available:
		return "available"
	case err == nil:
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.As(err, &se):
		return "status_error"
	default:
		return "transport_error"
	}
}
