package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

const meterName = tracerName

// InstrumentedDispatcher wraps a domain.Dispatcher with a span and a counter
// per dispatched command.
type InstrumentedDispatcher struct {
	next       domain.Dispatcher
	tracer     trace.Tracer
	dispatched metric.Int64Counter
	duration   metric.Float64Histogram
}

// Compile-time check: InstrumentedDispatcher implements domain.Dispatcher.
var _ domain.Dispatcher = (*InstrumentedDispatcher)(nil)

// NewInstrumentedDispatcher creates the decorator using the global providers.
func NewInstrumentedDispatcher(next domain.Dispatcher) (*InstrumentedDispatcher, error) {
	meter := otel.Meter(meterName)

	dispatched, err := meter.Int64Counter("rosterlink.commands.dispatched",
		metric.WithDescription("Commands dispatched, by command and outcome."),
		metric.WithUnit("{command}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch counter: %w", err)
	}

	duration, err := meter.Float64Histogram("rosterlink.commands.duration",
		metric.WithDescription("Command dispatch latency."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatch histogram: %w", err)
	}

	return &InstrumentedDispatcher{
		next:       next,
		tracer:     otel.Tracer(tracerName),
		dispatched: dispatched,
		duration:   duration,
	}, nil
}

func (d *InstrumentedDispatcher) Dispatch(ctx context.Context, tc domain.TenantContext, cmd domain.Command) domain.Envelope {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Dispatch",
		trace.WithAttributes(
			attribute.String("command.name", cmd.Name),
			attribute.String("tenant.id", tc.TenantID),
			attribute.String("user.role", string(tc.Role)),
		),
	)
	defer span.End()

	start := time.Now()
	env := d.next.Dispatch(ctx, tc, cmd)
	elapsed := time.Since(start).Seconds()

	attrs := []attribute.KeyValue{
		attribute.String("command", env.Command),
		attribute.Bool("success", env.Success),
	}
	if !env.Success {
		attrs = append(attrs, attribute.String("error_kind", string(env.ErrorKind)))
		span.SetStatus(codes.Error, env.Error)
	}
	if env.Meta != nil {
		span.SetAttributes(attribute.String("request.id", env.Meta.RequestID))
	}
	d.duration.Record(ctx, elapsed, metric.WithAttributes(attribute.String("command", env.Command)))
	span.SetAttributes(attrs...)
	d.dispatched.Add(ctx, 1, metric.WithAttributes(attrs...))

	return env
}

func (d *InstrumentedDispatcher) Commands() []domain.CommandInfo {
	return d.next.Commands()
}
