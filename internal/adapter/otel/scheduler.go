package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// TracingScheduler wraps a domain.SyncScheduler with OpenTelemetry tracing.
type TracingScheduler struct {
	next   domain.SyncScheduler
	tracer trace.Tracer
}

// Compile-time check: TracingScheduler implements domain.SyncScheduler.
var _ domain.SyncScheduler = (*TracingScheduler)(nil)

// NewTracingScheduler creates a tracing decorator around the given scheduler.
func NewTracingScheduler(next domain.SyncScheduler) *TracingScheduler {
	return &TracingScheduler{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingScheduler) ScheduleSync(ctx context.Context, tenantID, requestedBy string) error {
	ctx, span := s.tracer.Start(ctx, "SyncScheduler.ScheduleSync",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("user.id", requestedBy),
		),
	)
	defer span.End()

	err := s.next.ScheduleSync(ctx, tenantID, requestedBy)
	if err != nil {
		recordError(span, err)
	}
	return err
}
