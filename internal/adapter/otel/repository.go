package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

const tracerName = "github.com/neomorfeo/rosterlink/internal/adapter/otel"

// TracingRepository wraps a domain.ConnectionRepository with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
// Encrypted credentials are never attached to spans.
type TracingRepository struct {
	next   domain.ConnectionRepository
	tracer trace.Tracer
}

// Compile-time check: TracingRepository implements domain.ConnectionRepository.
var _ domain.ConnectionRepository = (*TracingRepository)(nil)

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next domain.ConnectionRepository) *TracingRepository {
	return &TracingRepository{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Get(ctx context.Context, tenantID string) (domain.TenantConnection, error) {
	ctx, span := r.tracer.Start(ctx, "TenantConnectionRepository.Get",
		trace.WithAttributes(attribute.String("tenant.id", tenantID)),
	)
	defer span.End()

	conn, err := r.next.Get(ctx, tenantID)
	if err != nil {
		recordError(span, err)
	} else {
		span.SetAttributes(attribute.String("connection.status", string(conn.Status)))
	}
	return conn, err
}

func (r *TracingRepository) Save(ctx context.Context, conn domain.TenantConnection) error {
	ctx, span := r.tracer.Start(ctx, "TenantConnectionRepository.Save",
		trace.WithAttributes(
			attribute.String("tenant.id", conn.TenantID),
			attribute.String("connection.status", string(conn.Status)),
		),
	)
	defer span.End()

	err := r.next.Save(ctx, conn)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func (r *TracingRepository) Update(ctx context.Context, conn domain.TenantConnection) error {
	ctx, span := r.tracer.Start(ctx, "TenantConnectionRepository.Update",
		trace.WithAttributes(
			attribute.String("tenant.id", conn.TenantID),
			attribute.String("connection.status", string(conn.Status)),
		),
	)
	defer span.End()

	err := r.next.Update(ctx, conn)
	if err != nil {
		recordError(span, err)
	}
	return err
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
