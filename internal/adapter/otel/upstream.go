package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/rosterlink/internal/domain"
)

// TracingUpstream wraps a domain.Upstream with one span per operation.
// The HTTP transport adds its own client spans beneath these.
type TracingUpstream struct {
	next   domain.Upstream
	tracer trace.Tracer
}

// Compile-time check: TracingUpstream implements domain.Upstream.
var _ domain.Upstream = (*TracingUpstream)(nil)

// NewTracingUpstream creates a tracing decorator around the given client.
func NewTracingUpstream(next domain.Upstream) *TracingUpstream {
	return &TracingUpstream{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

// TracingFactory decorates every client the factory builds.
func TracingFactory(next domain.ClientFactory) domain.ClientFactory {
	return func(creds domain.Credentials) (domain.Upstream, error) {
		up, err := next(creds)
		if err != nil {
			return nil, err
		}
		return NewTracingUpstream(up), nil
	}
}

func traced[T any](ctx context.Context, tracer trace.Tracer, name string, attrs []attribute.KeyValue, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "Upstream."+name, trace.WithAttributes(attrs...))
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		recordError(span, err)
		span.SetAttributes(attribute.String("error.kind", string(domain.KindOf(err))))
	}
	return out, err
}

func (u *TracingUpstream) TestConnection(ctx context.Context) domain.ConnectionTestResult {
	ctx, span := u.tracer.Start(ctx, "Upstream.TestConnection")
	defer span.End()

	result := u.next.TestConnection(ctx)
	span.SetAttributes(attribute.Bool("connection.success", result.Success))
	return result
}

func (u *TracingUpstream) ListPeople(ctx context.Context, params domain.QueryParams) (domain.Collection[domain.PersonAttributes], error) {
	return traced(ctx, u.tracer, "ListPeople", nil, func(ctx context.Context) (domain.Collection[domain.PersonAttributes], error) {
		return u.next.ListPeople(ctx, params)
	})
}

func (u *TracingUpstream) GetPerson(ctx context.Context, id string) (domain.Resource[domain.PersonAttributes], error) {
	attrs := []attribute.KeyValue{attribute.String("person.id", id)}
	return traced(ctx, u.tracer, "GetPerson", attrs, func(ctx context.Context) (domain.Resource[domain.PersonAttributes], error) {
		return u.next.GetPerson(ctx, id)
	})
}

func (u *TracingUpstream) ListBlockouts(ctx context.Context, personID string, params domain.QueryParams) (domain.Collection[domain.BlockoutAttributes], error) {
	attrs := []attribute.KeyValue{attribute.String("person.id", personID)}
	return traced(ctx, u.tracer, "ListBlockouts", attrs, func(ctx context.Context) (domain.Collection[domain.BlockoutAttributes], error) {
		return u.next.ListBlockouts(ctx, personID, params)
	})
}

func (u *TracingUpstream) ListServiceTypes(ctx context.Context) (domain.Collection[domain.ServiceTypeAttributes], error) {
	return traced(ctx, u.tracer, "ListServiceTypes", nil, u.next.ListServiceTypes)
}

func (u *TracingUpstream) ListPlans(ctx context.Context, serviceTypeID string, params domain.QueryParams) (domain.Collection[domain.PlanAttributes], error) {
	attrs := []attribute.KeyValue{attribute.String("service_type.id", serviceTypeID)}
	return traced(ctx, u.tracer, "ListPlans", attrs, func(ctx context.Context) (domain.Collection[domain.PlanAttributes], error) {
		return u.next.ListPlans(ctx, serviceTypeID, params)
	})
}

func (u *TracingUpstream) GetPlan(ctx context.Context, serviceTypeID, planID string) (domain.Resource[domain.PlanAttributes], error) {
	attrs := []attribute.KeyValue{
		attribute.String("service_type.id", serviceTypeID),
		attribute.String("plan.id", planID),
	}
	return traced(ctx, u.tracer, "GetPlan", attrs, func(ctx context.Context) (domain.Resource[domain.PlanAttributes], error) {
		return u.next.GetPlan(ctx, serviceTypeID, planID)
	})
}

func (u *TracingUpstream) ListTeams(ctx context.Context, serviceTypeID string) (domain.Collection[domain.TeamAttributes], error) {
	attrs := []attribute.KeyValue{attribute.String("service_type.id", serviceTypeID)}
	return traced(ctx, u.tracer, "ListTeams", attrs, func(ctx context.Context) (domain.Collection[domain.TeamAttributes], error) {
		return u.next.ListTeams(ctx, serviceTypeID)
	})
}

func (u *TracingUpstream) ListTeamMembers(ctx context.Context, serviceTypeID, teamID string) (domain.Collection[domain.TeamMemberAttributes], error) {
	attrs := []attribute.KeyValue{
		attribute.String("service_type.id", serviceTypeID),
		attribute.String("team.id", teamID),
	}
	return traced(ctx, u.tracer, "ListTeamMembers", attrs, func(ctx context.Context) (domain.Collection[domain.TeamMemberAttributes], error) {
		return u.next.ListTeamMembers(ctx, serviceTypeID, teamID)
	})
}

func (u *TracingUpstream) ListSongs(ctx context.Context, params domain.QueryParams) (domain.Collection[domain.SongAttributes], error) {
	return traced(ctx, u.tracer, "ListSongs", nil, func(ctx context.Context) (domain.Collection[domain.SongAttributes], error) {
		return u.next.ListSongs(ctx, params)
	})
}

func (u *TracingUpstream) SearchSongs(ctx context.Context, query string) (domain.Collection[domain.SongAttributes], error) {
	return traced(ctx, u.tracer, "SearchSongs", nil, func(ctx context.Context) (domain.Collection[domain.SongAttributes], error) {
		return u.next.SearchSongs(ctx, query)
	})
}

func (u *TracingUpstream) CreatePlanPerson(ctx context.Context, planID string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	attrs := []attribute.KeyValue{
		attribute.String("plan.id", planID),
		attribute.String("person.id", in.PersonID),
		attribute.String("team.id", in.TeamID),
	}
	return traced(ctx, u.tracer, "CreatePlanPerson", attrs, func(ctx context.Context) (domain.Resource[domain.PlanPersonAttributes], error) {
		return u.next.CreatePlanPerson(ctx, planID, in)
	})
}

func (u *TracingUpstream) UpdatePlanPerson(ctx context.Context, planID, planPersonID string, in domain.PlanPersonInput) (domain.Resource[domain.PlanPersonAttributes], error) {
	attrs := []attribute.KeyValue{
		attribute.String("plan.id", planID),
		attribute.String("plan_person.id", planPersonID),
	}
	return traced(ctx, u.tracer, "UpdatePlanPerson", attrs, func(ctx context.Context) (domain.Resource[domain.PlanPersonAttributes], error) {
		return u.next.UpdatePlanPerson(ctx, planID, planPersonID, in)
	})
}
