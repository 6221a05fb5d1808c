package otel_test

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	adapter "github.com/neomorfeo/rosterlink/internal/adapter/otel"
	"github.com/neomorfeo/rosterlink/internal/domain"
)

type stubDispatcher struct {
	env   domain.Envelope
	delay time.Duration
}

func (s stubDispatcher) Dispatch(_ context.Context, _ domain.TenantContext, cmd domain.Command) domain.Envelope {
	time.Sleep(s.delay)
	env := s.env
	env.Command = cmd.Name
	return env
}

func (s stubDispatcher) Commands() []domain.CommandInfo {
	return []domain.CommandInfo{{Name: "help"}}
}

func setupTestMeter(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return reader
}

func dispatchedCount(t *testing.T, reader *sdkmetric.ManualReader, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}
	set := attribute.NewSet(want...)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "rosterlink.commands.dispatched" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("counter data = %T, want metricdata.Sum[int64]", m.Data)
			}
			for _, dp := range sum.DataPoints {
				if dp.Attributes.Equals(&set) {
					return dp.Value
				}
			}
		}
	}
	return 0
}

var tenant = domain.TenantContext{TenantID: "t-1", UserID: "u-1", Role: domain.RoleAdmin}

func TestInstrumentedDispatcher_Success(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	d, err := adapter.NewInstrumentedDispatcher(stubDispatcher{env: domain.Envelope{
		Success: true,
		Meta:    &domain.EnvelopeMeta{RequestID: "req-1", DurationMS: 3},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env := d.Dispatch(context.Background(), tenant, domain.Command{Name: "searchSongs"})
	if !env.Success {
		t.Fatalf("expected success, got %+v", env)
	}

	span := onlySpan(t, exporter)
	if span.Name != "Dispatcher.Dispatch" {
		t.Errorf("span name = %q, want %q", span.Name, "Dispatcher.Dispatch")
	}
	assertAttribute(t, span, "command.name", "searchSongs")
	assertAttribute(t, span, "request.id", "req-1")

	got := dispatchedCount(t, reader,
		attribute.String("command", "searchSongs"),
		attribute.Bool("success", true),
	)
	if got != 1 {
		t.Errorf("dispatched = %d, want 1", got)
	}
}

func TestInstrumentedDispatcher_Failure(t *testing.T) {
	exporter := setupTestTracer(t)
	reader := setupTestMeter(t)

	d, err := adapter.NewInstrumentedDispatcher(stubDispatcher{env: domain.Envelope{
		Error:     "Planning Center not connected",
		ErrorKind: domain.KindNotConnected,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d.Dispatch(context.Background(), tenant, domain.Command{Name: "searchPeople"})
	d.Dispatch(context.Background(), tenant, domain.Command{Name: "searchPeople"})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want %v", spans[0].Status.Code, codes.Error)
	}

	got := dispatchedCount(t, reader,
		attribute.String("command", "searchPeople"),
		attribute.Bool("success", false),
		attribute.String("error_kind", string(domain.KindNotConnected)),
	)
	if got != 2 {
		t.Errorf("dispatched = %d, want 2", got)
	}
}

func TestInstrumentedDispatcher_Commands(t *testing.T) {
	setupTestMeter(t)
	d, err := adapter.NewInstrumentedDispatcher(stubDispatcher{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := d.Commands(); len(got) != 1 || got[0].Name != "help" {
		t.Errorf("Commands() = %+v, want help only", got)
	}
}

func TestInstrumentedDispatcher_DurationInSeconds(t *testing.T) {
	setupTestTracer(t)
	reader := setupTestMeter(t)

	// The inner envelope claims 0ms; the histogram must measure on its own.
	d, err := adapter.NewInstrumentedDispatcher(stubDispatcher{
		env:   domain.Envelope{Success: true, Meta: &domain.EnvelopeMeta{RequestID: "req-1"}},
		delay: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d.Dispatch(context.Background(), tenant, domain.Command{Name: "help"})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collecting metrics: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "rosterlink.commands.duration" {
				continue
			}
			if m.Unit != "s" {
				t.Errorf("unit = %q, want %q", m.Unit, "s")
			}
			hist, ok := m.Data.(metricdata.Histogram[float64])
			if !ok || len(hist.DataPoints) != 1 {
				t.Fatalf("histogram data = %+v", m.Data)
			}
			if sum := hist.DataPoints[0].Sum; sum < 0.005 || sum >= 1 {
				t.Errorf("recorded %v seconds, want between 0.005 and 1", sum)
			}
			return
		}
	}
	t.Fatal("rosterlink.commands.duration not recorded")
}
