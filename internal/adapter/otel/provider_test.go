package otel_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	adapter "github.com/neomorfeo/rosterlink/internal/adapter/otel"
)

func TestSetup_StdoutWritesToOutput(t *testing.T) {
	var out bytes.Buffer
	providers, err := adapter.Setup(context.Background(), adapter.Config{
		ServiceName:    "rosterlink-test",
		ServiceVersion: "0.0.1",
		Environment:    "test",
		Exporter:       adapter.ExporterStdout,
		Output:         &out,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	_, span := otel.Tracer("provider-test").Start(context.Background(), "probe")
	span.End()

	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !strings.Contains(out.String(), `"Name":"probe"`) {
		t.Errorf("span not exported to Output, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "rosterlink-test") {
		t.Error("exported data is missing the service name")
	}
}

func TestSetup_NoneLeavesGlobalsAlone(t *testing.T) {
	before := otel.GetTracerProvider()

	providers, err := adapter.Setup(context.Background(), adapter.Config{Exporter: adapter.ExporterNone})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("none exporter replaced the global tracer provider")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestSetup_RejectsUnknownExporter(t *testing.T) {
	_, err := adapter.Setup(context.Background(), adapter.Config{Exporter: "jaeger"})
	if err == nil || !strings.Contains(err.Error(), "jaeger") {
		t.Fatalf("Setup() = %v, want unsupported exporter error", err)
	}
}
