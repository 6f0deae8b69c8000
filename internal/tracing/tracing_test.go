package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func swapGlobalProvider(tp trace.TracerProvider) trace.TracerProvider {
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	return prev
}

func TestSetupDisabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled provider reports Enabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on disabled provider: %v", err)
	}
	_, span := p.Tracer("x").Start(context.Background(), "op")
	span.End() // noop tracer must be safe to use
}

func TestSetupStdoutExporter(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: true, Exporter: "stdout", SampleRatio: 1}, nil)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if !p.Enabled() {
		t.Error("expected Enabled after Setup with stdout exporter")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestSetupUnknownExporter(t *testing.T) {
	if _, err := Setup(context.Background(), Config{Enabled: true, Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func TestSamplerFor(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1.5, sdktrace.AlwaysSample().Description()},
		{1.0, sdktrace.AlwaysSample().Description()},
		{0.0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.25, sdktrace.TraceIDRatioBased(0.25).Description()},
	}
	for _, c := range cases {
		if got := samplerFor(c.ratio).Description(); got != c.want {
			t.Errorf("samplerFor(%v) = %q, want %q", c.ratio, got, c.want)
		}
	}
}

func TestSpanHelpers(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := swapGlobalProvider(tp)
	defer swapGlobalProvider(prev)

	_, appSpan := StartAppSpan(context.Background(), "mapsd", "start")
	RecordSuccess(appSpan)
	appSpan.End()

	_, procSpan := StartProcSpan(context.Background(), "mapsd", "locationd", "launch")
	RecordError(procSpan, errors.New("exec failed"), "launch failed")
	procSpan.End()

	ended := rec.Ended()
	if len(ended) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(ended))
	}
	if ended[0].Name() != "app.start" {
		t.Errorf("first span name = %q", ended[0].Name())
	}
	if ended[1].Name() != "proc.launch" {
		t.Errorf("second span name = %q", ended[1].Name())
	}
	if len(ended[1].Events()) == 0 {
		t.Error("expected an error event recorded on the proc span")
	}
}

func TestRecordHelpersNilSafe(t *testing.T) {
	RecordError(nil, errors.New("x"), "d")
	RecordSuccess(nil)
}
