package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	ctx1, s1 := StartSpan(context.Background(), "turn")
	ctx2, s2 := StartSpan(context.Background(), "turn")
	defer s1.End()
	defer s2.End()

	a, b := CorrelationID(ctx1), CorrelationID(ctx2)
	if len(a) != 32 || strings.Trim(a, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q is not a 32 char hex trace ID", a)
	}
	if a == b {
		t.Error("independent root spans share a trace ID")
	}
}

func TestEndSpan_RecordsError(t *testing.T) {
	exp := useTestTracer(t)

	_, ok := StartSpan(context.Background(), "gateway.complete")
	EndSpan(ok, nil)
	_, bad := StartSpan(context.Background(), "gateway.transcribe")
	EndSpan(bad, errors.New("upstream down"))

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	if spans[0].Status.Code != codes.Unset {
		t.Errorf("successful span status = %v, want unset", spans[0].Status.Code)
	}
	if spans[1].Status.Code != codes.Error || spans[1].Status.Description != "upstream down" {
		t.Errorf("failed span status = %+v", spans[1].Status)
	}
	if len(spans[1].Events) == 0 {
		t.Error("failed span has no recorded error event")
	}
}

func TestLogger_IncludesTraceID(t *testing.T) {
	useTestTracer(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })

	ctx, span := StartSpan(context.Background(), "session")
	defer span.End()

	Logger(ctx).Info("with span")
	if !strings.Contains(buf.String(), `"trace_id":"`+CorrelationID(ctx)+`"`) {
		t.Errorf("log line missing trace_id: %s", buf.String())
	}

	buf.Reset()
	Logger(context.Background()).Info("without span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log line without span has trace_id: %s", buf.String())
	}
}
