package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestOperationStepsAreChildren(t *testing.T) {
	tracer, recorder := newTestTracer()
	op, err := Start(context.Background(), tracer, "backup.restore", []string{"archive", "restore"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := op.Step("archive", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}
	root := findSpan(spans, "backup.restore")
	child := findSpan(spans, "archive")
	if root == nil || child == nil {
		t.Fatal("missing span")
	}
	if len(root.Events()) == 0 || root.Events()[0].Name != PlanEventName {
		t.Fatal("root span missing plan event")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatal("step span is not a child of the operation span")
	}
}

func TestOperationFailedStepMarksError(t *testing.T) {
	tracer, recorder := newTestTracer()
	op, err := Start(context.Background(), tracer, "container.up", []string{"compose"})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("exit 1")
	if err := op.Step("compose", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("Step() error = %v, want %v", err, boom)
	}
	op.End(boom)

	for _, s := range recorder.Ended() {
		if s.Status().Code != codes.Error {
			t.Fatalf("span %s status = %v, want error", s.Name(), s.Status().Code)
		}
	}
}

func TestStartRejectsDuplicateSteps(t *testing.T) {
	tracer, _ := newTestTracer()
	if _, err := Start(context.Background(), tracer, "x", []string{"a", "a"}); err == nil {
		t.Fatal("Start() error = nil, want duplicate step error")
	}
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}
