// Package telemetry wraps fleet operations in OpenTelemetry spans: one root
// span per operation announcing its planned steps, and one child span per step.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	PlanEventName = "craftfleet.plan"
	PlanStepsKey  = "craftfleet.plan.steps"
	EnvKey        = "craftfleet.env"
	WorldKey      = "craftfleet.world"
	ContainerKey  = "craftfleet.container"
)

type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

// Start opens the root span of an operation. steps lists the step ids the
// operation intends to run, in order.
func Start(ctx context.Context, tracer trace.Tracer, name string, steps []string, attrs ...attribute.KeyValue) (*Operation, error) {
	if tracer == nil {
		return nil, fmt.Errorf("start operation %s: tracer is required", name)
	}
	seen := make(map[string]struct{}, len(steps))
	for i, s := range steps {
		id := strings.TrimSpace(s)
		if id == "" {
			return nil, fmt.Errorf("start operation %s: step %d has empty id", name, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("start operation %s: duplicate step id %q", name, id)
		}
		seen[id] = struct{}{}
	}

	spanCtx, span := tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	if len(steps) > 0 {
		span.AddEvent(PlanEventName, trace.WithAttributes(attribute.StringSlice(PlanStepsKey, steps)))
	}
	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, nil
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

// Step runs fn inside a child span named id. A failing step marks its span
// as errored and returns the error unchanged.
func (o *Operation) Step(id string, fn func(context.Context) error) error {
	if o == nil || o.tracer == nil {
		return fn(context.Background())
	}
	ctx, span := o.tracer.Start(o.ctx, id)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

// End closes the root span, recording err when non-nil.
func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}
