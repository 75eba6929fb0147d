package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// TraceContext is a W3C trace context detached from its context.Context so
// it can be stored with a queued row and resumed by whoever processes it.
type TraceContext struct {
	Parent string
	State  string
}

func Capture(ctx context.Context) TraceContext {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return TraceContext{Parent: carrier["traceparent"], State: carrier["tracestate"]}
}

// Resume returns ctx carrying tc as its remote parent. An empty tc leaves ctx unchanged.
func (tc TraceContext) Resume(ctx context.Context) context.Context {
	if tc.Parent == "" {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier{
		"traceparent": tc.Parent,
		"tracestate":  tc.State,
	})
}
