package flow

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	outcomeSuccess      = "success"
	outcomeInputInvalid = "input_invalid"
	outcomeInvocation   = "invocation_failed"
	outcomeOutput       = "output_invalid"
)

type instruments struct {
	invocations metric.Int64Counter
	duration    metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider) *instruments {
	meter := mp.Meter(instrumentationName)

	var in instruments
	var err error
	in.invocations, err = meter.Int64Counter("cropguide.flow.invocations",
		metric.WithDescription("Flow invocations by flow and outcome."))
	if err != nil {
		in.invocations = noop.Int64Counter{}
	}
	in.duration, err = meter.Float64Histogram("cropguide.flow.duration",
		metric.WithDescription("Flow invocation latency."),
		metric.WithUnit("s"))
	if err != nil {
		in.duration = noop.Float64Histogram{}
	}
	return &in
}

func (in *instruments) record(ctx context.Context, flow, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("flow.name", flow),
		attribute.String("flow.outcome", outcome),
	)
	in.invocations.Add(ctx, 1, attrs)
	in.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func outcomeOf(err error) string {
	var (
		inErr  *InputValidationError
		outErr *OutputValidationError
	)
	switch {
	case err == nil:
		return outcomeSuccess
	case errors.As(err, &inErr):
		return outcomeInputInvalid
	case errors.As(err, &outErr):
		return outcomeOutput
	default:
		return outcomeInvocation
	}
}
