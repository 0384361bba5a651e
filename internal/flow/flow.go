// Package flow runs named, schema-typed prompt flows.
//
// A flow validates its input, renders its prompt template, calls the model
// once and validates the structured answer before returning it. Each call is
// independent: a Flow holds no per-invocation state and is safe for
// concurrent use.
package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"cropguide/backend/internal/model"
	"cropguide/backend/internal/prompt"
	"cropguide/backend/internal/schema"
)

const instrumentationName = "cropguide/backend/internal/flow"

// Definition describes a flow. It is immutable once compiled by New.
type Definition struct {
	Name        string
	Description string
	Input       *schema.Shape
	Output      *schema.Shape
	// System is an optional system instruction sent with every call.
	System string
	// Prompt is the template text; see package prompt for its syntax.
	Prompt string
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Flow is a compiled, callable Definition.
type Flow struct {
	def    Definition
	tmpl   *prompt.Template
	client model.Client

	logger  Logger
	tracer  trace.Tracer
	metrics *instruments
}

// Option configures a Flow.
type Option func(*options)

type options struct {
	logger         Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithLogger sets the logger used for invocation records.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// New compiles def against client. Template placeholders are checked against
// the input shape here, so authoring errors surface at startup.
func New(def Definition, client model.Client, opts ...Option) (*Flow, error) {
	if def.Name == "" {
		return nil, errors.New("flow definition has no name")
	}
	if def.Input == nil || def.Output == nil {
		return nil, fmt.Errorf("flow %s: input and output shapes are required", def.Name)
	}
	if client == nil {
		return nil, fmt.Errorf("flow %s: model client is required", def.Name)
	}

	tmpl, err := prompt.Compile(def.Name, def.Prompt, def.Input)
	if err != nil {
		return nil, err
	}

	o := &options{
		logger:         nopLogger{},
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(o)
	}

	return &Flow{
		def:     def,
		tmpl:    tmpl,
		client:  client,
		logger:  o.logger,
		tracer:  o.tracerProvider.Tracer(instrumentationName),
		metrics: newInstruments(o.meterProvider),
	}, nil
}

// Name returns the flow name.
func (f *Flow) Name() string { return f.def.Name }

// Definition returns the flow definition.
func (f *Flow) Definition() Definition { return f.def }

// Run invokes the flow. input may be a record (map[string]any) or any value
// that encodes to a JSON object, such as a request struct.
//
// The returned error is an *InputValidationError, *InvocationError or
// *OutputValidationError; each is terminal for this call.
func (f *Flow) Run(ctx context.Context, input any) (map[string]any, error) {
	start := time.Now()
	ctx, span := f.tracer.Start(ctx, "flow "+f.def.Name,
		trace.WithAttributes(attribute.String("flow.name", f.def.Name)))
	defer span.End()

	out, err := f.run(ctx, span, input)

	elapsed := time.Since(start)
	f.metrics.record(ctx, f.def.Name, outcomeOf(err), elapsed)

	if err != nil {
		stage, _ := StageOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		f.logger.Error("flow failed", "flow", f.def.Name, "stage", stage, "duration", elapsed, "error", err)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	f.logger.Info("flow completed", "flow", f.def.Name, "duration", elapsed)
	return out, nil
}

func (f *Flow) run(ctx context.Context, span trace.Span, input any) (map[string]any, error) {
	span.AddEvent(string(StageValidatingInput))
	record, err := f.def.Input.Validate(toRecord(input))
	if err != nil {
		return nil, &InputValidationError{Flow: f.def.Name, Err: asValidationError(err)}
	}

	span.AddEvent(string(StageRendering))
	payload, err := f.tmpl.Render(record)
	if err != nil {
		return nil, &InvocationError{Flow: f.def.Name, Stage: StageRendering, Err: err}
	}

	span.AddEvent(string(StageInvoking), trace.WithAttributes(attribute.Int("flow.media_parts", len(payload.Media))))
	f.logger.Debug("invoking model", "flow", f.def.Name, "prompt_chars", len(payload.Text), "media", len(payload.Media))
	resp, err := f.client.Generate(ctx, &model.Request{
		Flow:   f.def.Name,
		System: f.def.System,
		Prompt: payload.Text,
		Media:  payload.Media,
		Output: f.def.Output,
	})
	if err != nil {
		return nil, &InvocationError{Flow: f.def.Name, Stage: StageInvoking, Err: err}
	}
	if resp == nil {
		return nil, &InvocationError{Flow: f.def.Name, Stage: StageInvoking, Err: model.ErrEmptyResponse}
	}

	span.AddEvent(string(StageValidatingOutput))
	result, err := f.def.Output.Validate(resp.Value)
	if err != nil {
		return nil, &OutputValidationError{Flow: f.def.Name, Err: asValidationError(err), Raw: resp.Raw}
	}
	return result, nil
}

// toRecord turns a typed request into a generic record. Values that do not
// encode to JSON are returned as-is and rejected by validation.
func toRecord(input any) any {
	switch v := input.(type) {
	case map[string]any:
		return v
	case nil:
		return nil
	}
	b, err := json.Marshal(input)
	if err != nil {
		return input
	}
	return gjson.ParseBytes(b).Value()
}

func asValidationError(err error) *schema.ValidationError {
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return verr
	}
	return &schema.ValidationError{Violations: []schema.Violation{{Path: "$", Rule: schema.RuleType, Message: err.Error()}}}
}
