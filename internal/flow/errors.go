package flow

import (
	"errors"
	"fmt"

	"cropguide/backend/internal/schema"
)

// Stage is a step of a flow invocation.
type Stage string

const (
	StageValidatingInput  Stage = "validating-input"
	StageRendering        Stage = "rendering"
	StageInvoking         Stage = "invoking"
	StageValidatingOutput Stage = "validating-output"
)

// ErrUnknownFlow is returned when a catalog has no flow with the requested name.
var ErrUnknownFlow = errors.New("unknown flow")

// InputValidationError reports that the caller's input does not match the
// flow's input shape. No model call was made.
type InputValidationError struct {
	Flow string
	Err  *schema.ValidationError
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("flow %s: invalid input: %v", e.Flow, e.Err)
}

func (e *InputValidationError) Unwrap() error { return e.Err }

// FailedStage implements StageError.
func (e *InputValidationError) FailedStage() Stage { return StageValidatingInput }

// InvocationError reports that the prompt could not be rendered or the model
// call failed.
type InvocationError struct {
	Flow  string
	Stage Stage
	Err   error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("flow %s: %s failed: %v", e.Flow, e.Stage, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// FailedStage implements StageError.
func (e *InvocationError) FailedStage() Stage { return e.Stage }

// OutputValidationError reports that the model answered with a payload that
// does not match the flow's output shape.
type OutputValidationError struct {
	Flow string
	Err  *schema.ValidationError
	// Raw is the unvalidated model answer, kept for diagnostics.
	Raw string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("flow %s: model response rejected: %v", e.Flow, e.Err)
}

func (e *OutputValidationError) Unwrap() error { return e.Err }

// FailedStage implements StageError.
func (e *OutputValidationError) FailedStage() Stage { return StageValidatingOutput }

// StageError is implemented by every error a flow invocation returns.
type StageError interface {
	error
	FailedStage() Stage
}

// StageOf returns the stage at which err was raised.
func StageOf(err error) (Stage, bool) {
	var se StageError
	if errors.As(err, &se) {
		return se.FailedStage(), true
	}
	return "", false
}
