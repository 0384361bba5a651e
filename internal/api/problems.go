package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"cropguide/backend/internal/flow"
	"cropguide/backend/internal/repository"
	"cropguide/backend/internal/schema"
	"cropguide/backend/internal/services"
)

// MIMEProblemJSON is the RFC 7807 media type.
const MIMEProblemJSON = "application/problem+json"

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`

	// Flow names the flow that failed, when there is one.
	Flow string `json:"flow,omitempty"`
	// Stage is the flow stage at which the failure happened.
	Stage      flow.Stage         `json:"stage,omitempty"`
	Violations []schema.Violation `json:"violations,omitempty"`
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// problemFor maps an error returned by a handler to a problem document.
func problemFor(err error) ProblemDetails {
	var (
		httpErr *echo.HTTPError
		inErr   *flow.InputValidationError
		outErr  *flow.OutputValidationError
		invErr  *flow.InvocationError
	)

	p := ProblemDetails{Type: "about:blank", Detail: err.Error()}
	switch {
	case errors.As(err, &httpErr):
		p.Status = httpErr.Code
		p.Title = http.StatusText(httpErr.Code)
		if msg, ok := httpErr.Message.(string); ok {
			p.Detail = msg
		} else {
			p.Detail = http.StatusText(httpErr.Code)
		}

	case errors.As(err, &inErr):
		p.Status = http.StatusUnprocessableEntity
		p.Title = "Invalid input"
		p.Flow = inErr.Flow
		p.Stage = flow.StageValidatingInput
		if inErr.Err != nil {
			p.Violations = inErr.Err.Violations
		}

	case errors.As(err, &outErr):
		p.Status = http.StatusBadGateway
		p.Title = "Model response rejected"
		p.Flow = outErr.Flow
		p.Stage = flow.StageValidatingOutput
		if outErr.Err != nil {
			p.Violations = outErr.Err.Violations
		}

	case errors.As(err, &invErr):
		p.Status = http.StatusBadGateway
		p.Title = "Model invocation failed"
		if errors.Is(err, context.DeadlineExceeded) {
			p.Status = http.StatusGatewayTimeout
			p.Title = "Model invocation timed out"
		}
		p.Flow = invErr.Flow
		p.Stage = invErr.Stage

	case errors.Is(err, flow.ErrUnknownFlow):
		p.Status = http.StatusNotFound
		p.Title = "Unknown flow"

	case errors.Is(err, repository.ErrNotFound):
		p.Status = http.StatusNotFound
		p.Title = "Not found"

	case errors.Is(err, services.ErrInvalidName):
		p.Status = http.StatusUnprocessableEntity
		p.Title = "Invalid profile"
		p.Violations = []schema.Violation{{Path: "name", Rule: schema.RuleLength, Message: err.Error()}}

	default:
		p.Status = http.StatusInternalServerError
		p.Title = http.StatusText(http.StatusInternalServerError)
		p.Detail = "internal error"
	}
	return p
}

// ErrorHandler renders every handler error as an RFC 7807 problem.
func ErrorHandler(logger Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		p := problemFor(err)
		p.Instance = c.Request().URL.Path
		if p.Status >= http.StatusInternalServerError {
			logger.Error("request failed", "path", p.Instance, "status", p.Status, "error", err)
		} else {
			logger.Debug("request rejected", "path", p.Instance, "status", p.Status, "error", err)
		}

		c.Response().Header().Set(echo.HeaderContentType, MIMEProblemJSON)
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(p.Status)
		} else {
			err = c.JSON(p.Status, p)
		}
		if err != nil {
			logger.Error("failed to write problem response", "error", err)
		}
	}
}
