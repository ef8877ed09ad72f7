package orchestrator

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/eyemath/solver/backend"
	"github.com/hrygo/eyemath/solver/normalize"
	"github.com/hrygo/eyemath/solver/quadratic"
	"github.com/hrygo/eyemath/solver/render"
)

// ErrorClass is the category of a pipeline failure. It labels metrics and logs.
type ErrorClass int

const (
	ErrorClassNone ErrorClass = iota
	// ErrorClassConversionDegraded marks markup passed through unconverted. It is
	// only ever logged.
	ErrorClassConversionDegraded
	// ErrorClassClassificationAmbiguous is never produced; Classify is total.
	ErrorClassClassificationAmbiguous
	ErrorClassVariableExtraction
	ErrorClassBackendTimeout
	ErrorClassBackendFailure
	ErrorClassRenderFailure
	ErrorClassUnknownLimitPattern
	ErrorClassCancelled
	ErrorClassInternal
)

// String returns the string representation of ErrorClass.
func (c ErrorClass) String() string {
	switch c {
	case ErrorClassNone:
		return "none"
	case ErrorClassConversionDegraded:
		return "conversion_degraded"
	case ErrorClassClassificationAmbiguous:
		return "classification_ambiguous"
	case ErrorClassVariableExtraction:
		return "variable_extraction"
	case ErrorClassBackendTimeout:
		return "backend_timeout"
	case ErrorClassBackendFailure:
		return "backend_failure"
	case ErrorClassRenderFailure:
		return "render_failure"
	case ErrorClassUnknownLimitPattern:
		return "unknown_limit_pattern"
	case ErrorClassCancelled:
		return "cancelled"
	default:
		return "internal"
	}
}

// Classify maps err to its class.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ErrorClassNone
	case errors.Is(err, backend.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassBackendTimeout
	case errors.Is(err, context.Canceled):
		return ErrorClassCancelled
	case errors.Is(err, quadratic.ErrNoVariable), errors.Is(err, quadratic.ErrMultipleVariables):
		return ErrorClassVariableExtraction
	case errors.Is(err, normalize.ErrUnknownLimitPattern):
		return ErrorClassUnknownLimitPattern
	case errors.Is(err, render.ErrRender):
		return ErrorClassRenderFailure
	case errors.Is(err, backend.ErrBackend):
		return ErrorClassBackendFailure
	default:
		return ErrorClassInternal
	}
}
