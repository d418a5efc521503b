package state

import (
	"context"
	"errors"

	"renderqa/internal/compare"
	"renderqa/internal/config"
	"renderqa/internal/reference"
	"renderqa/internal/render"
)

// failureFromError classifies err into the run failure taxonomy. Unknown
// errors are system failures.
func failureFromError(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}
	msg := err.Error()

	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return Failure{FailureClass: FailureClassConfiguration, ErrorCode: "ConfigurationError", ErrorMessage: msg}, nil
	}
	if errors.Is(err, render.ErrInvalidSpec) {
		return Failure{FailureClass: FailureClassConfiguration, ErrorCode: "InvalidJobSpec", ErrorMessage: msg}, nil
	}
	if errors.Is(err, render.ErrRendererNotFound) {
		return Failure{FailureClass: FailureClassConfiguration, ErrorCode: "RendererNotFound", ErrorMessage: msg}, nil
	}
	if errors.Is(err, reference.ErrNotFound) {
		return Failure{FailureClass: FailureClassReference, ErrorCode: "ReferenceNotFound", ErrorMessage: msg}, nil
	}

	var capErr *reference.CaptureError
	if errors.As(err, &capErr) {
		return Failure{
			FailureClass: FailureClassRender,
			ErrorCode:    "CaptureFailed",
			ErrorMessage: msg,
			Frames:       append([]int(nil), capErr.Frames...),
			Retryable:    true,
		}, nil
	}
	var timeout *render.TimeoutError
	if errors.As(err, &timeout) {
		return Failure{FailureClass: FailureClassRender, ErrorCode: "RenderTimeout", ErrorMessage: msg, Frames: []int{timeout.Frame}, Retryable: true}, nil
	}
	var procErr *render.ProcessError
	if errors.As(err, &procErr) {
		return Failure{FailureClass: FailureClassRender, ErrorCode: "RenderProcessError", ErrorMessage: msg, Frames: []int{procErr.Frame}, Retryable: true}, nil
	}
	var cmpErr *compare.Error
	if errors.As(err, &cmpErr) {
		return Failure{FailureClass: FailureClassComparison, ErrorCode: "ComparisonError", ErrorMessage: msg}, nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Failure{FailureClass: FailureClassSystem, ErrorCode: "Interrupted", ErrorMessage: msg, Retryable: true}, nil
	}
	return Failure{FailureClass: FailureClassSystem, ErrorCode: "UnknownError", ErrorMessage: msg, Retryable: true}, nil
}
