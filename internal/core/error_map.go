package core

import (
	"context"
	"errors"
	"os/exec"
)

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

type ErrorInfo struct {
	Code    string
	Message string
}

func MapError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: "internal_error", Message: "internal error"}
	}
	msg := err.Error()

	var coded CodedError
	if errors.As(err, &coded) {
		return ErrorInfo{Code: coded.ErrorCode(), Message: msg}
	}

	switch {
	case errors.Is(err, exec.ErrNotFound):
		return ErrorInfo{Code: "command_not_found", Message: msg}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorInfo{Code: "timeout", Message: msg}
	case errors.Is(err, context.Canceled):
		return ErrorInfo{Code: "canceled", Message: msg}
	default:
		return ErrorInfo{Code: "internal_error", Message: msg}
	}
}
