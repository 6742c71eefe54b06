package common

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeParsing   ErrorCode = "parsing_error"
	CodeAPI       ErrorCode = "api_error"
	CodeNetwork   ErrorCode = "network_error"
	CodeExtension ErrorCode = "extension_error"
	CodeConfig    ErrorCode = "configuration_error"
	CodeInjection ErrorCode = "injection_error"
	CodeUnknown   ErrorCode = "unknown_error"
)

// AppError carries a structured code for the error reporter.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func NewAppError(code ErrorCode, msg string, err error) *AppError {
	return &AppError{Code: code, Message: msg, Err: err}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) ErrorCode {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}
