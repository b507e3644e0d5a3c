// Package apperror carries coded application errors from repositories up to
// the HTTP layer.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap returns a copy of e carrying err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{Code: e.Code, Message: e.Message, Err: err}
}

// WithMessage returns a copy of e with a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{Code: e.Code, Message: message, Err: e.Err}
}

// Remote classifies a store error: AppErrors pass through unchanged, anything
// else becomes ErrRemoteFailure with err as its cause.
func Remote(err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	return ErrRemoteFailure.Wrap(err)
}

// Is reports whether err is an AppError with the same code as target.
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeRemoteFailure
}

func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps an error onto the response status the handlers write.
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeInvalidParams:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

const (
	CodeUnauthenticated = 10001
	CodeForbidden       = 10003

	CodeInvalidParams = 11001
	CodeNotFound      = 11004

	CodeRemoteFailure = 50001
)

var (
	ErrUnauthenticated = New(CodeUnauthenticated, "not authenticated")
	ErrForbidden       = New(CodeForbidden, "forbidden")
	ErrInvalidParams   = New(CodeInvalidParams, "invalid parameters")
	ErrNotFound        = New(CodeNotFound, "not found")
	ErrRemoteFailure   = New(CodeRemoteFailure, "remote store failure")
)
