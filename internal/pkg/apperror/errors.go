package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeInvalidAmount  ErrorCode = "INVALID_AMOUNT"
	ErrCodeAlreadyFunded  ErrorCode = "ALREADY_FUNDED"
	ErrCodeNotOnboarded   ErrorCode = "NOT_ONBOARDED"
	ErrCodeProcessorError ErrorCode = "PROCESSOR_ERROR"
	ErrCodeConflict       ErrorCode = "CONFLICT"
	ErrCodeValidation     ErrorCode = "VALIDATION_ERROR"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeDatabaseError  ErrorCode = "DATABASE_ERROR"
)

type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeInvalidAmount, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeInvalidState, ErrCodeAlreadyFunded, ErrCodeNotOnboarded, ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeProcessorError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func CodeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsInvalidState(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeInvalidState
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

var (
	ErrProjectNotFound     = New(ErrCodeNotFound, "project not found")
	ErrMilestoneNotFound   = New(ErrCodeNotFound, "milestone not found")
	ErrProposalNotFound    = New(ErrCodeNotFound, "proposal not found")
	ErrTransactionNotFound = New(ErrCodeNotFound, "transaction not found")
	ErrDisputeNotFound     = New(ErrCodeNotFound, "dispute not found")
	ErrUserNotFound        = New(ErrCodeNotFound, "user not found")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "authentication required")
	ErrForbidden           = New(ErrCodeForbidden, "insufficient permissions")
	ErrInvalidCredentials  = New(ErrCodeUnauthorized, "invalid credentials")
)
