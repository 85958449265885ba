// AngelaMos | 2026
// errors.go

package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Sentinel errors for the funnel's failure taxonomy. Services wrap these
// with context; handlers map them to envelope codes via errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrNoCredential      = errors.New("no credential")
	ErrProvisioning      = errors.New("provisioning failure")
	ErrUpstreamProvider  = errors.New("upstream provider failure")
	ErrDuplicateKey      = errors.New("duplicate key")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewAppError(err error, message string, status int, code string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: status,
		Code:       code,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func UnauthorizedError(message string) *AppError {
	if message == "" {
		message = "authentication required"
	}
	return NewAppError(
		ErrUnauthorized,
		message,
		http.StatusUnauthorized,
		"UNAUTHORIZED",
	)
}

func ForbiddenError(message string) *AppError {
	return NewAppError(ErrForbidden, message, http.StatusForbidden, "FORBIDDEN")
}

func InvalidCredentialError() *AppError {
	return NewAppError(
		ErrInvalidCredential,
		"session expired or invalid, please sign in again",
		http.StatusUnauthorized,
		"INVALID_CREDENTIAL",
	)
}

func UserNotFoundError() *AppError {
	return NewAppError(
		ErrUserNotFound,
		"user not found",
		http.StatusNotFound,
		"USER_NOT_FOUND",
	)
}

func InvalidStateError(state string) *AppError {
	return NewAppError(
		ErrInvalidState,
		fmt.Sprintf("unknown state %q", state),
		http.StatusBadRequest,
		"INVALID_STATE",
	)
}

func IllegalTransitionError(from, to string) *AppError {
	return NewAppError(
		ErrIllegalTransition,
		fmt.Sprintf("transition from %s to %s is not allowed", from, to),
		http.StatusConflict,
		"ILLEGAL_TRANSITION",
	)
}

func PersistenceError(err error) *AppError {
	return NewAppError(
		fmt.Errorf("%w: %w", ErrPersistence, err),
		"state update could not be committed",
		http.StatusServiceUnavailable,
		"PERSISTENCE_ERROR",
	)
}

func UpstreamProviderError(provider string) *AppError {
	return NewAppError(
		ErrUpstreamProvider,
		fmt.Sprintf("%s provider is unavailable", provider),
		http.StatusBadGateway,
		"UPSTREAM_PROVIDER_ERROR",
	)
}

func FormatValidationError(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return "invalid request"
	}

	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, fmt.Sprintf(
			"field '%s' failed validation '%s'",
			strings.ToLower(fieldErr.Field()),
			fieldErr.Tag(),
		))
	}

	return strings.Join(messages, "; ")
}
