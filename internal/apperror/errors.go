package apperror

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Error kinds. Every error returned by the service layer wraps exactly one of them.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrTimeout      = errors.New("timeout")
	ErrInternal     = errors.New("internal error")
)

// Error carries a kind, a message that is safe to show to clients and an
// optional underlying cause that is only logged.
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: ErrInvalidInput, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: ErrNotFound, Message: msg}
}

func Timeout(cause error) *Error {
	return &Error{Kind: ErrTimeout, Message: "Request timed out", Cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: ErrInternal, Message: "Internal server error", Cause: cause}
}

// Status maps an error to the HTTP status code the API responds with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return fiber.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrTimeout):
		return fiber.StatusGatewayTimeout
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// PublicMessage returns the text sent to the client. Internal causes never leak.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code < fiber.StatusInternalServerError {
		return fe.Message
	}
	return "Internal server error"
}
