package apperr

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind classifies errors that cross the service boundary. Anything not
// covered here (routing-tier degradation in particular) stays internal and
// is reported through result warnings instead.
type Kind int

const (
	KindValidation Kind = iota
	KindNotFound
	KindForbidden
	KindConflict
)

// Error is a service-level error with an HTTP-mappable kind.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusCode maps the error kind to an HTTP status for the fiber edge.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindNotFound:
		return fiber.StatusNotFound
	case KindForbidden:
		return fiber.StatusForbidden
	case KindConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusBadRequest
	}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// ToFiber converts a service error into a fiber error so handlers can
// return it directly. Unknown errors become 500s.
func ToFiber(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return fiber.NewError(ae.StatusCode(), ae.Message)
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
