package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad input"), fiber.StatusBadRequest},
		{NotFound("session %s", "abc"), fiber.StatusNotFound},
		{Forbidden("not yours"), fiber.StatusForbidden},
		{Conflict("already closed"), fiber.StatusConflict},
	}
	for _, c := range cases {
		if c.err.StatusCode() != c.want {
			t.Fatalf("status for %q: got %d want %d", c.err.Message, c.err.StatusCode(), c.want)
		}
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("closed"))
	if !IsKind(err, KindConflict) {
		t.Fatalf("expected conflict kind through wrapping")
	}
	if IsKind(err, KindNotFound) {
		t.Fatalf("unexpected not-found kind")
	}
	if IsKind(errors.New("plain"), KindValidation) {
		t.Fatalf("plain error should not match")
	}
}

func TestToFiber(t *testing.T) {
	fe := ToFiber(NotFound("session missing"))
	var fiberErr *fiber.Error
	if !errors.As(fe, &fiberErr) || fiberErr.Code != fiber.StatusNotFound {
		t.Fatalf("unexpected fiber error: %v", fe)
	}

	fe = ToFiber(errors.New("boom"))
	if !errors.As(fe, &fiberErr) || fiberErr.Code != fiber.StatusInternalServerError {
		t.Fatalf("expected 500 for unknown error")
	}
}
