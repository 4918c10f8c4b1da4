package utils

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// MissingContactError: the thread's company has no contact with a
// deliverable email, so there is nothing to draft or send to.
type MissingContactError struct {
	Reason string
}

func (e *MissingContactError) Error() string { return e.Reason }

// InsufficientSlotsError: a scheduling reply needs at least two proposed
// time slots.
type InsufficientSlotsError struct {
	Given int
}

func (e *InsufficientSlotsError) Error() string {
	return fmt.Sprintf("scheduling reply requires 2-5 proposed slots, got %d", e.Given)
}

// InvalidTransitionError: the requested thread status change is not
// permitted from the current state.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition thread from %q to %q", e.From, e.To)
}

// ImmutableStateError: an attempt to edit or re-send a message that has
// already been sent.
type ImmutableStateError struct {
	Reason string
}

func (e *ImmutableStateError) Error() string { return e.Reason }

// MissingCredentialError: a send was attempted without a transport
// credential. Raised before any external I/O.
type MissingCredentialError struct{}

func (e *MissingCredentialError) Error() string {
	return "missing Gmail credential: supply an X-Gmail-Token header"
}

// SendError: the email transport rejected or failed a dispatch.
type SendError struct {
	Reason string
	Err    error
}

func (e *SendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("send failed: %s: %v", e.Reason, e.Err)
	}
	return "send failed: " + e.Reason
}

func (e *SendError) Unwrap() error { return e.Err }

// ExternalServiceError: a text-generation, discovery, or other upstream
// call failed or timed out. Always recoverable by retry.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s service error: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// NotFoundError: a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// StatusFor maps a domain error to an HTTP status code.
func StatusFor(err error) int {
	var (
		notFound     *NotFoundError
		missing      *MissingContactError
		slots        *InsufficientSlotsError
		transition   *InvalidTransitionError
		immutable    *ImmutableStateError
		noCredential *MissingCredentialError
		send         *SendError
		external     *ExternalServiceError
	)
	switch {
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &noCredential):
		return fiber.StatusUnauthorized
	case errors.As(err, &immutable), errors.As(err, &transition):
		return fiber.StatusConflict
	case errors.As(err, &missing), errors.As(err, &slots):
		return fiber.StatusBadRequest
	case errors.As(err, &send), errors.As(err, &external):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorResponse writes a domain error as JSON with the mapped status.
// Single-action failures carry the human-readable reason inline so the UI
// can show a retry affordance.
func ErrorResponse(c *fiber.Ctx, err error) error {
	return c.Status(StatusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
