package utils

import (
	"errors"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&NotFoundError{Entity: "thread", ID: 1}, fiber.StatusNotFound},
		{&MissingCredentialError{}, fiber.StatusUnauthorized},
		{&ImmutableStateError{Reason: "sent"}, fiber.StatusConflict},
		{&InvalidTransitionError{From: "passed", To: "draft"}, fiber.StatusConflict},
		{&MissingContactError{Reason: "no contact"}, fiber.StatusBadRequest},
		{&InsufficientSlotsError{Given: 1}, fiber.StatusBadRequest},
		{&SendError{Reason: "rejected"}, fiber.StatusBadGateway},
		{&ExternalServiceError{Service: "search", Err: errors.New("timeout")}, fiber.StatusBadGateway},
		{errors.New("anything else"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "StatusFor(%v)", tc.err)
	}

	// Wrapped domain errors still map.
	wrapped := &ExternalServiceError{Service: "llm", Err: &SendError{Reason: "inner"}}
	assert.Equal(t, fiber.StatusBadGateway, StatusFor(wrapped))
}
