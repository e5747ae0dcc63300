package services

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
)

// ServiceError carries a stable machine-readable code alongside the HTTP
// status it maps to. Handlers render it as {"error": code, "message": ...}
// so clients can decide between retry and terminal UI states.
type ServiceError struct {
	Code    string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

func Validation(msg string) *ServiceError {
	return &ServiceError{Code: "validation_error", Status: fiber.StatusBadRequest, Message: msg}
}

func NotFound(msg string) *ServiceError {
	return &ServiceError{Code: "not_found", Status: fiber.StatusNotFound, Message: msg}
}

// NotActive covers any operation attempted outside the competition's
// allowed lifecycle window (submitting to a non-active competition,
// distributing a non-completed one).
func NotActive(msg string) *ServiceError {
	return &ServiceError{Code: "not_active", Status: fiber.StatusConflict, Message: msg}
}

func Conflict(msg string) *ServiceError {
	return &ServiceError{Code: "conflict", Status: fiber.StatusConflict, Message: msg}
}

func Upstream(msg string) *ServiceError {
	return &ServiceError{Code: "upstream_error", Status: fiber.StatusBadGateway, Message: msg}
}

// ErrEmptyLeaderboard is returned by prize calculation when a competition
// has no scored participants.
var ErrEmptyLeaderboard = &ServiceError{
	Code:    "empty_leaderboard",
	Status:  fiber.StatusConflict,
	Message: "competition has no participants to pay out",
}

// respondError maps a service error onto the wire. Unknown errors are
// logged and collapsed to a generic 500 so internals never leak.
func respondError(c *fiber.Ctx, err error) error {
	var se *ServiceError
	if errors.As(err, &se) {
		return c.Status(se.Status).JSON(fiber.Map{"error": se.Code, "message": se.Message})
	}
	log.Printf("[API] unexpected error on %s: %v", c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   "internal_error",
		"message": "something went wrong",
	})
}
