package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/learnizone/enrollcore/pkg/enrollment"
)

// retryAfterSeconds is advertised on 503 responses
const retryAfterSeconds = "1"

// Response is the envelope for every API response
type Response struct {
	Success bool         `json:"success"`
	Data    any          `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail describes a failed request
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *fiber.Ctx, status int, data any) error {
	return c.Status(status).JSON(Response{Success: true, Data: data})
}

// statusFor maps an error class to an HTTP status
func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, enrollment.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, enrollment.ErrAlreadyEnrolled), errors.Is(err, enrollment.ErrNotCompleted):
		return fiber.StatusConflict
	case errors.Is(err, enrollment.ErrNotEnrolled):
		return fiber.StatusNotFound
	case errors.Is(err, enrollment.ErrInvalidArgument):
		return fiber.StatusBadRequest
	case errors.Is(err, enrollment.ErrTransactionConflict), errors.Is(err, enrollment.ErrStoreUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

func errorCode(err error) string {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return "not_found"
		case fiber.StatusMethodNotAllowed:
			return "method_not_allowed"
		case fiber.StatusBadRequest:
			return "invalid_argument"
		}
		return "internal"
	}
	return enrollment.Code(err)
}

func errorResponse(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusServiceUnavailable {
		c.Set(fiber.HeaderRetryAfter, retryAfterSeconds)
	}
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		message = "internal error"
	}
	return c.Status(status).JSON(Response{
		Success: false,
		Error:   &ErrorDetail{Code: errorCode(err), Message: message},
	})
}

// errorHandler renders errors that escape handlers, such as unknown routes
func errorHandler(c *fiber.Ctx, err error) error {
	return errorResponse(c, err)
}
