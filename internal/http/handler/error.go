package handler

import (
	"github.com/gofiber/fiber/v2"

	"userapi/internal/apperr"
	"userapi/internal/http/middleware"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
//
// Parameters:
// - status: HTTP status code to return
// - code: machine-readable short error code (e.g., "UNAUTHORIZED", "NOT_FOUND")
// - message: human-readable safe message (no internal details)
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

var statusCodes = map[int]string{
	fiber.StatusBadRequest:       "BAD_REQUEST",
	fiber.StatusUnauthorized:     "UNAUTHORIZED",
	fiber.StatusForbidden:        "FORBIDDEN",
	fiber.StatusNotFound:         "NOT_FOUND",
	fiber.StatusConflict:         "CONFLICT",
	fiber.StatusMethodNotAllowed: "METHOD_NOT_ALLOWED",
}

var statusMessages = map[int]string{
	fiber.StatusBadRequest:       "bad request",
	fiber.StatusUnauthorized:     "unauthorized",
	fiber.StatusForbidden:        "forbidden",
	fiber.StatusNotFound:         "resource not found",
	fiber.StatusConflict:         "conflict",
	fiber.StatusMethodNotAllowed: "method not allowed",
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses. Taxonomy errors keep their safe message; everything else
// degrades to a generic message for its status so internals never leak.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.Status(err)
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}

		// Bodies over the server limit are rejected by fasthttp before any
		// handler runs; surface them as the upload size error.
		if status == fiber.StatusRequestEntityTooLarge {
			return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "File size exceeded the limit")
		}

		code, ok := statusCodes[status]
		if !ok {
			code = "INTERNAL_ERROR"
		}

		message := apperr.MessageOf(err)
		if message == "" || code == "INTERNAL_ERROR" {
			message = statusMessages[status]
			if message == "" {
				message = "internal server error"
			}
		}

		return writeError(c, status, code, message)
	}
}
