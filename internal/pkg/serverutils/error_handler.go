package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// StatusMapper resolves a domain error to an HTTP status; ok=false passes it on.
type StatusMapper func(err error) (status int, ok bool)

// ErrorHandlerMiddleware turns errors returned by handlers into error envelopes.
// Unmapped errors become 500.
func ErrorHandlerMiddleware(mappers ...StatusMapper) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var vErr *ValidationError
		if errors.As(err, &vErr) {
			res := ErrorResponse(fiber.StatusBadRequest, "Validation failed")
			res.Data = vErr.Fields
			return ctx.Status(fiber.StatusBadRequest).JSON(res)
		}

		var fErr *fiber.Error
		if errors.As(err, &fErr) {
			return ctx.Status(fErr.Code).JSON(ErrorResponse(fErr.Code, fErr.Message))
		}

		for _, m := range mappers {
			if code, ok := m(err); ok {
				return ctx.Status(code).JSON(ErrorResponse(code, err.Error()))
			}
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse(fiber.StatusInternalServerError, err.Error()))
	}
}
