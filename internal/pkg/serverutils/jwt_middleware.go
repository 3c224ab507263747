package serverutils

import (
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// LocalAttemptID is the fiber.Locals key holding the authenticated attempt id.
const LocalAttemptID = "attempt_id"

// TokenFromRequest reads the attempt token from the query (browsers opening a
// WebSocket cannot set headers) or from the Authorization header.
func TokenFromRequest(ctx *fiber.Ctx) string {
	if token := ctx.Query("token"); token != "" {
		return token
	}
	authHeader := ctx.Get("Authorization")
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}

func ParseAttemptToken(tokenStr, secret string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid token claims")
	}
	attemptID, ok := claims["attempt_id"].(string)
	if !ok || attemptID == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Token missing attempt_id")
	}
	return attemptID, nil
}

// AttemptJwtMiddleware authenticates the exam page of one attempt.
func AttemptJwtMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		tokenStr := TokenFromRequest(ctx)
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, "Missing token"))
		}
		attemptID, err := ParseAttemptToken(tokenStr, secret)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(ErrorResponse(fiber.StatusUnauthorized, err.Error()))
		}
		ctx.Locals(LocalAttemptID, attemptID)
		return ctx.Next()
	}
}
