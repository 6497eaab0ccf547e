package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/pkg/utils"
)

const UserIDKey = "user_id"

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uuid.UUID, error)
}

func AuthRequired(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		tokenString, ok := utils.BearerToken(authHeader)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		userID, err := verifier.VerifyToken(c.UserContext(), tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(UserIDKey, userID)

		return c.Next()
	}
}

// UserID returns the caller set by AuthRequired.
func UserID(c *fiber.Ctx) (uuid.UUID, bool) {
	userID, ok := c.Locals(UserIDKey).(uuid.UUID)
	return userID, ok && userID != uuid.Nil
}
