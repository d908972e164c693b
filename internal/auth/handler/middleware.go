package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

const localsAccountID = "account_id"

// RequireAuth verifies the Bearer access token and stores the account id
// for downstream handlers.
func (h *AuthHandler) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing bearer token"})
		}

		claims, err := h.tokens.VerifyAccessToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(localsAccountID, claims.AccountID)
		return c.Next()
	}
}

func accountIDFromCtx(c *fiber.Ctx) string {
	id, _ := c.Locals(localsAccountID).(string)
	return id
}
