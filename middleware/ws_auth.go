// health-competition-system/middleware/ws_auth.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// WSAuthMiddleware validates the `token` query parameter on websocket
// upgrade requests. Browsers cannot set an Authorization header on a
// websocket handshake, so the token travels in the query string.
//
// Usage:
//   app.Get("/ws/leaderboard/:competitionId", middleware.WSAuthMiddleware(), hub.ServeWS())
func WSAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "missing token in query",
			})
		}

		userID, err := ValidateToken(accessToken)
		if err != nil {
			log.Printf("[WSAuth] ❌ token rejected on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}
