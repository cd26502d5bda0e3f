package middleware

import (
	"log"
	"strings"

	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired validates the bearer token and injects the authenticated
// customer's identity into the request context. Handlers downstream rely on
// user_id being a non-empty string.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			log.Printf("JWT validation failed: %v", err)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
				"error":   err.Error(),
			})
		}

		userID, _ := claims["user_id"].(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Token carries no user identity",
			})
		}
		username, _ := claims["username"].(string)
		name, _ := claims["name"].(string)

		c.Locals("user_id", userID)
		c.Locals("username", username)
		c.Locals("name", name)

		return c.Next()
	}
}

// AdminRequired gates store-operator routes (fulfilment status updates) on a
// configured set of admin usernames. Must run after AuthRequired.
func AdminRequired(adminUsernames []string) fiber.Handler {
	admins := make(map[string]struct{}, len(adminUsernames))
	for _, u := range adminUsernames {
		if u = strings.TrimSpace(u); u != "" {
			admins[u] = struct{}{}
		}
	}
	return func(c *fiber.Ctx) error {
		username, _ := c.Locals("username").(string)
		if _, ok := admins[username]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"message": "Admin privileges required",
			})
		}
		return c.Next()
	}
}
