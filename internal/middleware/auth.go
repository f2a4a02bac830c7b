package middleware

import (
	"strings"

	"github.com/classtrack/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ClaimsKey is the c.Locals key the verified claim bundle is stored under.
const ClaimsKey = "user"

type AuthMiddleware struct {
	secret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{
		secret: secret,
	}
}

// Authenticate verifies the bearer token and attaches its claims to the
// request. Missing token is 401; a present but invalid or expired token is
// 403 (the two failure modes are not distinguished further).
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Access denied. No token provided.",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Access denied. No token provided.",
			})
		}

		claims := &models.Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(m.secret), nil
		})
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid token.",
			})
		}

		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}

// RequirePermission gates a route on one permission name from the token's
// permission closure. No database lookup happens here; claims stay as
// issued until the token expires.
func (m *AuthMiddleware) RequirePermission(name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(ClaimsKey).(*models.Claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Access denied. No token provided.",
			})
		}

		if !claims.HasPermission(name) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied. Insufficient permissions.",
			})
		}
		return c.Next()
	}
}

// RequireRole is the legacy coarse gate on the single role label.
func (m *AuthMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := c.Locals(ClaimsKey).(*models.Claims)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Access denied. No token provided.",
			})
		}

		for _, role := range roles {
			if claims.Role == role {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Access denied. Insufficient permissions.",
		})
	}
}

// ClaimsFromCtx returns the verified claims attached by Authenticate.
func ClaimsFromCtx(c *fiber.Ctx) (*models.Claims, bool) {
	claims, ok := c.Locals(ClaimsKey).(*models.Claims)
	return claims, ok
}
