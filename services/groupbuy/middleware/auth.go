package middleware

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/domain"
	"github.com/sakashimaa/groupbuy/services/groupbuy/internal/service"
)

// Claims mirrors the access token issued by the auth service.
type Claims struct {
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	IsActivated bool   `json:"is_activated"`
	jwt.RegisteredClaims
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

func NewAuthMiddleware(secret []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed header"})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid header format"})
		}

		claims, err := ParseToken(parts[1], secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: Invalid token"})
		}

		c.Locals("userId", claims.UserID)
		c.Locals("isActivated", claims.IsActivated)
		c.Locals("role", claims.Role)
		c.SetUserContext(service.WithActor(c.UserContext(), claims.UserID))

		return c.Next()
	}
}

func NewIsActivatedMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		val := c.Locals("userId")
		userId, ok := val.(int64)
		if !ok || userId == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized: missed user"})
		}

		val = c.Locals("isActivated")
		isActivated, ok := val.(bool)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Internal error: auth flow violation"})
		}

		if !isActivated {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Account not activated",
				"code":  "EMAIL_NOT_VERIFIED",
			})
		}

		return c.Next()
	}
}

func NewAdminMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		if role != domain.RoleAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Admin access required",
				"code":  "FORBIDDEN",
			})
		}

		return c.Next()
	}
}

// UserID returns the authenticated user id set by NewAuthMiddleware.
func UserID(c *fiber.Ctx) int64 {
	id, _ := c.Locals("userId").(int64)
	return id
}
