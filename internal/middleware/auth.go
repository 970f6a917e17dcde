package middleware

import (
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/config"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/dto"
	"github.com/ahmetcoskunkizilkaya/taskboard/internal/identity"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// TokenChecker rejects tokens that were revoked after being signed.
type TokenChecker interface {
	CheckToken(tokenID uuid.UUID, userID uint) error
}

func JWTProtected(cfg *config.Config, tokens TokenChecker) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ContextKey: identity.LocalsKey,
		SuccessHandler: func(c *fiber.Ctx) error {
			userID, err := identity.CallerID(c)
			if err != nil {
				return unauthorized(c)
			}
			tokenID, err := identity.TokenID(c)
			if err != nil {
				return unauthorized(c)
			}
			if err := tokens.CheckToken(tokenID, userID); err != nil {
				return unauthorized(c)
			}
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c)
		},
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
		Error:   true,
		Message: "Unauthenticated.",
	})
}
