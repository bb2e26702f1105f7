package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/auth"
	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/ton"
)

const CtxAddress = "address"

func AuthMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		claims, err := auth.ParseJWT(cfg.JWTSecret, tokenStr)
		if err != nil {
			log.Debug("jwt parse error", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		c.Locals(CtxAddress, claims.Address)
		return c.Next()
	}
}

// GetAddress returns the raw wallet address of the authenticated caller.
func GetAddress(c *fiber.Ctx) string {
	addr, _ := c.Locals(CtxAddress).(string)
	return addr
}

// AdminMiddleware requires one of the configured admin wallets. Admin
// addresses may be configured in any form and are compared in raw form.
func AdminMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	admins := make(map[string]struct{}, len(cfg.AdminAddresses))
	for _, a := range cfg.AdminAddresses {
		raw, err := ton.NormalizeAddress(a)
		if err != nil {
			log.Warn("ignoring invalid admin address", zap.String("address", a), zap.Error(err))
			continue
		}
		admins[raw] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		if _, ok := admins[GetAddress(c)]; !ok {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin access required"})
		}
		return c.Next()
	}
}
