package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/milestone-escrow/backend/internal/reqctx"
)

const (
	CtxRequestID       = "request_id"
	maxRequestIDLength = 64
)

// RequestIDMiddleware accepts a caller supplied X-Request-ID or mints one,
// and puts it into the user context so audit entries written by the request
// carry it.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		c.Locals(CtxRequestID, reqID)
		c.SetUserContext(reqctx.WithRequestID(c.UserContext(), reqID))
		c.Set(fiber.HeaderXRequestID, reqID)
		return c.Next()
	}
}
