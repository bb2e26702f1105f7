package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		reqID, _ := c.Locals(CtxRequestID).(string)
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if addr := GetAddress(c); addr != "" {
			fields = append(fields, zap.String("address", addr))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
			log.Warn("request", fields...)
			return err
		}
		log.Info("request", fields...)
		return nil
	}
}
