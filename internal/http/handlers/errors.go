package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/http/dto"
	"github.com/milestone-escrow/backend/internal/middleware"
	"github.com/milestone-escrow/backend/internal/services"
)

// statusFor maps a service error to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrCampaignNotFound), errors.Is(err, escrow.ErrMilestoneNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized), errors.Is(err, escrow.ErrNotAContributor):
		return fiber.StatusForbidden
	case errors.Is(err, services.ErrInvalidProof):
		return fiber.StatusUnauthorized
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrInvalidMilestoneConfiguration),
		errors.Is(err, escrow.ErrInvalidCampaignParams):
		return fiber.StatusUnprocessableEntity
	case escrow.Code(err) != "":
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func fail(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	reqID, _ := c.Locals(middleware.CtxRequestID).(string)
	if status == fiber.StatusInternalServerError {
		log.Error("request failed",
			zap.String("request_id", reqID),
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(status).JSON(dto.ErrorResponse{Error: "internal server error", RequestID: reqID})
	}
	return c.Status(status).JSON(dto.ErrorResponse{Error: err.Error(), Code: escrow.Code(err), RequestID: reqID})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg})
}
