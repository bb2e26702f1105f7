package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"

	"github.com/milestone-escrow/backend/internal/escrow"
	"github.com/milestone-escrow/backend/internal/services"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{services.ErrCampaignNotFound, fiber.StatusNotFound},
		{fmt.Errorf("%w: 7", escrow.ErrMilestoneNotFound), fiber.StatusNotFound},
		{escrow.ErrUnauthorized, fiber.StatusForbidden},
		{escrow.ErrNotAContributor, fiber.StatusForbidden},
		{services.ErrInvalidProof, fiber.StatusUnauthorized},
		{escrow.ErrInvalidAmount, fiber.StatusUnprocessableEntity},
		{escrow.ErrInvalidMilestoneConfiguration, fiber.StatusUnprocessableEntity},
		{escrow.ErrInvalidCampaignParams, fiber.StatusUnprocessableEntity},
		{escrow.ErrAlreadyVoted, fiber.StatusConflict},
		{escrow.ErrVotingPeriodNotOver, fiber.StatusConflict},
		{escrow.ErrReentrantCall, fiber.StatusConflict},
		{errors.New("connection refused"), fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
