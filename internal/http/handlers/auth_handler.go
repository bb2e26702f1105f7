package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/http/dto"
	"github.com/milestone-escrow/backend/internal/services"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(authService *services.AuthService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, log: log}
}

// GeneratePayload создаёт nonce для TON Proof.
// POST /auth/ton-proof/payload
func (h *AuthHandler) GeneratePayload(c *fiber.Ctx) error {
	p, err := h.authService.GeneratePayload(c.UserContext())
	if err != nil {
		h.log.Error("failed to generate proof payload", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal error"})
	}
	return c.JSON(fiber.Map{"payload": p.Payload, "expires_at": p.ExpiresAt.Unix()})
}

// TonProofLogin проверяет TON Proof и выдаёт JWT для адреса кошелька.
// POST /auth/ton-proof
func (h *AuthHandler) TonProofLogin(c *fiber.Ctx) error {
	var req dto.TonProofLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Address == "" || req.PublicKey == "" || req.Proof.Signature == "" || req.Proof.Payload == "" {
		return badRequest(c, "address, public_key, proof.payload and proof.signature are required")
	}

	session, err := h.authService.Login(c.UserContext(), req)
	if err != nil {
		h.log.Debug("ton proof login failed", zap.Error(err))
		return fail(c, h.log, err)
	}

	return c.JSON(dto.AuthResponse{
		Token:     session.Token,
		Address:   session.Address,
		Friendly:  session.Friendly,
		ExpiresAt: session.ExpiresAt.Unix(),
	})
}
