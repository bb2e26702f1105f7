package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/milestone-escrow/backend/internal/auth"
	"github.com/milestone-escrow/backend/internal/config"
	"github.com/milestone-escrow/backend/internal/models"
	"github.com/milestone-escrow/backend/internal/repositories"
	"github.com/milestone-escrow/backend/internal/ton"
)

var ErrInvalidProof = errors.New("invalid ton proof")

type AuthService struct {
	proofRepo *repositories.ProofRepo
	auditRepo *repositories.AuditRepo
	cfg       *config.Config
	log       *zap.Logger
	now       func() time.Time
}

func NewAuthService(
	proofRepo *repositories.ProofRepo,
	auditRepo *repositories.AuditRepo,
	cfg *config.Config,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		proofRepo: proofRepo,
		auditRepo: auditRepo,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// GeneratePayload создаёт nonce для TON Proof.
// Клиент передаёт его в tonconnect при подключении кошелька.
func (s *AuthService) GeneratePayload(ctx context.Context) (*models.TonProofPayload, error) {
	p, err := s.proofRepo.CreatePayload(ctx, s.cfg.ProofPayloadTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof payload: %w", err)
	}
	return p, nil
}

// Session is the result of a successful wallet login.
type Session struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	Friendly  string    `json:"address_friendly"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login verifies a TON Connect proof and issues a JWT for the wallet.
func (s *AuthService) Login(ctx context.Context, req ton.ProofData) (*Session, error) {
	// 1. Проверяем network
	if req.Network != "" && ton.NetworkName(req.Network) != s.cfg.TONNetwork {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", ErrInvalidProof, s.cfg.TONNetwork, ton.NetworkName(req.Network))
	}

	// 2. Парсим raw address
	workchain, addrHash, err := ton.ParseRawAddress(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	// 3. Верифицируем подпись до того, как тратить nonce
	now := s.now()
	if err := ton.VerifyProof(now, req.PublicKey, workchain, addrHash, req.Proof, s.cfg.TONProofAllowedDomains); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	// 4. Consume payload (nonce): защита от replay
	if _, err := s.proofRepo.ConsumePayload(ctx, req.Proof.Payload); err != nil {
		return nil, fmt.Errorf("%w: invalid or expired proof payload", ErrInvalidProof)
	}

	address := ton.FormatRaw(workchain, addrHash)
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, address, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("generate jwt: %w", err)
	}

	_ = s.auditRepo.Log(ctx, nil, models.AuditLog{
		ActorAddress: &address,
		ActorType:    models.ActorTypeUser,
		Action:       "wallet_login",
		EntityType:   "wallet",
		Meta:         map[string]any{"network": ton.NetworkName(req.Network), "domain": req.Proof.Domain.Value},
	})

	s.log.Info("wallet logged in", zap.String("address", address))

	return &Session{
		Token:     token,
		Address:   address,
		Friendly:  ton.Friendly(address, s.cfg.TONNetwork != "mainnet"),
		ExpiresAt: now.Add(s.cfg.JWTExpiration),
	}, nil
}

// CleanupPayloads removes used and expired proof payloads.
func (s *AuthService) CleanupPayloads(ctx context.Context) (int64, error) {
	return s.proofRepo.DeleteExpired(ctx)
}
