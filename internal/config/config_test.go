package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.QuorumPercent)
	assert.Equal(t, 50, cfg.ApprovalPercent)
	assert.Equal(t, "any", cfg.MilestonePhase)
	assert.Equal(t, 7*24*time.Hour, cfg.DefaultVotingDuration)
	assert.Equal(t, 4443, cfg.LiteServerPort)
	assert.Equal(t, "3000", cfg.APIPort)
	require.NoError(t, cfg.Validate(zap.NewNop()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VOTING_QUORUM_PERCENT", "40")
	t.Setenv("MILESTONE_PHASE", "successful")
	t.Setenv("ADMIN_ADDRESSES", "0:aa, 0:bb")
	t.Setenv("TON_PROOF_ALLOWED_DOMAINS", "app.example.org,example.org")
	t.Setenv("TON_HOT_WALLET_SEED", "abandon ability able")
	t.Setenv("PAYOUT_INTERVAL", "45s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.QuorumPercent)
	assert.Equal(t, "successful", cfg.MilestonePhase)
	assert.Equal(t, []string{"0:aa", "0:bb"}, cfg.AdminAddresses)
	assert.Equal(t, []string{"app.example.org", "example.org"}, cfg.TONProofAllowedDomains)
	assert.Len(t, cfg.TONHotWalletSeed, 3)
	assert.Equal(t, 45*time.Second, cfg.PayoutInterval)
	assert.True(t, cfg.IsAdmin("0:bb"))
	assert.False(t, cfg.IsAdmin("0:cc"))
}

func TestLoadError(t *testing.T) {
	t.Setenv("PAYOUT_BATCH_SIZE", "not-an-int")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"quorum zero", func(c *Config) { c.QuorumPercent = 0 }},
		{"threshold above 100", func(c *Config) { c.ApprovalPercent = 101 }},
		{"negative fee", func(c *Config) { c.PlatformFeeBPS = -1 }},
		{"fee above 100%", func(c *Config) { c.PlatformFeeBPS = 10001 }},
		{"unknown phase", func(c *Config) { c.MilestonePhase = "never" }},
		{"inverted bounds", func(c *Config) { c.MaxVotingDuration = time.Minute }},
		{"default outside bounds", func(c *Config) { c.DefaultVotingDuration = time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate(zap.NewNop()))
		})
	}
}
