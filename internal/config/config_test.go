package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 6*time.Hour, cfg.Rewards.ShareCooldown)
	assert.Equal(t, 3*time.Hour, cfg.Rewards.MiniAppCooldown)
	assert.Equal(t, 12*time.Hour, cfg.Rewards.ClaimWindow)
	assert.Equal(t, 5, cfg.Rewards.ClaimCap)
	assert.Equal(t, 2, cfg.Rewards.ShareGrant)
	assert.Equal(t, 3, cfg.Rewards.MiniAppGrant)
	assert.Equal(t, 1, cfg.Rewards.FollowGrant)
	assert.True(t, cfg.Chain.PaymentInNative())
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Address())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_TYPE", "sqlite")
	t.Setenv("REWARD_SHARE_COOLDOWN", "90m")
	t.Setenv("API_KEYS", "alpha,beta")
	t.Setenv("CHAIN_PAYMENT_TOKEN", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Type)
	assert.Equal(t, 90*time.Minute, cfg.Rewards.ShareCooldown)
	assert.Equal(t, []string{"alpha", "beta"}, cfg.Auth.APIKeys)
	assert.False(t, cfg.Chain.PaymentInNative())
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("STORE_TYPE", "cassandra")

	_, err := Load()
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	s := StoreConfig{User: "u", Password: "p", Host: "db", Port: 5433, Name: "n", SSLMode: "require"}
	assert.Equal(t, "postgres://u:p@db:5433/n?sslmode=require", s.PostgresDSN())
}
