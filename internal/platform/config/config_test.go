package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"AIRDROP_ADDR", "AIRDROP_STORAGE", "AIRDROP_POSTGRES_DSN", "AIRDROP_PROGRAM_ID",
		"AIRDROP_JWT_SIGNING_KEY", "AIRDROP_DEV_FAUCET", "AIRDROP_ESCROW_DEPOSIT",
		"AIRDROP_RECORD_DEPOSIT", "AIRDROP_SHUTDOWN_TIMEOUT", "AIRDROP_ADMIN_TOKEN",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, DefaultProgramID, cfg.ProgramID)
	assert.False(t, cfg.DevFaucet)
	assert.Equal(t, uint64(2_039_280), cfg.EscrowDeposit)
	assert.Equal(t, uint64(2_463_840), cfg.RecordDeposit)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("AIRDROP_STORAGE", StoragePostgres)
	t.Setenv("AIRDROP_POSTGRES_DSN", "postgres://u:p@localhost/airdrop?sslmode=disable")
	t.Setenv("AIRDROP_DEV_FAUCET", "true")
	t.Setenv("AIRDROP_ADMIN_TOKEN", "operator")
	t.Setenv("AIRDROP_ESCROW_DEPOSIT", "10")
	t.Setenv("AIRDROP_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.DevFaucet)
	assert.Equal(t, uint64(10), cfg.EscrowDeposit)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_InvalidNumber(t *testing.T) {
	t.Setenv("AIRDROP_RECORD_DEPOSIT", "-1")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "AIRDROP_RECORD_DEPOSIT")
}

func TestValidate(t *testing.T) {
	base := Server{Storage: StorageMemory, ProgramID: DefaultProgramID, JWTSigningKey: "k"}
	require.NoError(t, base.Validate())

	pg := base
	pg.Storage = StoragePostgres
	assert.ErrorContains(t, pg.Validate(), "AIRDROP_POSTGRES_DSN")

	unknown := base
	unknown.Storage = "sqlite"
	assert.Error(t, unknown.Validate())

	faucet := base
	faucet.DevFaucet = true
	assert.ErrorContains(t, faucet.Validate(), "AIRDROP_ADMIN_TOKEN")

	badProgram := base
	badProgram.ProgramID = "not-a-key"
	assert.Error(t, badProgram.Validate())
}
