package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// DefaultProgramID is the program id custody addresses are derived under when
// none is configured.
const DefaultProgramID = "6KdbiLjiG4BWZpQLezvzyGWnLAcQ4RvX2Hdbz235CD8L"

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	Storage       string
	PostgresDSN   string
	Migrate       bool
	ProgramID     string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	// DevFaucet mounts POST /dev/mint behind AdminToken. Never enable
	// outside development.
	DevFaucet  bool
	AdminToken string
	Verbose    bool

	EscrowDeposit uint64
	RecordDeposit uint64

	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            envOr("AIRDROP_ADDR", ":8080"),
		Storage:         envOr("AIRDROP_STORAGE", StorageMemory),
		PostgresDSN:     os.Getenv("AIRDROP_POSTGRES_DSN"),
		Migrate:         os.Getenv("AIRDROP_POSTGRES_MIGRATE") != "false",
		ProgramID:       envOr("AIRDROP_PROGRAM_ID", DefaultProgramID),
		JWTIssuer:       envOr("AIRDROP_JWT_ISSUER", "airdrop"),
		JWTAudience:     envOr("AIRDROP_JWT_AUDIENCE", "airdrop-api"),
		DevFaucet:       os.Getenv("AIRDROP_DEV_FAUCET") == "true",
		AdminToken:      os.Getenv("AIRDROP_ADMIN_TOKEN"),
		Verbose:         os.Getenv("AIRDROP_VERBOSE") == "true",
		EscrowDeposit:   2_039_280,
		RecordDeposit:   2_463_840,
		ShutdownTimeout: 10 * time.Second,
	}

	cfg.JWTSigningKey = os.Getenv("AIRDROP_JWT_SIGNING_KEY")
	if cfg.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.JWTSigningKey = "dev-secret-key-change-in-production"
	}

	var err error
	if cfg.EscrowDeposit, err = envUint("AIRDROP_ESCROW_DEPOSIT", cfg.EscrowDeposit); err != nil {
		return Server{}, err
	}
	if cfg.RecordDeposit, err = envUint("AIRDROP_RECORD_DEPOSIT", cfg.RecordDeposit); err != nil {
		return Server{}, err
	}
	if v := os.Getenv("AIRDROP_SHUTDOWN_TIMEOUT"); v != "" {
		if cfg.ShutdownTimeout, err = time.ParseDuration(v); err != nil {
			return Server{}, fmt.Errorf("AIRDROP_SHUTDOWN_TIMEOUT: %w", err)
		}
	}
	return cfg, nil
}

// Validate checks the settings main cannot run without.
func (s Server) Validate() error {
	switch s.Storage {
	case StorageMemory:
	case StoragePostgres:
		if s.PostgresDSN == "" {
			return fmt.Errorf("AIRDROP_POSTGRES_DSN is required with postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage %q: want %q or %q", s.Storage, StorageMemory, StoragePostgres)
	}
	if _, err := solana.PublicKeyFromBase58(s.ProgramID); err != nil {
		return fmt.Errorf("invalid program id: %w", err)
	}
	if s.JWTSigningKey == "" {
		return fmt.Errorf("JWT signing key is required")
	}
	if s.DevFaucet && s.AdminToken == "" {
		return fmt.Errorf("AIRDROP_ADMIN_TOKEN is required when the dev faucet is enabled")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
