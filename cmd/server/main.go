package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel"

	agreementhandler "airdrop/internal/agreement/handler"
	agreementmetrics "airdrop/internal/agreement/metrics"
	"airdrop/internal/agreement/service"
	"airdrop/internal/agreement/store"
	"airdrop/internal/custody"
	httpapi "airdrop/internal/http"
	jwttoken "airdrop/internal/jwt_token"
	ledgerstore "airdrop/internal/ledger/store"
	"airdrop/internal/platform/config"
	"airdrop/internal/platform/httpserver"
	"airdrop/internal/platform/logger"
	"airdrop/internal/platform/metrics"
	"airdrop/internal/platform/postgres"
	"airdrop/pkg/platform/audit"
	auditmemory "airdrop/pkg/platform/audit/store/memory"
	auditpostgres "airdrop/pkg/platform/audit/store/postgres"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal service packages.
func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	flags := pflag.NewFlagSet("airdrop", pflag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "address to listen on")
	flags.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: memory or postgres")
	flags.StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "postgres connection string")
	flags.BoolVar(&cfg.Migrate, "migrate", cfg.Migrate, "apply database migrations at startup")
	flags.StringVar(&cfg.ProgramID, "program-id", cfg.ProgramID, "program id custody addresses derive under")
	flags.StringVar(&cfg.JWTSigningKey, "jwt-signing-key", cfg.JWTSigningKey, "HMAC key for bearer tokens")
	flags.Uint64Var(&cfg.EscrowDeposit, "escrow-deposit", cfg.EscrowDeposit, "native units locked in each escrow account")
	flags.Uint64Var(&cfg.RecordDeposit, "record-deposit", cfg.RecordDeposit, "native units locked in each agreement record")
	flags.BoolVar(&cfg.DevFaucet, "dev-faucet", cfg.DevFaucet, "mount POST /dev/mint (development only)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "enable debug logging")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(cfg.Verbose)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deriver, err := custody.NewDeriver(solana.MustPublicKeyFromBase58(cfg.ProgramID))
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, log, cfg)
	if err != nil {
		return err
	}
	defer backend.close()

	clock := clockwork.NewRealClock()
	svc, err := service.New(backend.tx, deriver,
		service.WithLogger(log),
		service.WithAuditPublisher(audit.NewPublisher(backend.audit, clock)),
		service.WithMetrics(agreementmetrics.New()),
		service.WithTracer(otel.Tracer("airdrop/agreement")),
		service.WithClock(clock),
		service.WithDeposits(service.Deposits{Escrow: cfg.EscrowDeposit, Record: cfg.RecordDeposit}),
	)
	if err != nil {
		return err
	}

	var faucet agreementhandler.Faucet
	if cfg.DevFaucet {
		log.Warn("dev faucet enabled: POST /dev/mint credits arbitrary balances")
		faucet = backend.faucet
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	router := httpapi.NewRouter(httpapi.Deps{
		Agreements: agreementhandler.New(svc, faucet, log),
		Validator:  jwttoken.NewJWTServiceAdapter(jwtService),
		Logger:     log,
		Metrics:    metrics.New(),
		Clock:      clock,
		Health:     backend.health,
		AdminToken: cfg.AdminToken,
	})
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting airdrop",
		"addr", cfg.Addr,
		"storage", cfg.Storage,
		"program_id", cfg.ProgramID,
		"version", version,
		"commit", commit,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// backend bundles the stores of one storage mode.
type backend struct {
	tx     service.TxRunner
	audit  audit.Store
	faucet agreementhandler.Faucet
	health httpapi.HealthChecker
	close  func()
}

func openBackend(ctx context.Context, log *slog.Logger, cfg config.Server) (*backend, error) {
	if cfg.Storage == config.StorageMemory {
		log.Warn("using in-memory storage: state is lost on restart")
		ledger := ledgerstore.NewInMemoryLedger()
		return &backend{
			tx:     store.NewInMemoryTx(store.NewInMemoryRegistry(), ledger),
			audit:  auditmemory.NewInMemoryStore(),
			faucet: ledger,
			close:  func() {},
		}, nil
	}

	db, err := postgres.Open(ctx, log, postgres.Config{
		DSN:             cfg.PostgresDSN,
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		Migrate:         cfg.Migrate,
	})
	if err != nil {
		return nil, err
	}
	ledger := ledgerstore.NewPostgres(db)
	return &backend{
		tx:     store.NewPostgresTx(db, store.NewPostgresRegistry(db), ledger),
		audit:  auditpostgres.New(db),
		faucet: ledger,
		health: db,
		close: func() {
			if err := db.Close(); err != nil {
				log.Error("failed to close database", "error", err)
			}
		},
	}, nil
}

var _ httpapi.HealthChecker = (*sql.DB)(nil)
