package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"airdrop/internal/agreement/models"
	"airdrop/pkg/domain"
	dErrors "airdrop/pkg/domain-errors"
	"airdrop/pkg/platform/sentinel"
	txcontext "airdrop/pkg/platform/tx"
)

// PostgresRegistry persists agreements in the agreements table. It joins the
// transaction carried by the context, if any.
// This store is pure I/O; invariants are enforced by the service.
type PostgresRegistry struct {
	db *sql.DB
}

func NewPostgresRegistry(db *sql.DB) *PostgresRegistry {
	return &PostgresRegistry{db: db}
}

const agreementColumns = `
	authority, initialized, distributor, token_asset, fee_asset,
	distributor_token_account, distributor_fee_account, escrow_token_account,
	fee_amount, fee_mode, token_decimals, bump, capability, deposit,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (*models.Agreement, error) {
	var (
		a                                    models.Agreement
		authority, distributor               string
		tokenAsset, feeAsset                 string
		distTokenAcct, distFeeAcct, escrowAc string
		feeAmount, deposit                   string
		feeMode, decimals, bump              int16
	)
	if err := row.Scan(
		&authority, &a.Initialized, &distributor, &tokenAsset, &feeAsset,
		&distTokenAcct, &distFeeAcct, &escrowAc,
		&feeAmount, &feeMode, &decimals, &bump, &a.Capability, &deposit,
		&a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if a.Authority, err = domain.ParseAccountRef(authority); err != nil {
		return nil, fmt.Errorf("parse authority: %w", err)
	}
	if a.Distributor, err = domain.ParsePrincipal(distributor); err != nil {
		return nil, fmt.Errorf("parse distributor: %w", err)
	}
	if a.TokenAsset, err = domain.ParseAssetID(tokenAsset); err != nil {
		return nil, fmt.Errorf("parse token asset: %w", err)
	}
	if a.FeeAsset, err = domain.ParseAssetID(feeAsset); err != nil {
		return nil, fmt.Errorf("parse fee asset: %w", err)
	}
	if a.DistributorTokenAccount, err = domain.ParseAccountRef(distTokenAcct); err != nil {
		return nil, fmt.Errorf("parse distributor token account: %w", err)
	}
	if a.DistributorFeeAccount, err = domain.ParseAccountRef(distFeeAcct); err != nil {
		return nil, fmt.Errorf("parse distributor fee account: %w", err)
	}
	if a.EscrowTokenAccount, err = domain.ParseAccountRef(escrowAc); err != nil {
		return nil, fmt.Errorf("parse escrow token account: %w", err)
	}
	if a.FeeAmount, err = strconv.ParseUint(feeAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("parse fee amount: %w", err)
	}
	if a.Deposit, err = strconv.ParseUint(deposit, 10, 64); err != nil {
		return nil, fmt.Errorf("parse deposit: %w", err)
	}
	a.FeeMode = models.FeeMode(feeMode)
	a.TokenDecimals = uint8(decimals)
	a.Bump = uint8(bump)
	return &a, nil
}

func (s *PostgresRegistry) get(ctx context.Context, authority domain.AccountRef, lock bool) (*models.Agreement, error) {
	query := `SELECT ` + agreementColumns + ` FROM agreements WHERE authority = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	a, err := scanAgreement(txcontext.Exec(ctx, s.db).QueryRowContext(ctx, query, authority.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound(authority)
		}
		return nil, fmt.Errorf("get agreement: %w", err)
	}
	return a, nil
}

func (s *PostgresRegistry) Get(ctx context.Context, authority domain.AccountRef) (*models.Agreement, error) {
	return s.get(ctx, authority, false)
}

// GetForUpdate locks the agreement row until the surrounding transaction ends.
func (s *PostgresRegistry) GetForUpdate(ctx context.Context, authority domain.AccountRef) (*models.Agreement, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("get agreement for update: no transaction in context")
	}
	return s.get(ctx, authority, true)
}

func agreementArgs(a *models.Agreement) []any {
	return []any{
		a.Authority.String(),
		a.Initialized,
		a.Distributor.String(),
		a.TokenAsset.String(),
		a.FeeAsset.String(),
		a.DistributorTokenAccount.String(),
		a.DistributorFeeAccount.String(),
		a.EscrowTokenAccount.String(),
		strconv.FormatUint(a.FeeAmount, 10),
		int16(a.FeeMode),
		int16(a.TokenDecimals),
		int16(a.Bump),
		a.Capability,
		strconv.FormatUint(a.Deposit, 10),
		a.CreatedAt,
		a.UpdatedAt,
	}
}

func (s *PostgresRegistry) Create(ctx context.Context, a *models.Agreement) error {
	if a == nil {
		return fmt.Errorf("agreement is required")
	}
	query := `
		INSERT INTO agreements (` + agreementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query, agreementArgs(a)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return dErrors.Wrap(sentinel.ErrConflict, dErrors.CodeConflict, "agreement already exists")
		}
		return fmt.Errorf("insert agreement: %w", err)
	}
	return nil
}

func (s *PostgresRegistry) Update(ctx context.Context, a *models.Agreement) error {
	if a == nil {
		return fmt.Errorf("agreement is required")
	}
	query := `
		UPDATE agreements SET
			distributor_token_account = $2,
			distributor_fee_account = $3,
			fee_amount = $4,
			fee_mode = $5,
			updated_at = $6
		WHERE authority = $1
	`
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, query,
		a.Authority.String(),
		a.DistributorTokenAccount.String(),
		a.DistributorFeeAccount.String(),
		strconv.FormatUint(a.FeeAmount, 10),
		int16(a.FeeMode),
		a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update agreement: %w", err)
	}
	return requireOneRow(res, a.Authority)
}

func (s *PostgresRegistry) Delete(ctx context.Context, authority domain.AccountRef) error {
	res, err := txcontext.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM agreements WHERE authority = $1`, authority.String())
	if err != nil {
		return fmt.Errorf("delete agreement: %w", err)
	}
	return requireOneRow(res, authority)
}

func requireOneRow(res sql.Result, authority domain.AccountRef) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound(authority)
	}
	return nil
}
