package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
)

type pgxMFABackupCodeRepository struct {
	db *pgxpool.Pool
}

// NewPgxMFABackupCodeRepository creates a Postgres-backed backup-code
// repository.
func NewPgxMFABackupCodeRepository(db *pgxpool.Pool) repository.MFABackupCodeRepository {
	return &pgxMFABackupCodeRepository{db: db}
}

func (r *pgxMFABackupCodeRepository) CreateBatch(ctx context.Context, codes []*entity.MFABackupCode) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin backup-code batch: %w", err)
	}
	defer tx.Rollback(ctx)

	rows := make([][]interface{}, len(codes))
	for i, code := range codes {
		rows[i] = []interface{}{code.ID, code.AccountID, code.CodeHash, code.UsedAt, code.CreatedAt}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"mfa_backup_codes"},
		[]string{"id", "account_id", "code_hash", "used_at", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert backup codes: %w", err)
	}
	return tx.Commit(ctx)
}

// Consume marks the matching unused code as spent. The WHERE clause carries
// the used_at IS NULL guard, so two concurrent submissions of the same code
// race on a single row update and exactly one wins.
func (r *pgxMFABackupCodeRepository) Consume(ctx context.Context, accountID uuid.UUID, codeHash string, usedAt time.Time) (bool, error) {
	query := `
		UPDATE mfa_backup_codes SET used_at = $3
		WHERE account_id = $1 AND code_hash = $2 AND used_at IS NULL`
	tag, err := r.db.Exec(ctx, query, accountID, codeHash, usedAt)
	if err != nil {
		return false, fmt.Errorf("failed to consume backup code: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgxMFABackupCodeRepository) CountUnused(ctx context.Context, accountID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_backup_codes WHERE account_id = $1 AND used_at IS NULL`,
		accountID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unused backup codes: %w", err)
	}
	return count, nil
}

func (r *pgxMFABackupCodeRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}
	return nil
}

var _ repository.MFABackupCodeRepository = (*pgxMFABackupCodeRepository)(nil)
