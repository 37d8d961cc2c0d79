package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	domainErrors "github.com/assistant-platform/auth-service/internal/domain/errors"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
)

type pgxMFASecretRepository struct {
	db *pgxpool.Pool
}

// NewPgxMFASecretRepository creates a Postgres-backed MFA secret repository.
func NewPgxMFASecretRepository(db *pgxpool.Pool) repository.MFASecretRepository {
	return &pgxMFASecretRepository{db: db}
}

func (r *pgxMFASecretRepository) Create(ctx context.Context, secret *entity.MFASecret) error {
	query := `
		INSERT INTO mfa_secrets (id, account_id, secret_encrypted, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Exec(ctx, query,
		secret.ID, secret.AccountID, secret.SecretEncrypted, secret.Enabled, secret.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create mfa secret: %w", err)
	}
	return nil
}

func (r *pgxMFASecretRepository) FindByAccountID(ctx context.Context, accountID uuid.UUID) (*entity.MFASecret, error) {
	query := `
		SELECT id, account_id, secret_encrypted, enabled, created_at, verified_at
		FROM mfa_secrets WHERE account_id = $1`
	secret := &entity.MFASecret{}
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&secret.ID, &secret.AccountID, &secret.SecretEncrypted,
		&secret.Enabled, &secret.CreatedAt, &secret.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find mfa secret: %w", err)
	}
	return secret, nil
}

func (r *pgxMFASecretRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE mfa_secrets SET enabled = TRUE, verified_at = $2 WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark mfa secret verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxMFASecretRepository) DeleteUnverifiedByAccountID(ctx context.Context, accountID uuid.UUID) (bool, error) {
	query := `DELETE FROM mfa_secrets WHERE account_id = $1 AND enabled = FALSE`
	tag, err := r.db.Exec(ctx, query, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to delete unverified mfa secret: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgxMFASecretRepository) DeleteByAccountID(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM mfa_secrets WHERE account_id = $1`, accountID)
	if err != nil {
		return fmt.Errorf("failed to delete mfa secret: %w", err)
	}
	return nil
}

var _ repository.MFASecretRepository = (*pgxMFASecretRepository)(nil)
