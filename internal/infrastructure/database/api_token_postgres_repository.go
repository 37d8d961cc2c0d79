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

type pgxAPITokenRepository struct {
	db *pgxpool.Pool
}

// NewPgxAPITokenRepository creates a Postgres-backed API token repository.
// Only token hashes are stored.
func NewPgxAPITokenRepository(db *pgxpool.Pool) repository.APITokenRepository {
	return &pgxAPITokenRepository{db: db}
}

func (r *pgxAPITokenRepository) Create(ctx context.Context, token *entity.APIToken) error {
	query := `
		INSERT INTO api_tokens (id, account_id, token_hash, name, scopes, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.Exec(ctx, query,
		token.ID, token.AccountID, token.TokenHash, token.Name,
		token.Scopes, token.ExpiresAt, token.Revoked, token.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create api token: %w", err)
	}
	return nil
}

func (r *pgxAPITokenRepository) FindByHash(ctx context.Context, tokenHash string) (*entity.APIToken, error) {
	query := `
		SELECT id, account_id, token_hash, name, scopes, expires_at, revoked, created_at, revoked_at
		FROM api_tokens WHERE token_hash = $1`
	token := &entity.APIToken{}
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID, &token.AccountID, &token.TokenHash, &token.Name,
		&token.Scopes, &token.ExpiresAt, &token.Revoked, &token.CreatedAt, &token.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find api token: %w", err)
	}
	return token, nil
}

func (r *pgxAPITokenRepository) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE api_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`
	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to revoke api token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxAPITokenRepository) RevokeAllByAccountID(ctx context.Context, accountID uuid.UUID, at time.Time) error {
	query := `UPDATE api_tokens SET revoked = TRUE, revoked_at = $2 WHERE account_id = $1 AND revoked = FALSE`
	if _, err := r.db.Exec(ctx, query, accountID, at); err != nil {
		return fmt.Errorf("failed to revoke account api tokens: %w", err)
	}
	return nil
}

func (r *pgxAPITokenRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired api tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ repository.APITokenRepository = (*pgxAPITokenRepository)(nil)
