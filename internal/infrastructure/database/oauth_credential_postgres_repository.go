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

type pgxOAuthCredentialRepository struct {
	db *pgxpool.Pool
}

// NewPgxOAuthCredentialRepository creates a Postgres-backed credential
// repository. Token columns only ever hold ciphertext.
func NewPgxOAuthCredentialRepository(db *pgxpool.Pool) repository.OAuthCredentialRepository {
	return &pgxOAuthCredentialRepository{db: db}
}

const oauthCredentialColumns = `
	id, account_id, provider, provider_user_id, access_token_encrypted,
	refresh_token_encrypted, token_expires_at, scopes, created_at, updated_at`

func (r *pgxOAuthCredentialRepository) Create(ctx context.Context, cred *entity.OAuthCredential) error {
	query := `
		INSERT INTO oauth_credentials
			(id, account_id, provider, provider_user_id, access_token_encrypted,
			 refresh_token_encrypted, token_expires_at, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		cred.ID, cred.AccountID, string(cred.Provider), cred.ProviderUserID,
		cred.AccessTokenEncrypted, cred.RefreshTokenEncrypted,
		cred.TokenExpiresAt, cred.Scopes, cred.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create oauth credential: %w", err)
	}
	return nil
}

func (r *pgxOAuthCredentialRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.OAuthCredential, error) {
	query := `SELECT` + oauthCredentialColumns + ` FROM oauth_credentials WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxOAuthCredentialRepository) FindByAccountAndProvider(ctx context.Context, accountID uuid.UUID, provider entity.OAuthProvider) (*entity.OAuthCredential, error) {
	query := `SELECT` + oauthCredentialColumns + ` FROM oauth_credentials WHERE account_id = $1 AND provider = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, accountID, string(provider)))
}

func (r *pgxOAuthCredentialRepository) FindByProviderUserID(ctx context.Context, provider entity.OAuthProvider, providerUserID string) (*entity.OAuthCredential, error) {
	query := `SELECT` + oauthCredentialColumns + ` FROM oauth_credentials WHERE provider = $1 AND provider_user_id = $2`
	return r.scanOne(r.db.QueryRow(ctx, query, string(provider), providerUserID))
}

func (r *pgxOAuthCredentialRepository) scanOne(row pgx.Row) (*entity.OAuthCredential, error) {
	cred := &entity.OAuthCredential{}
	var provider string
	err := row.Scan(
		&cred.ID, &cred.AccountID, &provider, &cred.ProviderUserID,
		&cred.AccessTokenEncrypted, &cred.RefreshTokenEncrypted,
		&cred.TokenExpiresAt, &cred.Scopes, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan oauth credential: %w", err)
	}
	cred.Provider = entity.OAuthProvider(provider)
	return cred, nil
}

// UpdateTokens swaps both ciphertexts and the expiry in one statement, so a
// concurrent reader never sees a half-refreshed credential.
func (r *pgxOAuthCredentialRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessEncrypted, refreshEncrypted string, expiresAt time.Time) error {
	query := `
		UPDATE oauth_credentials
		SET access_token_encrypted = $2, refresh_token_encrypted = $3,
		    token_expires_at = $4, updated_at = now()
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id, accessEncrypted, refreshEncrypted, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to update oauth credential tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

func (r *pgxOAuthCredentialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM oauth_credentials WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete oauth credential: %w", err)
	}
	return nil
}

var _ repository.OAuthCredentialRepository = (*pgxOAuthCredentialRepository)(nil)
