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

const uniqueViolationCode = "23505"

type pgxAccountRepository struct {
	db *pgxpool.Pool
}

// NewPgxAccountRepository creates a Postgres-backed account repository.
func NewPgxAccountRepository(db *pgxpool.Pool) repository.AccountRepository {
	return &pgxAccountRepository{db: db}
}

func (r *pgxAccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (id, email, display_name, auth_methods, mfa_enabled, disabled, locked_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	methods := make([]string, len(account.AuthMethods))
	for i, m := range account.AuthMethods {
		methods[i] = string(m)
	}
	_, err := r.db.Exec(ctx, query,
		account.ID, account.Email, account.DisplayName, methods,
		account.MFAEnabled, account.Disabled, account.LockedUntil, account.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return domainErrors.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *pgxAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Account, error) {
	query := `
		SELECT id, email, display_name, auth_methods, mfa_enabled, disabled, locked_until, created_at, updated_at
		FROM accounts WHERE id = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, id))
}

func (r *pgxAccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	query := `
		SELECT id, email, display_name, auth_methods, mfa_enabled, disabled, locked_until, created_at, updated_at
		FROM accounts WHERE email = $1`
	return r.scanOne(r.db.QueryRow(ctx, query, email))
}

func (r *pgxAccountRepository) scanOne(row pgx.Row) (*entity.Account, error) {
	account := &entity.Account{}
	var methods []string
	err := row.Scan(
		&account.ID, &account.Email, &account.DisplayName, &methods,
		&account.MFAEnabled, &account.Disabled, &account.LockedUntil,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}
	account.AuthMethods = make([]entity.AuthMethod, len(methods))
	for i, m := range methods {
		account.AuthMethods[i] = entity.AuthMethod(m)
	}
	return account, nil
}

func (r *pgxAccountRepository) Update(ctx context.Context, account *entity.Account) error {
	query := `
		UPDATE accounts
		SET email = $2, display_name = $3, auth_methods = $4, mfa_enabled = $5,
		    disabled = $6, locked_until = $7, updated_at = $8
		WHERE id = $1`
	methods := make([]string, len(account.AuthMethods))
	for i, m := range account.AuthMethods {
		methods[i] = string(m)
	}
	now := time.Now()
	tag, err := r.db.Exec(ctx, query,
		account.ID, account.Email, account.DisplayName, methods,
		account.MFAEnabled, account.Disabled, account.LockedUntil, now,
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAccountNotFound
	}
	account.UpdatedAt = &now
	return nil
}

func (r *pgxAccountRepository) SetDisabled(ctx context.Context, id uuid.UUID, disabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET disabled = $2, updated_at = now() WHERE id = $1`, id, disabled)
	if err != nil {
		return fmt.Errorf("failed to set account disabled flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAccountNotFound
	}
	return nil
}

func (r *pgxAccountRepository) SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE accounts SET mfa_enabled = $2, updated_at = now() WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to set account mfa flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrAccountNotFound
	}
	return nil
}

var _ repository.AccountRepository = (*pgxAccountRepository)(nil)
