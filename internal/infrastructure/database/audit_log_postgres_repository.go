package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
)

type pgxAuditLogRepository struct {
	db *pgxpool.Pool
}

// NewPgxAuditLogRepository creates a Postgres-backed audit-log repository.
// The table is append-only; there is deliberately no update or delete here.
func NewPgxAuditLogRepository(db *pgxpool.Pool) repository.AuditLogRepository {
	return &pgxAuditLogRepository{db: db}
}

func (r *pgxAuditLogRepository) Create(ctx context.Context, entry *entity.AuditLog) error {
	query := `
		INSERT INTO audit_logs (account_id, kind, status, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRow(ctx, query,
		entry.AccountID, string(entry.Kind), string(entry.Status),
		entry.IPAddress, entry.UserAgent, entry.Details, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to append audit log entry: %w", err)
	}
	return nil
}

func (r *pgxAuditLogRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit int) ([]*entity.AuditLog, error) {
	query := `
		SELECT id, account_id, kind, status, ip_address, user_agent, details, created_at
		FROM audit_logs WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit log entries: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func (r *pgxAuditLogRepository) ListRecent(ctx context.Context, limit int) ([]*entity.AuditLog, error) {
	query := `
		SELECT id, account_id, kind, status, ip_address, user_agent, details, created_at
		FROM audit_logs
		ORDER BY created_at DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent audit log entries: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows pgx.Rows) ([]*entity.AuditLog, error) {
	var entries []*entity.AuditLog
	for rows.Next() {
		entry := &entity.AuditLog{}
		var kind, status string
		err := rows.Scan(
			&entry.ID, &entry.AccountID, &kind, &status,
			&entry.IPAddress, &entry.UserAgent, &entry.Details, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entry.Kind = entity.AuditEventKind(kind)
		entry.Status = entity.AuditStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit log rows: %w", err)
	}
	return entries, nil
}

var _ repository.AuditLogRepository = (*pgxAuditLogRepository)(nil)
