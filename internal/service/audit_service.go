package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assistant-platform/auth-service/internal/domain/entity"
	"github.com/assistant-platform/auth-service/internal/domain/repository"
	"github.com/assistant-platform/auth-service/internal/utils/metrics"
)

// AuditRecorder accepts security events for the append-only trail. Recording
// never blocks or fails the calling flow; when the store is unavailable the
// entry is dropped and the degradation is counted and logged instead.
type AuditRecorder interface {
	Record(ctx context.Context, entry *entity.AuditLog)
	// RecordEvent is the convenience form used by the services.
	RecordEvent(ctx context.Context, accountID *uuid.UUID, kind entity.AuditEventKind, status entity.AuditStatus, ip, userAgent string, details map[string]any)
	Close()
}

// AuditService buffers entries on a channel and writes them from a single
// goroutine, decoupling request latency from audit-store latency.
type AuditService struct {
	repo    repository.AuditLogRepository
	logger  *zap.Logger
	metrics *metrics.Metrics

	entries chan *entity.AuditLog
	done    chan struct{}
	closeMu sync.Mutex
	closed  bool
}

const auditBufferSize = 1024

// writeTimeout bounds each store write so one slow insert cannot stall the
// writer goroutine indefinitely.
const auditWriteTimeout = 5 * time.Second

func NewAuditService(repo repository.AuditLogRepository, logger *zap.Logger, m *metrics.Metrics) *AuditService {
	s := &AuditService{
		repo:    repo,
		logger:  logger,
		metrics: m,
		entries: make(chan *entity.AuditLog, auditBufferSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AuditService) run() {
	defer close(s.done)
	for entry := range s.entries {
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		err := s.repo.Create(ctx, entry)
		cancel()
		if err != nil {
			s.degraded(entry, err)
		}
	}
}

// Record enqueues an entry. A full buffer drops the entry rather than blocking
// the authentication path; the drop itself is observable.
func (s *AuditService) Record(_ context.Context, entry *entity.AuditLog) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed {
		s.degraded(entry, nil)
		return
	}
	select {
	case s.entries <- entry:
	default:
		s.degraded(entry, nil)
	}
}

func (s *AuditService) RecordEvent(ctx context.Context, accountID *uuid.UUID, kind entity.AuditEventKind, status entity.AuditStatus, ip, userAgent string, details map[string]any) {
	entry := &entity.AuditLog{
		AccountID: accountID,
		Kind:      kind,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	if userAgent != "" {
		entry.UserAgent = &userAgent
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			s.logger.Error("Failed to marshal audit details", zap.Error(err), zap.String("kind", string(kind)))
		} else {
			entry.Details = raw
		}
	}
	s.Record(ctx, entry)
}

func (s *AuditService) degraded(entry *entity.AuditLog, cause error) {
	if s.metrics != nil {
		s.metrics.AuditDegraded.Inc()
	}
	fields := []zap.Field{
		zap.String("kind", string(entry.Kind)),
		zap.String("status", string(entry.Status)),
	}
	if entry.AccountID != nil {
		fields = append(fields, zap.String("account_id", entry.AccountID.String()))
	}
	if cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	s.logger.Error("Audit entry dropped, operating degraded", fields...)
}

// Close stops accepting entries and drains the buffer before returning.
func (s *AuditService) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	close(s.entries)
	s.closeMu.Unlock()
	<-s.done
}

var _ AuditRecorder = (*AuditService)(nil)
