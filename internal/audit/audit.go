// Package audit registra eventos de seguridad append-only.
//
// Log nunca falla hacia el llamador: un error de persistencia se loguea y se cuenta en
// cinelog_audit_write_failures_total, pero no altera el resultado de la operación auditada.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dropDatabas3/cinelog/internal/domain/repository"
	"github.com/dropDatabas3/cinelog/internal/observability/logger"
	"github.com/dropDatabas3/cinelog/internal/observability/metrics"
	"go.uber.org/zap"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

// Entry es lo que los llamadores quieren registrar.
type Entry struct {
	UserID    string
	Type      repository.AuditEventType
	IP        string
	UserAgent string
	Metadata  map[string]any
}

// Event es un evento leído, con la metadata ya deserializada.
type Event struct {
	ID        string                    `json:"id"`
	UserID    string                    `json:"user_id"`
	Type      repository.AuditEventType `json:"event_type"`
	IP        string                    `json:"ip,omitempty"`
	UserAgent string                    `json:"user_agent,omitempty"`
	Metadata  map[string]any            `json:"metadata,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
}

type Service struct {
	repo  repository.AuditRepository
	Clock func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, Clock: time.Now}
}

func (s *Service) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

// Log persiste el evento. No retorna error.
func (s *Service) Log(ctx context.Context, e Entry) {
	log := logger.From(ctx).With(logger.Component("audit"), logger.EventType(string(e.Type)), logger.UserID(e.UserID))

	var meta []byte
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			log.Warn("audit metadata not serializable, storing null", logger.Err(err))
		} else {
			meta = b
		}
	}

	ev, err := repository.NewAuditEvent(e.UserID, e.Type, e.IP, e.UserAgent, meta, s.now())
	if err != nil {
		metrics.AuditWriteFailed()
		log.Error("audit event rejected", logger.Err(err))
		return
	}
	if err := s.repo.Append(ctx, ev); err != nil {
		metrics.AuditWriteFailed()
		log.Error("audit write failed", logger.Err(err))
		return
	}
	log.Debug("audit event recorded", zap.String("event_id", ev.ID))
}

// RecentEvents retorna los eventos más nuevos primero. limit<=0 usa 50; el máximo es 500.
func (s *Service) RecentEvents(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}
	rows, err := s.repo.Recent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	out := make([]Event, 0, len(rows))
	for _, r := range rows {
		ev := Event{
			ID:        r.ID,
			UserID:    r.UserID,
			Type:      r.EventType,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			CreatedAt: r.CreatedAt,
		}
		if len(r.Metadata) > 0 {
			if err := json.Unmarshal(r.Metadata, &ev.Metadata); err != nil {
				logger.From(ctx).Warn("audit metadata unreadable", logger.Component("audit"), logger.Err(err))
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// DeleteForUser borra todos los eventos del usuario (baja de cuenta).
func (s *Service) DeleteForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("audit: delete for user: %w", err)
	}
	return n, nil
}

// Prune borra eventos con más de olderThanDays días.
func (s *Service) Prune(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("audit: prune: days must be positive: %w", repository.ErrInvalidInput)
	}
	cutoff := s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	n, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: prune: %w", err)
	}
	logger.From(ctx).Info("audit events pruned", logger.Component("audit"), logger.Int64("deleted", n))
	return n, nil
}
