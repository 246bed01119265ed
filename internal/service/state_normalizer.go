package service

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/orgtime"
)

type heldSessionDemoter interface {
	DemoteFutureHeld(ctx context.Context, today, dateFrom, dateTo, classID string) ([]string, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// StateNormalizer repairs sessions marked Held before they could have happened.
type StateNormalizer struct {
	sessions heldSessionDemoter
	audit    auditWriter
	logger   *zap.Logger
}

// NewStateNormalizer constructs the normalizer. audit may be nil.
func NewStateNormalizer(sessions heldSessionDemoter, audit auditWriter, logger *zap.Logger) *StateNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateNormalizer{sessions: sessions, audit: audit, logger: logger}
}

// NormalizeFutureHeld demotes non-manual Held sessions of month dated today or
// later back to Scheduled and returns their ids.
func (n *StateNormalizer) NormalizeFutureHeld(ctx context.Context, month orgtime.Month, today, classID string) ([]string, error) {
	ids, err := n.sessions.DemoteFutureHeld(ctx, today, month.FirstDay(), month.LastDay(), classID)
	if err != nil {
		return nil, fmt.Errorf("normalize future held sessions: %w", err)
	}
	if len(ids) == 0 {
		return ids, nil
	}

	n.logger.Warn("demoted future held sessions",
		zap.String("month", month.String()), zap.Int("count", len(ids)), zap.Strings("session_ids", ids))

	if n.audit != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"month":       month.String(),
			"today":       today,
			"session_ids": ids,
			"from_status": models.SessionStatusHeld,
			"to_status":   models.SessionStatusScheduled,
		})
		entry := &models.AuditLog{
			Action:    models.AuditActionSessionStateRepaired,
			Resource:  "class_session",
			NewValues: payload,
		}
		if err := n.audit.CreateAuditLog(ctx, entry); err != nil {
			n.logger.Warn("failed to audit state repair", zap.Error(err))
		}
	}
	return ids, nil
}
