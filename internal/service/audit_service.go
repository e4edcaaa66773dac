package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/models"
)

type auditLogWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuditService appends audit trail entries. Appends are best effort: a
// failed write is logged and swallowed so it never fails the operation it
// describes.
type AuditService struct {
	repo   auditLogWriter
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditLogWriter, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record appends an audit entry for the given action.
func (s *AuditService) Record(ctx context.Context, userID *string, action, resource string, resourceID *string, details interface{}) {
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		CreatedAt:  time.Now().UTC(),
	}
	if details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			s.logger.Warn("marshal audit details", zap.String("action", action), zap.Error(err))
		} else {
			entry.Details = payload
		}
	}
	if err := s.repo.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("append audit log", zap.String("action", action), zap.Error(err))
	}
}
