package service

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/repository"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type graduationRepository interface {
	Audit(ctx context.Context, studentID string) (*models.DegreeAuditResult, error)
	Process(ctx context.Context, studentID, approverID string) (*models.GraduationRecord, error)
	FindRecordByStudent(ctx context.Context, studentID string) (*models.GraduationRecord, error)
}

type graduationCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// GraduationService runs degree audits and processes graduations.
type GraduationService struct {
	repo          graduationRepository
	cache         graduationCache
	audit         *AuditService
	notifications *NotificationService
	metrics       *MetricsService
	logger        *zap.Logger
	auditCacheTTL time.Duration
}

// NewGraduationService constructs a GraduationService.
func NewGraduationService(repo graduationRepository, cache graduationCache, audit *AuditService, notifications *NotificationService, metrics *MetricsService, logger *zap.Logger, auditCacheTTL time.Duration) *GraduationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraduationService{
		repo:          repo,
		cache:         cache,
		audit:         audit,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		auditCacheTTL: auditCacheTTL,
	}
}

// DegreeAudit reports graduation eligibility. Ineligibility is data, not an
// error: the result lists every unmet requirement.
func (s *GraduationService) DegreeAudit(ctx context.Context, studentID string) (*models.DegreeAuditResult, error) {
	key := repository.DegreeAuditKey(studentID)
	if s.cache != nil {
		var cached models.DegreeAuditResult
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, nil
		}
		s.metrics.RecordCacheOperation(false)
	}

	result, err := s.repo.Audit(ctx, studentID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.auditCacheTTL); err != nil {
			s.logger.Warn("cache degree audit", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return result, nil
}

// Graduate processes a graduation: the full audit re-runs inside the
// transaction, and on success the record, alumni profile and GRADUATED
// status commit together.
func (s *GraduationService) Graduate(ctx context.Context, studentID, approverID string) (*models.GraduationRecord, error) {
	record, err := s.repo.Process(ctx, studentID, approverID)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordGraduation()
	if s.audit != nil {
		s.audit.Record(ctx, &approverID, models.AuditActionGraduation, "student", &studentID, map[string]interface{}{
			"gpa":     record.GPA,
			"credits": record.Credits,
		})
	}
	s.notifications.Dispatch(NotifyGraduated, NotificationPayload{StudentID: studentID})
	if s.cache != nil {
		if err := s.cache.DeleteByPattern(ctx, repository.StudentCachePattern(studentID)); err != nil {
			s.logger.Warn("invalidate student caches", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	return record, nil
}

// Record returns the graduation record of a student, if any.
func (s *GraduationService) Record(ctx context.Context, studentID string) (*models.GraduationRecord, error) {
	record, err := s.repo.FindRecordByStudent(ctx, studentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("graduation record", studentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load graduation record")
	}
	return record, nil
}
