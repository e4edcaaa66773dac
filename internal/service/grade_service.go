package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/repository"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type gradeRepository interface {
	Upsert(ctx context.Context, entry models.GradeEntry) (*models.Grade, error)
	BulkUpsert(ctx context.Context, entries []models.GradeEntry) ([]models.Grade, error)
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error)
}

type finalGradePoster interface {
	PostSection(ctx context.Context, sectionID string) ([]models.FinalGradeResult, error)
}

// RecordGradeRequest submits a single assessment score.
type RecordGradeRequest struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	AssessmentID string  `json:"assessment_id" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0"`
}

// BulkGradeRequest submits a batch of scores that commit or fail together.
type BulkGradeRequest struct {
	Grades []models.GradeEntry `json:"grades" validate:"required,min=1,dive"`
}

// GradeService orchestrates score recording and final-grade posting.
type GradeService struct {
	repo          gradeRepository
	poster        finalGradePoster
	cache         cacheInvalidator
	audit         *AuditService
	notifications *NotificationService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(repo gradeRepository, poster finalGradePoster, cache cacheInvalidator, audit *AuditService, notifications *NotificationService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{
		repo:          repo,
		poster:        poster,
		cache:         cache,
		audit:         audit,
		notifications: notifications,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
	}
}

// Record stores one assessment score and returns the derived grade.
func (s *GradeService) Record(ctx context.Context, req RecordGradeRequest, actorID string) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade, err := s.repo.Upsert(ctx, models.GradeEntry{
		EnrollmentID: req.EnrollmentID,
		AssessmentID: req.AssessmentID,
		Score:        req.Score,
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordGrades(1)
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionGradeRecord, "grade", &grade.ID, map[string]interface{}{
			"enrollment_id": req.EnrollmentID,
			"assessment_id": req.AssessmentID,
		})
	}
	return grade, nil
}

// BulkRecord stores a batch of scores atomically.
func (s *GradeService) BulkRecord(ctx context.Context, req BulkGradeRequest, actorID string) ([]models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk grade payload")
	}
	grades, err := s.repo.BulkUpsert(ctx, req.Grades)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordGrades(len(grades))
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionGradeRecord, "grade", nil, map[string]interface{}{
			"count": len(grades),
		})
	}
	return grades, nil
}

// List returns grades matching the filter.
func (s *GradeService) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	grades, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// PostFinalGrades posts the final grades of a section: every active
// enrollment is finalized and receives its transcript entry, or nothing
// changes.
func (s *GradeService) PostFinalGrades(ctx context.Context, sectionID, actorID string) ([]models.FinalGradeResult, error) {
	results, err := s.poster.PostSection(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", sectionID)
		}
		return nil, err
	}

	s.metrics.RecordFinalPosting()
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionFinalPosting, "section", &sectionID, map[string]interface{}{
			"students": len(results),
		})
	}
	for _, result := range results {
		s.notifications.Dispatch(NotifyFinalGradesPosted, NotificationPayload{
			StudentID:    result.StudentID,
			EnrollmentID: result.EnrollmentID,
			SectionID:    sectionID,
		})
		s.invalidateStudentCaches(ctx, result.StudentID)
	}
	return results, nil
}

func (s *GradeService) invalidateStudentCaches(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, repository.StudentCachePattern(studentID)); err != nil {
		s.logger.Warn("invalidate student caches", zap.String("student_id", studentID), zap.Error(err))
	}
}
