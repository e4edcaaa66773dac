package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type assessmentRepository interface {
	Create(ctx context.Context, assessment *models.Assessment) error
	UpdateWeight(ctx context.Context, assessment *models.Assessment) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.Assessment, error)
	ListBySection(ctx context.Context, sectionID string) ([]models.Assessment, error)
}

// CreateAssessmentRequest adds a weighted component to a section.
type CreateAssessmentRequest struct {
	SectionID   string  `json:"section_id" validate:"required"`
	Title       string  `json:"title" validate:"required"`
	Weight      float64 `json:"weight" validate:"required,gt=0"`
	TotalPoints float64 `json:"total_points" validate:"required,gt=0"`
}

// UpdateAssessmentRequest edits an assessment's weight, title or points.
type UpdateAssessmentRequest struct {
	Title       string  `json:"title" validate:"required"`
	Weight      float64 `json:"weight" validate:"required,gt=0"`
	TotalPoints float64 `json:"total_points" validate:"required,gt=0"`
}

// AssessmentService manages section assessment plans. Weight-sum
// enforcement happens in the repository under the section lock; this layer
// validates shape and records the audit trail.
type AssessmentService struct {
	repo      assessmentRepository
	audit     *AuditService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAssessmentService constructs an AssessmentService.
func NewAssessmentService(repo assessmentRepository, audit *AuditService, validate *validator.Validate, logger *zap.Logger) *AssessmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssessmentService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Create adds an assessment to a section.
func (s *AssessmentService) Create(ctx context.Context, req CreateAssessmentRequest, actorID string) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessment := &models.Assessment{
		SectionID:   req.SectionID,
		Title:       req.Title,
		Weight:      req.Weight,
		TotalPoints: req.TotalPoints,
	}
	if err := s.repo.Create(ctx, assessment); err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionAssessmentEdit, "assessment", &assessment.ID, map[string]string{"op": "create"})
	}
	return assessment, nil
}

// Update edits an assessment.
func (s *AssessmentService) Update(ctx context.Context, id string, req UpdateAssessmentRequest, actorID string) (*models.Assessment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assessment payload")
	}
	assessment := &models.Assessment{
		ID:          id,
		Title:       req.Title,
		Weight:      req.Weight,
		TotalPoints: req.TotalPoints,
	}
	if err := s.repo.UpdateWeight(ctx, assessment); err != nil {
		return nil, err
	}
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionAssessmentEdit, "assessment", &id, map[string]string{"op": "update"})
	}
	return assessment, nil
}

// Delete removes an assessment and its recorded grades.
func (s *AssessmentService) Delete(ctx context.Context, id string, actorID string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionAssessmentEdit, "assessment", &id, map[string]string{"op": "delete"})
	}
	return nil
}

// Get returns an assessment.
func (s *AssessmentService) Get(ctx context.Context, id string) (*models.Assessment, error) {
	assessment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("assessment", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assessment")
	}
	return assessment, nil
}

// ListBySection returns the assessment plan of a section.
func (s *AssessmentService) ListBySection(ctx context.Context, sectionID string) ([]models.Assessment, error) {
	assessments, err := s.repo.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assessments")
	}
	return assessments, nil
}
