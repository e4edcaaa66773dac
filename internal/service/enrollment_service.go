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

type enrollmentRepository interface {
	Admit(ctx context.Context, params models.AdmitParams) (*models.AdmitOutcome, error)
	Drop(ctx context.Context, enrollmentID string, next models.EnrollmentStatus) (*models.DropOutcome, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type sectionReader interface {
	FindByID(ctx context.Context, id string) (*models.Section, error)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// AdmitRequest describes an admission attempt.
type AdmitRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	SectionID    string `json:"section_id" validate:"required"`
	JoinWaitlist bool   `json:"join_waitlist"`
}

// DropRequest describes a drop. The actor determines the terminal status:
// students dropping themselves end DROPPED, staff-initiated drops end
// WITHDRAWN.
type DropRequest struct {
	ActorID   string          `json:"-"`
	ActorRole models.UserRole `json:"-"`
}

// EnrollmentConfig carries admission policy knobs.
type EnrollmentConfig struct {
	WaitlistEnabled  bool
	MaxWaitlistDepth int
}

// EnrollmentService orchestrates admissions, drops and waitlist promotion.
type EnrollmentService struct {
	repo          enrollmentRepository
	students      studentReader
	sections      sectionReader
	cache         cacheInvalidator
	audit         *AuditService
	notifications *NotificationService
	metrics       *MetricsService
	validator     *validator.Validate
	logger        *zap.Logger
	config        EnrollmentConfig
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo enrollmentRepository, students studentReader, sections sectionReader, cache cacheInvalidator, audit *AuditService, notifications *NotificationService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config EnrollmentConfig) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		repo:          repo,
		students:      students,
		sections:      sections,
		cache:         cache,
		audit:         audit,
		notifications: notifications,
		metrics:       metrics,
		validator:     validate,
		logger:        logger,
		config:        config,
	}
}

// Admit attempts to enroll a student into a section, waitlisting when the
// section is full and the request opts in.
func (s *EnrollmentService) Admit(ctx context.Context, req AdmitRequest, actorID string) (*models.AdmitOutcome, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admission payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("student", req.StudentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is not active")
	}
	if _, err := s.sections.FindByID(ctx, req.SectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", req.SectionID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}

	joinWaitlist := req.JoinWaitlist && s.config.WaitlistEnabled
	outcome, err := s.repo.Admit(ctx, models.AdmitParams{
		StudentID:        req.StudentID,
		SectionID:        req.SectionID,
		JoinWaitlist:     joinWaitlist,
		MaxWaitlistDepth: s.config.MaxWaitlistDepth,
	})
	if err != nil {
		s.metrics.RecordAdmission("rejected")
		return nil, err
	}

	action := models.AuditActionAdmit
	metricOutcome := "admitted"
	if outcome.Enrollment.Status == models.EnrollmentStatusWaitlisted {
		action = models.AuditActionWaitlist
		metricOutcome = "waitlisted"
	}
	s.metrics.RecordAdmission(metricOutcome)
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, action, "enrollment", &outcome.Enrollment.ID, map[string]interface{}{
			"student_id": req.StudentID,
			"section_id": req.SectionID,
			"status":     outcome.Enrollment.Status,
		})
	}
	s.invalidateStudentCaches(ctx, req.StudentID)
	return outcome, nil
}

// Drop ends an enrollment. Self-drops become DROPPED, staff drops become
// WITHDRAWN; a freed seat promotes the waitlist head in the same unit of
// work.
func (s *EnrollmentService) Drop(ctx context.Context, enrollmentID string, req DropRequest) (*models.DropOutcome, error) {
	enrollment, err := s.repo.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("enrollment", enrollmentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}

	next := models.EnrollmentStatusWithdrawn
	if req.ActorRole == models.RoleStudent {
		if req.ActorID != enrollment.StudentID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "students may only drop their own enrollments")
		}
		next = models.EnrollmentStatusDropped
	}

	outcome, err := s.repo.Drop(ctx, enrollmentID, next)
	if err != nil {
		return nil, err
	}

	if s.audit != nil {
		s.audit.Record(ctx, &req.ActorID, models.AuditActionDrop, "enrollment", &enrollmentID, map[string]interface{}{
			"student_id": enrollment.StudentID,
			"status":     outcome.Enrollment.Status,
		})
	}
	s.invalidateStudentCaches(ctx, enrollment.StudentID)

	if outcome.PromotedEnrollmentID != nil {
		s.metrics.RecordPromotion()
		promoted, err := s.repo.FindByID(ctx, *outcome.PromotedEnrollmentID)
		if err != nil {
			s.logger.Warn("load promoted enrollment", zap.String("enrollment_id", *outcome.PromotedEnrollmentID), zap.Error(err))
		} else {
			if s.audit != nil {
				s.audit.Record(ctx, nil, models.AuditActionPromote, "enrollment", outcome.PromotedEnrollmentID, map[string]interface{}{
					"student_id": promoted.StudentID,
					"section_id": promoted.SectionID,
				})
			}
			s.notifications.Dispatch(NotifyWaitlistPromoted, NotificationPayload{
				StudentID:    promoted.StudentID,
				EnrollmentID: promoted.ID,
				SectionID:    promoted.SectionID,
			})
			s.invalidateStudentCaches(ctx, promoted.StudentID)
		}
	}
	return outcome, nil
}

// Get returns an enrollment with its student and course context.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("enrollment", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return detail, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return enrollments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *EnrollmentService) invalidateStudentCaches(ctx context.Context, studentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, repository.StudentCachePattern(studentID)); err != nil {
		s.logger.Warn("invalidate student caches", zap.String("student_id", studentID), zap.Error(err))
	}
}
