package service

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/schedule"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type sectionRepository interface {
	Create(ctx context.Context, section *models.Section) error
	ReplaceSlots(ctx context.Context, sectionID string, slots []models.ScheduleSlot) error
	FindByID(ctx context.Context, id string) (*models.Section, error)
	FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error)
	List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error)
	SetOpen(ctx context.Context, id string, open bool) error
	SchedulesForInstructor(ctx context.Context, instructorID, termID, excludeSectionID string) ([]models.SectionSchedule, error)
	SchedulesForRoom(ctx context.Context, room, termID, excludeSectionID string) ([]models.SectionSchedule, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type termReader interface {
	FindByID(ctx context.Context, id string) (*models.Term, error)
}

// SlotRequest describes one weekly meeting in wall-clock form.
type SlotRequest struct {
	Day   string `json:"day" validate:"required"`
	Start string `json:"start" validate:"required"`
	End   string `json:"end" validate:"required"`
	Room  string `json:"room" validate:"required"`
}

// CreateSectionRequest describes a new section offering.
type CreateSectionRequest struct {
	CourseID           string        `json:"course_id" validate:"required"`
	TermID             string        `json:"term_id" validate:"required"`
	InstructorID       string        `json:"instructor_id" validate:"required"`
	Capacity           int           `json:"capacity" validate:"required,gt=0"`
	EnrollmentDeadline *time.Time    `json:"enrollment_deadline,omitempty"`
	Slots              []SlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// UpdateScheduleRequest replaces the weekly meetings of a section.
type UpdateScheduleRequest struct {
	Slots []SlotRequest `json:"slots" validate:"required,min=1,dive"`
}

// SectionService manages section offerings and their schedules. Instructor
// and room double-booking is rejected at write time so enrollment-side
// conflict checks can trust the stored slots.
type SectionService struct {
	repo      sectionRepository
	courses   courseReader
	terms     termReader
	audit     *AuditService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSectionService constructs a SectionService.
func NewSectionService(repo sectionRepository, courses courseReader, terms termReader, audit *AuditService, validate *validator.Validate, logger *zap.Logger) *SectionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SectionService{repo: repo, courses: courses, terms: terms, audit: audit, validator: validate, logger: logger}
}

// Create registers a section offering with its weekly schedule.
func (s *SectionService) Create(ctx context.Context, req CreateSectionRequest, actorID string) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid section payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("course", req.CourseID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if _, err := s.terms.FindByID(ctx, req.TermID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("term", req.TermID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}

	slots, err := s.parseSlots(req.Slots)
	if err != nil {
		return nil, err
	}
	if err := s.checkDoubleBooking(ctx, slots, req.InstructorID, req.TermID, ""); err != nil {
		return nil, err
	}

	section := &models.Section{
		CourseID:            req.CourseID,
		TermID:              req.TermID,
		InstructorID:        req.InstructorID,
		Capacity:            req.Capacity,
		EnrollmentDeadline:  req.EnrollmentDeadline,
		IsOpenForEnrollment: true,
		GradesEditable:      true,
		Slots:               slots,
	}
	if err := s.repo.Create(ctx, section); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create section")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionSectionManage, "section", &section.ID, map[string]string{"op": "create"})
	}
	return s.repo.FindDetailByID(ctx, section.ID)
}

// UpdateSchedule replaces the weekly meetings of a section after re-running
// the double-booking checks.
func (s *SectionService) UpdateSchedule(ctx context.Context, sectionID string, req UpdateScheduleRequest, actorID string) (*models.SectionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	section, err := s.repo.FindByID(ctx, sectionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", sectionID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if section.FinalGradesPosted {
		return nil, appErrors.ErrGradesPosted
	}

	slots, err := s.parseSlots(req.Slots)
	if err != nil {
		return nil, err
	}
	if err := s.checkDoubleBooking(ctx, slots, section.InstructorID, section.TermID, sectionID); err != nil {
		return nil, err
	}

	if err := s.repo.ReplaceSlots(ctx, sectionID, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	if s.audit != nil {
		s.audit.Record(ctx, &actorID, models.AuditActionSectionManage, "section", &sectionID, map[string]string{"op": "reschedule"})
	}
	return s.repo.FindDetailByID(ctx, sectionID)
}

// SetOpen opens or closes a section for enrollment.
func (s *SectionService) SetOpen(ctx context.Context, sectionID string, open bool, actorID string) error {
	if _, err := s.repo.FindByID(ctx, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.NotFoundEntity("section", sectionID)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	if err := s.repo.SetOpen(ctx, sectionID, open); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update section")
	}
	if s.audit != nil {
		op := "close"
		if open {
			op = "open"
		}
		s.audit.Record(ctx, &actorID, models.AuditActionSectionManage, "section", &sectionID, map[string]string{"op": op})
	}
	return nil
}

// Get returns a section with its catalog context and slots.
func (s *SectionService) Get(ctx context.Context, id string) (*models.SectionDetail, error) {
	detail, err := s.repo.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", id)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load section")
	}
	return detail, nil
}

// List returns sections with pagination metadata.
func (s *SectionService) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, error) {
	sections, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sections")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sections, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *SectionService) parseSlots(requests []SlotRequest) ([]models.ScheduleSlot, error) {
	slots := make([]models.ScheduleSlot, 0, len(requests))
	for _, req := range requests {
		start, err := schedule.ParseClock(req.Start)
		if err != nil {
			return nil, err
		}
		end, err := schedule.ParseClock(req.End)
		if err != nil {
			return nil, err
		}
		slot := models.ScheduleSlot{
			Day:      strings.ToUpper(req.Day),
			StartMin: start,
			EndMin:   end,
			Room:     req.Room,
		}
		if err := invariant.ValidSlot(slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	// The section's own meetings must not overlap each other either.
	for i := range slots {
		for j := i + 1; j < len(slots); j++ {
			if schedule.SlotsOverlap(slots[i], slots[j]) {
				return nil, appErrors.Clone(appErrors.ErrScheduleConflict, "section slots overlap each other")
			}
		}
	}
	return slots, nil
}

func (s *SectionService) checkDoubleBooking(ctx context.Context, slots []models.ScheduleSlot, instructorID, termID, excludeSectionID string) error {
	instructorSchedules, err := s.repo.SchedulesForInstructor(ctx, instructorID, termID, excludeSectionID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor schedule")
	}
	if conflicts := schedule.FindConflicts(slots, instructorSchedules); len(conflicts) > 0 {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrScheduleConflict, "instructor already teaches "+strings.Join(schedule.ConflictMessages(conflicts), "; ")),
			map[string]interface{}{"conflicts": conflicts},
		)
	}

	// Room checks only compare slots within the same room.
	byRoom := make(map[string][]models.ScheduleSlot)
	for _, slot := range slots {
		byRoom[slot.Room] = append(byRoom[slot.Room], slot)
	}
	for room, roomSlots := range byRoom {
		roomSchedules, err := s.repo.SchedulesForRoom(ctx, room, termID, excludeSectionID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load room schedule")
		}
		if conflicts := schedule.FindConflicts(roomSlots, roomSchedules); len(conflicts) > 0 {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrScheduleConflict, "room "+room+" is booked for "+strings.Join(schedule.ConflictMessages(conflicts), "; ")),
				map[string]interface{}{"conflicts": conflicts},
			)
		}
	}
	return nil
}
