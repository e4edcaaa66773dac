package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/models"
)

// SectionRepository handles persistence of sections and their schedule slots.
type SectionRepository struct {
	db *sqlx.DB
}

// NewSectionRepository constructs the repository.
func NewSectionRepository(db *sqlx.DB) *SectionRepository {
	return &SectionRepository{db: db}
}

const sectionColumns = `id, course_id, term_id, instructor_id, capacity, enrollment_count,
        is_open_for_enrollment, enrollment_deadline, final_grades_posted, grades_editable, is_locked,
        created_at, updated_at`

// Create inserts a section and its slots in one transaction.
func (r *SectionRepository) Create(ctx context.Context, section *models.Section) error {
	if section.ID == "" {
		section.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	section.CreatedAt = now
	section.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const query = `INSERT INTO sections (id, course_id, term_id, instructor_id, capacity, enrollment_count,
        is_open_for_enrollment, enrollment_deadline, final_grades_posted, grades_editable, is_locked, created_at, updated_at)
        VALUES (:id, :course_id, :term_id, :instructor_id, :capacity, :enrollment_count,
        :is_open_for_enrollment, :enrollment_deadline, :final_grades_posted, :grades_editable, :is_locked, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, section); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("create section: %w", err)
	}
	if err := insertSlots(ctx, tx, section.ID, section.Slots); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit section: %w", err)
	}
	for i := range section.Slots {
		section.Slots[i].SectionID = section.ID
	}
	return nil
}

// ReplaceSlots swaps the schedule of a section atomically.
func (r *SectionRepository) ReplaceSlots(ctx context.Context, sectionID string, slots []models.ScheduleSlot) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM section_slots WHERE section_id = $1`, sectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear slots: %w", err)
	}
	if err := insertSlots(ctx, tx, sectionID, slots); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sections SET updated_at = $2 WHERE id = $1`, sectionID, time.Now().UTC()); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("touch section: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit slots: %w", err)
	}
	return nil
}

func insertSlots(ctx context.Context, tx *sqlx.Tx, sectionID string, slots []models.ScheduleSlot) error {
	const query = `INSERT INTO section_slots (id, section_id, day, start_min, end_min, room)
        VALUES ($1, $2, $3, $4, $5, $6)`
	for i := range slots {
		if slots[i].ID == "" {
			slots[i].ID = uuid.NewString()
		}
		slot := slots[i]
		if _, err := tx.ExecContext(ctx, query, slot.ID, sectionID, strings.ToUpper(slot.Day), slot.StartMin, slot.EndMin, slot.Room); err != nil {
			return fmt.Errorf("insert slot: %w", err)
		}
	}
	return nil
}

// FindByID returns a section with its slots.
func (r *SectionRepository) FindByID(ctx context.Context, id string) (*models.Section, error) {
	query := fmt.Sprintf(`SELECT %s FROM sections WHERE id = $1`, sectionColumns)
	var section models.Section
	if err := r.db.GetContext(ctx, &section, query, id); err != nil {
		return nil, err
	}
	slots, err := r.Slots(ctx, id)
	if err != nil {
		return nil, err
	}
	section.Slots = slots
	return &section, nil
}

// FindDetailByID returns a section with catalog context.
func (r *SectionRepository) FindDetailByID(ctx context.Context, id string) (*models.SectionDetail, error) {
	const query = `SELECT s.id, s.course_id, s.term_id, s.instructor_id, s.capacity, s.enrollment_count,
        s.is_open_for_enrollment, s.enrollment_deadline, s.final_grades_posted, s.grades_editable, s.is_locked,
        s.created_at, s.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name
        FROM sections s
        JOIN courses c ON c.id = s.course_id
        JOIN terms t ON t.id = s.term_id
        WHERE s.id = $1`
	var detail models.SectionDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	slots, err := r.Slots(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Slots = slots
	return &detail, nil
}

// Slots returns the schedule slots of a section.
func (r *SectionRepository) Slots(ctx context.Context, sectionID string) ([]models.ScheduleSlot, error) {
	const query = `SELECT id, section_id, day, start_min, end_min, room FROM section_slots WHERE section_id = $1 ORDER BY day, start_min`
	var slots []models.ScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, sectionID); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	return slots, nil
}

// List returns sections filtered by the provided criteria.
func (r *SectionRepository) List(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, int, error) {
	base := `FROM sections s
JOIN courses c ON c.id = s.course_id
JOIN terms t ON t.id = s.term_id`
	var conditions []string
	var args []interface{}

	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("s.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("s.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.instructor_id = $%d", len(args)+1))
		args = append(args, filter.InstructorID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "s.is_open_for_enrollment = TRUE")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":  "s.created_at",
		"course_code": "c.code",
		"capacity":    "s.capacity",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.code"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT s.id, s.course_id, s.term_id, s.instructor_id, s.capacity, s.enrollment_count,
        s.is_open_for_enrollment, s.enrollment_deadline, s.final_grades_posted, s.grades_editable, s.is_locked,
        s.created_at, s.updated_at,
        c.code AS course_code, c.title AS course_title, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var sections []models.SectionDetail
	if err := r.db.SelectContext(ctx, &sections, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sections: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sections: %w", err)
	}
	return sections, total, nil
}

// SetOpen toggles enrollment availability.
func (r *SectionRepository) SetOpen(ctx context.Context, id string, open bool) error {
	const query = `UPDATE sections SET is_open_for_enrollment = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, open, time.Now().UTC()); err != nil {
		return fmt.Errorf("toggle section: %w", err)
	}
	return nil
}

// SchedulesForInstructor returns the schedules of an instructor's sections
// in a term, excluding the provided section.
func (r *SectionRepository) SchedulesForInstructor(ctx context.Context, instructorID, termID, excludeSectionID string) ([]models.SectionSchedule, error) {
	const query = `SELECT sl.id, sl.section_id, sl.day, sl.start_min, sl.end_min, sl.room, c.code AS course_code
        FROM section_slots sl
        JOIN sections s ON s.id = sl.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE s.instructor_id = $1 AND s.term_id = $2 AND s.id <> $3
        ORDER BY sl.section_id, sl.day, sl.start_min`
	return r.collectSchedules(ctx, r.db, query, instructorID, termID, excludeSectionID)
}

// SchedulesForRoom returns the schedules occupying a room in a term,
// excluding the provided section.
func (r *SectionRepository) SchedulesForRoom(ctx context.Context, room, termID, excludeSectionID string) ([]models.SectionSchedule, error) {
	const query = `SELECT sl.id, sl.section_id, sl.day, sl.start_min, sl.end_min, sl.room, c.code AS course_code
        FROM section_slots sl
        JOIN sections s ON s.id = sl.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE sl.room = $1 AND s.term_id = $2 AND s.id <> $3
        ORDER BY sl.section_id, sl.day, sl.start_min`
	return r.collectSchedules(ctx, r.db, query, room, termID, excludeSectionID)
}

type scheduleRow struct {
	models.ScheduleSlot
	CourseCode string `db:"course_code"`
}

func (r *SectionRepository) collectSchedules(ctx context.Context, q sqlx.QueryerContext, query string, args ...interface{}) ([]models.SectionSchedule, error) {
	var rows []scheduleRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	return groupSchedules(rows), nil
}

func groupSchedules(rows []scheduleRow) []models.SectionSchedule {
	var schedules []models.SectionSchedule
	index := make(map[string]int)
	for _, row := range rows {
		i, ok := index[row.SectionID]
		if !ok {
			schedules = append(schedules, models.SectionSchedule{SectionID: row.SectionID, CourseCode: row.CourseCode})
			i = len(schedules) - 1
			index[row.SectionID] = i
		}
		schedules[i].Slots = append(schedules[i].Slots, row.ScheduleSlot)
	}
	return schedules
}
