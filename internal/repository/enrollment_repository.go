package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	"github.com/sisforge/sis-core-api/internal/schedule"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// EnrollmentRepository owns the enrollment rows and the section seat
// counter. Every mutation that touches the counter runs inside a single
// transaction holding the section row lock, so concurrent admissions
// serialize and the counter always matches the rows it summarises.
type EnrollmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const enrollmentColumns = `id, student_id, section_id, status, queue_seq, enrolled_at, left_at, grade_letter`

const lockSectionQuery = `SELECT id, course_id, term_id, instructor_id, capacity, enrollment_count,
        is_open_for_enrollment, enrollment_deadline, final_grades_posted, grades_editable, is_locked,
        created_at, updated_at
        FROM sections WHERE id = $1 FOR UPDATE`

// Admit performs the full admit-or-waitlist unit of work from spec'd
// admission flow: section admissibility, prerequisites, schedule conflicts,
// duplicate detection and the seat decision all execute under the section
// row lock, and the enrollment row plus counter update commit together or
// not at all.
func (r *EnrollmentRepository) Admit(ctx context.Context, params models.AdmitParams) (*models.AdmitOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var section models.Section
	if err := tx.GetContext(ctx, &section, lockSectionQuery, params.SectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", params.SectionID)
		}
		return nil, fmt.Errorf("lock section: %w", err)
	}

	now := r.now()
	if err := invariant.SectionAcceptsEnrollment(&section, now); err != nil {
		// An expired deadline closes the section as a committed side
		// effect; the admission itself still fails.
		if appErrors.FromError(err).Code == appErrors.ErrDeadlinePassed.Code {
			if _, closeErr := tx.ExecContext(ctx,
				`UPDATE sections SET is_open_for_enrollment = FALSE, updated_at = $2 WHERE id = $1`,
				section.ID, now); closeErr == nil {
				tx.Commit() //nolint:errcheck
			} else {
				tx.Rollback() //nolint:errcheck
			}
			return nil, err
		}
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	course, err := r.courseForSection(ctx, tx, section.CourseID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	if err := r.checkPrerequisites(ctx, tx, params.StudentID, course); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	if err := r.checkScheduleConflicts(ctx, tx, params.StudentID, section.TermID, section.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	if err := r.checkDuplicate(ctx, tx, params.StudentID, course.ID, section.TermID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	status, err := invariant.DecideAdmission(&section, params.JoinWaitlist)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	enrollment := models.Enrollment{
		ID:         uuid.NewString(),
		StudentID:  params.StudentID,
		SectionID:  section.ID,
		Status:     status,
		EnrolledAt: now,
	}

	count := section.EnrollmentCount
	switch status {
	case models.EnrollmentStatusWaitlisted:
		seq, err := r.nextQueueSeq(ctx, tx, section.ID, params.MaxWaitlistDepth)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
		enrollment.QueueSeq = &seq
	default:
		count++
	}

	const insertQuery = `INSERT INTO enrollments (id, student_id, section_id, status, queue_seq, enrolled_at, left_at, grade_letter)
        VALUES (:id, :student_id, :section_id, :status, :queue_seq, :enrolled_at, :left_at, :grade_letter)`
	if _, err := tx.NamedExecContext(ctx, insertQuery, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}

	if count != section.EnrollmentCount {
		if err := r.setEnrollmentCount(ctx, tx, section.ID, count, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}
	return &models.AdmitOutcome{Enrollment: enrollment, EnrollmentCount: count}, nil
}

// Drop marks an enrollment dropped or withdrawn and, when the drop frees a
// counted seat, promotes the earliest-queued waitlisted enrollment in the
// same transaction. The counter is never observable out of step with the
// rows.
func (r *EnrollmentRepository) Drop(ctx context.Context, enrollmentID string, next models.EnrollmentStatus) (*models.DropOutcome, error) {
	if next != models.EnrollmentStatusDropped && next != models.EnrollmentStatusWithdrawn {
		return nil, appErrors.FieldInvalid("status", "drop target must be DROPPED or WITHDRAWN")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	// Resolve the section first so the lock order (section, then
	// enrollment) matches the admit path.
	var sectionID string
	if err := tx.GetContext(ctx, &sectionID, `SELECT section_id FROM enrollments WHERE id = $1`, enrollmentID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("enrollment", enrollmentID)
		}
		return nil, fmt.Errorf("resolve enrollment: %w", err)
	}

	var section models.Section
	if err := tx.GetContext(ctx, &section, lockSectionQuery, sectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock section: %w", err)
	}

	var enrollment models.Enrollment
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1 FOR UPDATE`, enrollmentColumns)
	if err := tx.GetContext(ctx, &enrollment, query, enrollmentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}

	if err := invariant.EnrollmentTransition(enrollment.Status, next, false, false); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	now := r.now()
	wasCounted := enrollment.Status == models.EnrollmentStatusActive

	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1`,
		enrollment.ID, next, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("update enrollment: %w", err)
	}
	enrollment.Status = next
	enrollment.LeftAt = &now

	outcome := &models.DropOutcome{Enrollment: enrollment, EnrollmentCount: section.EnrollmentCount}
	if wasCounted {
		count := section.EnrollmentCount - 1

		promoted, err := r.promoteOldestWaitlisted(ctx, tx, section.ID)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
		if promoted != nil {
			outcome.PromotedEnrollmentID = &promoted.ID
			count++
		}

		if count != section.EnrollmentCount {
			if err := r.setEnrollmentCount(ctx, tx, section.ID, count, now); err != nil {
				tx.Rollback() //nolint:errcheck
				return nil, err
			}
		}
		outcome.EnrollmentCount = count
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit drop: %w", err)
	}
	return outcome, nil
}

func (r *EnrollmentRepository) promoteOldestWaitlisted(ctx context.Context, tx *sqlx.Tx, sectionID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments
        WHERE section_id = $1 AND status = $2
        ORDER BY queue_seq ASC LIMIT 1 FOR UPDATE`, enrollmentColumns)
	var candidate models.Enrollment
	if err := tx.GetContext(ctx, &candidate, query, sectionID, models.EnrollmentStatusWaitlisted); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find waitlist head: %w", err)
	}
	if err := invariant.EnrollmentTransition(candidate.Status, models.EnrollmentStatusActive, false, false); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE enrollments SET status = $2 WHERE id = $1`,
		candidate.ID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("promote enrollment: %w", err)
	}
	candidate.Status = models.EnrollmentStatusActive
	return &candidate, nil
}

func (r *EnrollmentRepository) courseForSection(ctx context.Context, tx *sqlx.Tx, courseID string) (*models.Course, error) {
	var course models.Course
	if err := tx.GetContext(ctx, &course,
		`SELECT id, code, title, credits, department_id, created_at, updated_at FROM courses WHERE id = $1`, courseID); err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	if err := tx.SelectContext(ctx, &course.Prerequisites,
		`SELECT prerequisite_code FROM course_prerequisites WHERE course_id = $1 ORDER BY prerequisite_code`, courseID); err != nil {
		return nil, fmt.Errorf("load prerequisites: %w", err)
	}
	return &course, nil
}

func (r *EnrollmentRepository) checkPrerequisites(ctx context.Context, tx *sqlx.Tx, studentID string, course *models.Course) error {
	if len(course.Prerequisites) == 0 {
		return nil
	}
	const query = `SELECT DISTINCT c.code
        FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.student_id = $1 AND e.status = $2 AND COALESCE(e.grade_letter, '') <> 'F'`
	var completed []string
	if err := tx.SelectContext(ctx, &completed, query, studentID, models.EnrollmentStatusCompleted); err != nil {
		return fmt.Errorf("load completed courses: %w", err)
	}
	have := make(map[string]struct{}, len(completed))
	for _, code := range completed {
		have[code] = struct{}{}
	}
	var missing []string
	for _, code := range course.Prerequisites {
		if _, ok := have[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrPrerequisiteMissing,
			fmt.Sprintf("missing prerequisites: %s", strings.Join(missing, ", "))),
		map[string]interface{}{"missing_courses": missing},
	)
}

func (r *EnrollmentRepository) checkScheduleConflicts(ctx context.Context, tx *sqlx.Tx, studentID, termID, sectionID string) error {
	candidate, err := r.slots(ctx, tx, sectionID)
	if err != nil {
		return err
	}
	if len(candidate) == 0 {
		return nil
	}

	const query = `SELECT sl.id, sl.section_id, sl.day, sl.start_min, sl.end_min, sl.room, c.code AS course_code
        FROM section_slots sl
        JOIN sections s ON s.id = sl.section_id
        JOIN enrollments e ON e.section_id = s.id
        JOIN courses c ON c.id = s.course_id
        WHERE e.student_id = $1 AND e.status = $2 AND s.term_id = $3 AND s.id <> $4
        ORDER BY sl.section_id, sl.day, sl.start_min`
	var rows []scheduleRow
	if err := tx.SelectContext(ctx, &rows, query, studentID, models.EnrollmentStatusActive, termID, sectionID); err != nil {
		return fmt.Errorf("load student schedules: %w", err)
	}

	conflicts := schedule.FindConflicts(candidate, groupSchedules(rows))
	if len(conflicts) == 0 {
		return nil
	}
	return appErrors.WithDetails(
		appErrors.Clone(appErrors.ErrScheduleConflict,
			fmt.Sprintf("conflicts with %s", strings.Join(schedule.ConflictMessages(conflicts), "; "))),
		map[string]interface{}{"conflicts": conflicts},
	)
}

func (r *EnrollmentRepository) checkDuplicate(ctx context.Context, tx *sqlx.Tx, studentID, courseID, termID string) error {
	const query = `SELECT EXISTS (
        SELECT 1 FROM enrollments e
        JOIN sections s ON s.id = e.section_id
        WHERE e.student_id = $1 AND s.course_id = $2 AND s.term_id = $3 AND e.status IN ($4, $5))`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, studentID, courseID, termID,
		models.EnrollmentStatusActive, models.EnrollmentStatusWaitlisted); err != nil {
		return fmt.Errorf("check duplicate enrollment: %w", err)
	}
	if exists {
		return appErrors.ErrDuplicateEnrollment
	}
	return nil
}

func (r *EnrollmentRepository) nextQueueSeq(ctx context.Context, tx *sqlx.Tx, sectionID string, maxDepth int) (int64, error) {
	if maxDepth > 0 {
		var depth int
		if err := tx.GetContext(ctx, &depth,
			`SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`,
			sectionID, models.EnrollmentStatusWaitlisted); err != nil {
			return 0, fmt.Errorf("count waitlist: %w", err)
		}
		if depth >= maxDepth {
			return 0, appErrors.Clone(appErrors.ErrSectionFull, "waitlist is full")
		}
	}
	var seq int64
	if err := tx.GetContext(ctx, &seq,
		`SELECT COALESCE(MAX(queue_seq), 0) + 1 FROM enrollments WHERE section_id = $1`,
		sectionID); err != nil {
		return 0, fmt.Errorf("next queue seq: %w", err)
	}
	return seq, nil
}

func (r *EnrollmentRepository) slots(ctx context.Context, tx *sqlx.Tx, sectionID string) ([]models.ScheduleSlot, error) {
	var slots []models.ScheduleSlot
	if err := tx.SelectContext(ctx, &slots,
		`SELECT id, section_id, day, start_min, end_min, room FROM section_slots WHERE section_id = $1 ORDER BY day, start_min`,
		sectionID); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	return slots, nil
}

func (r *EnrollmentRepository) setEnrollmentCount(ctx context.Context, tx *sqlx.Tx, sectionID string, count int, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE sections SET enrollment_count = $2, updated_at = $3 WHERE id = $1`,
		sectionID, count, now); err != nil {
		return fmt.Errorf("update enrollment count: %w", err)
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE id = $1`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with student and course context.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.section_id, e.status, e.queue_seq, e.enrolled_at, e.left_at, e.grade_letter,
        st.full_name AS student_name, st.student_number, c.code AS course_code, c.title AS course_title, s.term_id
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        JOIN sections s ON s.id = e.section_id
        JOIN courses c ON c.id = s.course_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students st ON st.id = e.student_id
JOIN sections s ON s.id = e.section_id
JOIN courses c ON c.id = s.course_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.SectionID != "" {
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("s.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "st.full_name",
		"course_code":  "c.code",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.section_id, e.status, e.queue_seq, e.enrolled_at, e.left_at, e.grade_letter,
        st.full_name AS student_name, st.student_number, c.code AS course_code, c.title AS course_title, s.term_id
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// CountActiveBySection verifies the cached section counter against the
// underlying rows; consistency checks use it.
func (r *EnrollmentRepository) CountActiveBySection(ctx context.Context, sectionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE section_id = $1 AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, sectionID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}
