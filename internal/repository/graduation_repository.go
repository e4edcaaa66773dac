package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/grading"
	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// GraduationRepository owns graduation records and alumni profiles.
// Process re-verifies eligibility under the student row lock so a drop or
// posting racing the graduation cannot produce a graduate with outstanding
// enrollments or a duplicate record.
type GraduationRepository struct {
	db  *sqlx.DB
	now func() time.Time

	// Fallback thresholds applied when a program carries no explicit minimum.
	defaultCredits float64
	defaultGPA     float64
}

// NewGraduationRepository constructs the repository.
func NewGraduationRepository(db *sqlx.DB, defaultCredits, defaultGPA float64) *GraduationRepository {
	return &GraduationRepository{
		db:             db,
		now:            func() time.Time { return time.Now().UTC() },
		defaultCredits: defaultCredits,
		defaultGPA:     defaultGPA,
	}
}

// FindRecordByStudent returns the student's graduation record, if any.
func (r *GraduationRepository) FindRecordByStudent(ctx context.Context, studentID string) (*models.GraduationRecord, error) {
	const query = `SELECT id, student_id, approver_id, gpa, credits, graduated_at
        FROM graduation_records WHERE student_id = $1`
	var record models.GraduationRecord
	if err := r.db.GetContext(ctx, &record, query, studentID); err != nil {
		return nil, err
	}
	return &record, nil
}

// Audit evaluates graduation eligibility from current records without
// mutating anything. Ineligibility is reported as data, not as an error.
func (r *GraduationRepository) Audit(ctx context.Context, studentID string) (*models.DegreeAuditResult, error) {
	student, program, err := r.loadStudentProgram(ctx, r.db, studentID)
	if err != nil {
		return nil, err
	}
	entries, err := r.transcriptEntries(ctx, r.db, studentID)
	if err != nil {
		return nil, err
	}
	outstanding, err := r.outstandingLive(ctx, r.db, studentID)
	if err != nil {
		return nil, err
	}
	recorded, err := r.hasRecord(ctx, r.db, studentID)
	if err != nil {
		return nil, err
	}
	return buildAudit(student, program, entries, outstanding, recorded), nil
}

// Process graduates a student: it re-runs the audit under the student row
// lock, and on success writes the graduation record, a default alumni
// profile and the GRADUATED status in one transaction.
func (r *GraduationRepository) Process(ctx context.Context, studentID, approverID string) (*models.GraduationRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var student models.Student
	const lockStudent = `SELECT id, student_number, full_name, program_id, status, created_at, updated_at
        FROM students WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &student, lockStudent, studentID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("student", studentID)
		}
		return nil, fmt.Errorf("lock student: %w", err)
	}

	if err := invariant.StudentTransition(student.Status, models.StudentStatusGraduated); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	recorded, err := r.hasRecord(ctx, tx, studentID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	if recorded {
		tx.Rollback() //nolint:errcheck
		return nil, appErrors.ErrAlreadyGraduated
	}

	program, err := r.loadProgram(ctx, tx, student.ProgramID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	entries, err := r.transcriptEntries(ctx, tx, studentID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	outstanding, err := r.outstandingLive(ctx, tx, studentID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	audit := buildAudit(&student, program, entries, outstanding, false)
	if !audit.Eligible {
		tx.Rollback() //nolint:errcheck
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrNotEligible, "graduation requirements not met"),
			map[string]interface{}{"audit": audit},
		)
	}

	now := r.now()
	record := models.GraduationRecord{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		ApproverID:  approverID,
		GPA:         audit.GPA,
		Credits:     audit.TotalCredits,
		GraduatedAt: now,
	}
	const insertRecord = `INSERT INTO graduation_records (id, student_id, approver_id, gpa, credits, graduated_at)
        VALUES (:id, :student_id, :approver_id, :gpa, :credits, :graduated_at)`
	if _, err := tx.NamedExecContext(ctx, insertRecord, record); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("insert graduation record: %w", err)
	}

	profile := models.AlumniProfile{ID: uuid.NewString(), StudentID: studentID, CreatedAt: now}
	const insertProfile = `INSERT INTO alumni_profiles (id, student_id, contact_email, created_at)
        VALUES (:id, :student_id, :contact_email, :created_at)`
	if _, err := tx.NamedExecContext(ctx, insertProfile, profile); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("insert alumni profile: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE students SET status = $2, updated_at = $3 WHERE id = $1`,
		studentID, models.StudentStatusGraduated, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("update student status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit graduation: %w", err)
	}
	return &record, nil
}

func buildAudit(student *models.Student, program *models.Program, entries []models.TranscriptEntry, outstanding int, recorded bool) *models.DegreeAuditResult {
	audit := &models.DegreeAuditResult{
		StudentID:        student.ID,
		GPA:              grading.GPA(entries),
		TotalCredits:     grading.TotalCredits(entries),
		RequiredCredits:  program.RequiredCredits,
		RequiredGPA:      program.RequiredGPA,
		OutstandingCount: outstanding,
	}

	passed := make(map[string]struct{})
	for _, entry := range entries {
		if grading.Passing(entry.GradePoints) {
			passed[entry.CourseCode] = struct{}{}
		}
	}
	for _, code := range program.RequiredCourses {
		if _, ok := passed[code]; !ok {
			audit.MissingCourses = append(audit.MissingCourses, code)
		}
	}
	sort.Strings(audit.MissingCourses)

	if audit.TotalCredits < program.RequiredCredits {
		audit.MissingRequirements = append(audit.MissingRequirements,
			fmt.Sprintf("credits: %.1f of %.1f earned", audit.TotalCredits, program.RequiredCredits))
	}
	if audit.GPA < program.RequiredGPA {
		audit.MissingRequirements = append(audit.MissingRequirements,
			fmt.Sprintf("gpa: %.2f below required %.2f", audit.GPA, program.RequiredGPA))
	}
	if len(audit.MissingCourses) > 0 {
		audit.MissingRequirements = append(audit.MissingRequirements,
			fmt.Sprintf("required courses not passed: %d", len(audit.MissingCourses)))
	}
	if outstanding > 0 {
		audit.MissingRequirements = append(audit.MissingRequirements,
			fmt.Sprintf("outstanding enrollments: %d", outstanding))
	}
	if student.Status == models.StudentStatusGraduated || recorded {
		audit.MissingRequirements = append(audit.MissingRequirements, "already graduated")
	}

	audit.Eligible = len(audit.MissingRequirements) == 0
	return audit
}

func (r *GraduationRepository) loadStudentProgram(ctx context.Context, q sqlx.QueryerContext, studentID string) (*models.Student, *models.Program, error) {
	var student models.Student
	const query = `SELECT id, student_number, full_name, program_id, status, created_at, updated_at
        FROM students WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &student, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, appErrors.NotFoundEntity("student", studentID)
		}
		return nil, nil, fmt.Errorf("load student: %w", err)
	}
	program, err := r.loadProgram(ctx, q, student.ProgramID)
	if err != nil {
		return nil, nil, err
	}
	return &student, program, nil
}

func (r *GraduationRepository) loadProgram(ctx context.Context, q sqlx.QueryerContext, programID *string) (*models.Program, error) {
	if programID == nil {
		return nil, appErrors.Violation("PROGRAM_MISSING", "Student", "program-bound",
			"student is not bound to a program")
	}
	var program models.Program
	const query = `SELECT id, name, required_credits, required_gpa, created_at, updated_at
        FROM programs WHERE id = $1`
	if err := sqlx.GetContext(ctx, q, &program, query, *programID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("program", *programID)
		}
		return nil, fmt.Errorf("load program: %w", err)
	}
	const courses = `SELECT course_code FROM program_required_courses WHERE program_id = $1 ORDER BY course_code`
	if err := sqlx.SelectContext(ctx, q, &program.RequiredCourses, courses, program.ID); err != nil {
		return nil, fmt.Errorf("load required courses: %w", err)
	}
	if program.RequiredCredits <= 0 {
		program.RequiredCredits = r.defaultCredits
	}
	if program.RequiredGPA <= 0 {
		program.RequiredGPA = r.defaultGPA
	}
	return &program, nil
}

func (r *GraduationRepository) transcriptEntries(ctx context.Context, q sqlx.QueryerContext, studentID string) ([]models.TranscriptEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcript_entries WHERE student_id = $1 ORDER BY created_at, course_code`, transcriptColumns)
	var entries []models.TranscriptEntry
	if err := sqlx.SelectContext(ctx, q, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("load transcript entries: %w", err)
	}
	return entries, nil
}

func (r *GraduationRepository) outstandingLive(ctx context.Context, q sqlx.QueryerContext, studentID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE student_id = $1 AND status IN ($2, $3)`
	var count int
	if err := sqlx.GetContext(ctx, q, &count, query, studentID,
		models.EnrollmentStatusActive, models.EnrollmentStatusWaitlisted); err != nil {
		return 0, fmt.Errorf("count outstanding enrollments: %w", err)
	}
	return count, nil
}

func (r *GraduationRepository) hasRecord(ctx context.Context, q sqlx.QueryerContext, studentID string) (bool, error) {
	var exists bool
	if err := sqlx.GetContext(ctx, q, &exists,
		`SELECT EXISTS (SELECT 1 FROM graduation_records WHERE student_id = $1)`, studentID); err != nil {
		return false, fmt.Errorf("check graduation record: %w", err)
	}
	return exists, nil
}
