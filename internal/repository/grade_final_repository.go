package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/grading"
	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// GradeFinalRepository performs final-grade posting for a section. Posting
// is all-or-nothing: every ACTIVE enrollment gets a computed final grade,
// its terminal status and a transcript entry in one transaction, and the
// section flips to posted/non-editable together with them.
type GradeFinalRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewGradeFinalRepository constructs the repository.
func NewGradeFinalRepository(db *sqlx.DB) *GradeFinalRepository {
	return &GradeFinalRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type postingContext struct {
	CourseCode  string  `db:"code"`
	CourseTitle string  `db:"title"`
	Credits     float64 `db:"credits"`
	TermName    string  `db:"term_name"`
	Year        int     `db:"year"`
}

// PostSection computes and posts the final grade for every ACTIVE
// enrollment in the section. Any incomplete assessment plan or missing
// grade aborts the entire posting.
func (r *GradeFinalRepository) PostSection(ctx context.Context, sectionID string) ([]models.FinalGradeResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	var section models.Section
	if err := tx.GetContext(ctx, &section, lockSectionQuery, sectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", sectionID)
		}
		return nil, fmt.Errorf("lock section: %w", err)
	}
	if section.FinalGradesPosted {
		tx.Rollback() //nolint:errcheck
		return nil, appErrors.ErrGradesPosted
	}
	if !section.GradesEditable {
		tx.Rollback() //nolint:errcheck
		return nil, appErrors.ErrGradesNotEditable
	}

	pctx, err := r.loadPostingContext(ctx, tx, &section)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	assessments, err := r.loadAssessments(ctx, tx, sectionID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}
	if len(assessments) == 0 {
		tx.Rollback() //nolint:errcheck
		return nil, appErrors.Clone(appErrors.ErrWeightIncomplete, "section has no assessments")
	}

	enrollments, err := r.loadActiveEnrollments(ctx, tx, sectionID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	gradesByEnrollment, err := r.loadGrades(ctx, tx, sectionID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, err
	}

	now := r.now()
	results := make([]models.FinalGradeResult, 0, len(enrollments))
	for _, enrollment := range enrollments {
		result, err := grading.FinalCourseGrade(assessments, gradesByEnrollment[enrollment.ID])
		if err != nil {
			tx.Rollback() //nolint:errcheck
			appErr := appErrors.FromError(err)
			details := map[string]interface{}{"enrollment_id": enrollment.ID, "student_id": enrollment.StudentID}
			for k, v := range appErr.Details {
				details[k] = v
			}
			return nil, appErrors.WithDetails(appErr, details)
		}

		passed := grading.Passing(result.Points)
		next := models.EnrollmentStatusCompleted
		if !passed {
			next = models.EnrollmentStatusFailed
		}
		if err := invariant.EnrollmentTransition(enrollment.Status, next, true, false); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE enrollments SET status = $2, grade_letter = $3, left_at = $4 WHERE id = $1`,
			enrollment.ID, next, result.Letter, now); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, fmt.Errorf("finalize enrollment: %w", err)
		}

		entry := models.TranscriptEntry{
			ID:           uuid.NewString(),
			StudentID:    enrollment.StudentID,
			EnrollmentID: enrollment.ID,
			CourseCode:   pctx.CourseCode,
			CourseTitle:  pctx.CourseTitle,
			Credits:      pctx.Credits,
			GradeNumeric: result.Percent,
			GradeLetter:  result.Letter,
			GradePoints:  result.Points,
			TermName:     pctx.TermName,
			Year:         pctx.Year,
			CreatedAt:    now,
		}
		if err := appendTranscriptEntry(ctx, tx, entry); err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}

		results = append(results, models.FinalGradeResult{
			EnrollmentID: enrollment.ID,
			StudentID:    enrollment.StudentID,
			FinalPercent: result.Percent,
			Letter:       result.Letter,
			Points:       result.Points,
			Passed:       passed,
		})
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE sections SET final_grades_posted = TRUE, grades_editable = FALSE, is_open_for_enrollment = FALSE, updated_at = $2 WHERE id = $1`,
		sectionID, now); err != nil {
		tx.Rollback() //nolint:errcheck
		return nil, fmt.Errorf("flag section posted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit posting: %w", err)
	}
	return results, nil
}

func (r *GradeFinalRepository) loadPostingContext(ctx context.Context, tx *sqlx.Tx, section *models.Section) (*postingContext, error) {
	const query = `SELECT c.code, c.title, c.credits, t.name AS term_name, t.year
        FROM courses c, terms t WHERE c.id = $1 AND t.id = $2`
	var pctx postingContext
	if err := tx.GetContext(ctx, &pctx, query, section.CourseID, section.TermID); err != nil {
		return nil, fmt.Errorf("load posting context: %w", err)
	}
	return &pctx, nil
}

func (r *GradeFinalRepository) loadAssessments(ctx context.Context, tx *sqlx.Tx, sectionID string) ([]models.Assessment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE section_id = $1 ORDER BY created_at, id`, assessmentColumns)
	var assessments []models.Assessment
	if err := tx.SelectContext(ctx, &assessments, query, sectionID); err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}
	return assessments, nil
}

func (r *GradeFinalRepository) loadActiveEnrollments(ctx context.Context, tx *sqlx.Tx, sectionID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE section_id = $1 AND status = $2 ORDER BY enrolled_at, id`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := tx.SelectContext(ctx, &enrollments, query, sectionID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("load active enrollments: %w", err)
	}
	return enrollments, nil
}

func (r *GradeFinalRepository) loadGrades(ctx context.Context, tx *sqlx.Tx, sectionID string) (map[string]map[string]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g JOIN enrollments e ON e.id = g.enrollment_id WHERE e.section_id = $1`,
		prefixColumns("g", gradeColumns))
	var grades []models.Grade
	if err := tx.SelectContext(ctx, &grades, query, sectionID); err != nil {
		return nil, fmt.Errorf("load grades: %w", err)
	}
	byEnrollment := make(map[string]map[string]models.Grade)
	for _, grade := range grades {
		if byEnrollment[grade.EnrollmentID] == nil {
			byEnrollment[grade.EnrollmentID] = make(map[string]models.Grade)
		}
		byEnrollment[grade.EnrollmentID][grade.AssessmentID] = grade
	}
	return byEnrollment, nil
}
