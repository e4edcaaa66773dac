package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/grading"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// GradeRepository records assessment scores. Recording runs under the
// section row lock so a score can never land after final grades post, and
// the stored letter/points are always derived from the canonical scale at
// write time.
type GradeRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const gradeColumns = `id, enrollment_id, assessment_id, score, percent, letter, points, created_at, updated_at`

// Upsert records a single score. See BulkUpsert for the semantics.
func (r *GradeRepository) Upsert(ctx context.Context, entry models.GradeEntry) (*models.Grade, error) {
	grades, err := r.BulkUpsert(ctx, []models.GradeEntry{entry})
	if err != nil {
		return nil, err
	}
	return &grades[0], nil
}

// BulkUpsert records a batch of scores atomically. Every entry must target
// an ACTIVE enrollment in a section whose grades are still editable; one
// bad entry rolls back the whole batch.
func (r *GradeRepository) BulkUpsert(ctx context.Context, entries []models.GradeEntry) ([]models.Grade, error) {
	if len(entries) == 0 {
		return nil, appErrors.FieldInvalid("grades", "at least one grade entry is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	lockedSections := make(map[string]struct{})
	now := r.now()
	grades := make([]models.Grade, 0, len(entries))

	for _, entry := range entries {
		grade, err := r.upsertOne(ctx, tx, entry, lockedSections, now)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return nil, err
		}
		grades = append(grades, *grade)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit grades: %w", err)
	}
	return grades, nil
}

func (r *GradeRepository) upsertOne(ctx context.Context, tx *sqlx.Tx, entry models.GradeEntry, lockedSections map[string]struct{}, now time.Time) (*models.Grade, error) {
	const enrollmentQuery = `SELECT e.id, e.status, e.section_id, a.id AS assessment_id, a.total_points
        FROM enrollments e
        JOIN assessments a ON a.id = $2 AND a.section_id = e.section_id
        WHERE e.id = $1`
	var row struct {
		ID           string                  `db:"id"`
		Status       models.EnrollmentStatus `db:"status"`
		SectionID    string                  `db:"section_id"`
		AssessmentID string                  `db:"assessment_id"`
		TotalPoints  float64                 `db:"total_points"`
	}
	if err := tx.GetContext(ctx, &row, enrollmentQuery, entry.EnrollmentID, entry.AssessmentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.WithDetails(
				appErrors.NotFoundEntity("enrollment", entry.EnrollmentID),
				map[string]interface{}{"assessment_id": entry.AssessmentID},
			)
		}
		return nil, fmt.Errorf("resolve grade target: %w", err)
	}
	if row.Status != models.EnrollmentStatusActive {
		return nil, appErrors.Violation("ENROLLMENT_NOT_ACTIVE", "Enrollment", "grade-target",
			fmt.Sprintf("cannot grade enrollment in status %s", row.Status))
	}

	if _, locked := lockedSections[row.SectionID]; !locked {
		var section models.Section
		if err := tx.GetContext(ctx, &section, lockSectionQuery, row.SectionID); err != nil {
			return nil, fmt.Errorf("lock section: %w", err)
		}
		if section.FinalGradesPosted {
			return nil, appErrors.ErrGradesPosted
		}
		if !section.GradesEditable {
			return nil, appErrors.ErrGradesNotEditable
		}
		lockedSections[row.SectionID] = struct{}{}
	}

	result, err := grading.ScoreToGrade(entry.Score, row.TotalPoints)
	if err != nil {
		return nil, err
	}

	grade := models.Grade{
		ID:           uuid.NewString(),
		EnrollmentID: entry.EnrollmentID,
		AssessmentID: entry.AssessmentID,
		Score:        entry.Score,
		Percent:      result.Percent,
		Letter:       result.Letter,
		Points:       result.Points,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	const upsert = `INSERT INTO grades (id, enrollment_id, assessment_id, score, percent, letter, points, created_at, updated_at)
        VALUES (:id, :enrollment_id, :assessment_id, :score, :percent, :letter, :points, :created_at, :updated_at)
        ON CONFLICT (enrollment_id, assessment_id) DO UPDATE
        SET score = EXCLUDED.score, percent = EXCLUDED.percent, letter = EXCLUDED.letter,
            points = EXCLUDED.points, updated_at = EXCLUDED.updated_at`
	if _, err := tx.NamedExecContext(ctx, upsert, grade); err != nil {
		return nil, fmt.Errorf("upsert grade: %w", err)
	}
	return &grade, nil
}

// List returns grades matching the filter.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g`, prefixColumns("g", gradeColumns))
	// SectionID filtering joins through enrollments.
	var conditions []string
	var args []interface{}
	if filter.SectionID != "" {
		query = fmt.Sprintf(`SELECT %s FROM grades g JOIN enrollments e ON e.id = g.enrollment_id`,
			prefixColumns("g", gradeColumns))
		conditions = append(conditions, fmt.Sprintf("e.section_id = $%d", len(args)+1))
		args = append(args, filter.SectionID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.AssessmentID != "" {
		conditions = append(conditions, fmt.Sprintf("g.assessment_id = $%d", len(args)+1))
		args = append(args, filter.AssessmentID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + joinConditions(conditions)
	}
	query += " ORDER BY g.created_at"

	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return grades, nil
}

func joinConditions(conditions []string) string {
	return strings.Join(conditions, " AND ")
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, part := range parts {
		parts[i] = alias + "." + part
	}
	return strings.Join(parts, ", ")
}
