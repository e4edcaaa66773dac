package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// AssessmentRepository manages the weighted assessment plan of a section.
// Create and UpdateWeight hold the section row lock while validating the
// weight sum so concurrent edits cannot push the total past 100.
type AssessmentRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewAssessmentRepository constructs the repository.
func NewAssessmentRepository(db *sqlx.DB) *AssessmentRepository {
	return &AssessmentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const assessmentColumns = `id, section_id, title, weight, total_points, created_at, updated_at`

// Create validates the candidate weight against the section's existing
// assessments under the section lock and inserts the new assessment.
func (r *AssessmentRepository) Create(ctx context.Context, assessment *models.Assessment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if _, err := lockSectionForAssessmentEdit(ctx, tx, assessment.SectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	weights, err := r.sectionWeights(ctx, tx, assessment.SectionID, "")
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := invariant.WeightTotal(weights, assessment.Weight); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	now := r.now()
	assessment.ID = uuid.NewString()
	assessment.CreatedAt = now
	assessment.UpdatedAt = now

	const query = `INSERT INTO assessments (id, section_id, title, weight, total_points, created_at, updated_at)
        VALUES (:id, :section_id, :title, :weight, :total_points, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, assessment); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("insert assessment: %w", err)
	}
	return tx.Commit()
}

// UpdateWeight changes an assessment's weight, title or total points,
// re-validating the section's weight sum with the assessment's own old
// weight excluded.
func (r *AssessmentRepository) UpdateWeight(ctx context.Context, assessment *models.Assessment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	var current models.Assessment
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE id = $1`, assessmentColumns)
	if err := tx.GetContext(ctx, &current, query, assessment.ID); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return appErrors.NotFoundEntity("assessment", assessment.ID)
		}
		return fmt.Errorf("load assessment: %w", err)
	}

	if _, err := lockSectionForAssessmentEdit(ctx, tx, current.SectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	weights, err := r.sectionWeights(ctx, tx, current.SectionID, current.ID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := invariant.WeightTotal(weights, assessment.Weight); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	assessment.SectionID = current.SectionID
	assessment.CreatedAt = current.CreatedAt
	assessment.UpdatedAt = r.now()

	const update = `UPDATE assessments SET title = :title, weight = :weight, total_points = :total_points, updated_at = :updated_at
        WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, assessment); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update assessment: %w", err)
	}
	return tx.Commit()
}

// Delete removes an assessment. Sections with posted final grades keep
// their plan frozen.
func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	var sectionID string
	if err := tx.GetContext(ctx, &sectionID, `SELECT section_id FROM assessments WHERE id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		if err == sql.ErrNoRows {
			return appErrors.NotFoundEntity("assessment", id)
		}
		return fmt.Errorf("load assessment: %w", err)
	}

	if _, err := lockSectionForAssessmentEdit(ctx, tx, sectionID); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM grades WHERE assessment_id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete grades: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete assessment: %w", err)
	}
	return tx.Commit()
}

// FindByID returns an assessment by its ID.
func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*models.Assessment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE id = $1`, assessmentColumns)
	var assessment models.Assessment
	if err := r.db.GetContext(ctx, &assessment, query, id); err != nil {
		return nil, err
	}
	return &assessment, nil
}

// ListBySection returns the assessments of a section ordered by creation.
func (r *AssessmentRepository) ListBySection(ctx context.Context, sectionID string) ([]models.Assessment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assessments WHERE section_id = $1 ORDER BY created_at, id`, assessmentColumns)
	var assessments []models.Assessment
	if err := r.db.SelectContext(ctx, &assessments, query, sectionID); err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	return assessments, nil
}

func (r *AssessmentRepository) sectionWeights(ctx context.Context, tx *sqlx.Tx, sectionID, excludeID string) ([]float64, error) {
	query := `SELECT weight FROM assessments WHERE section_id = $1`
	args := []interface{}{sectionID}
	if excludeID != "" {
		query += ` AND id <> $2`
		args = append(args, excludeID)
	}
	var weights []float64
	if err := tx.SelectContext(ctx, &weights, query, args...); err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	return weights, nil
}

func lockSectionForAssessmentEdit(ctx context.Context, tx *sqlx.Tx, sectionID string) (*models.Section, error) {
	var section models.Section
	if err := tx.GetContext(ctx, &section, lockSectionQuery, sectionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NotFoundEntity("section", sectionID)
		}
		return nil, fmt.Errorf("lock section: %w", err)
	}
	if section.FinalGradesPosted {
		return nil, appErrors.ErrGradesPosted
	}
	return &section, nil
}
