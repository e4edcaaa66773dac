package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sisforge/sis-core-api/internal/models"
)

// TranscriptRepository reads the append-only transcript entries. Writes
// happen only inside the posting and graduation transactions via
// appendTranscriptEntry; there is no update or delete path on purpose.
type TranscriptRepository struct {
	db *sqlx.DB
}

// NewTranscriptRepository constructs the repository.
func NewTranscriptRepository(db *sqlx.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

const transcriptColumns = `id, student_id, enrollment_id, course_code, course_title, credits,
        grade_numeric, grade_letter, grade_points, term_name, year, created_at`

// ListByStudent returns a student's transcript entries in chronological
// order.
func (r *TranscriptRepository) ListByStudent(ctx context.Context, studentID string) ([]models.TranscriptEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcript_entries WHERE student_id = $1 ORDER BY created_at, course_code`, transcriptColumns)
	var entries []models.TranscriptEntry
	if err := r.db.SelectContext(ctx, &entries, query, studentID); err != nil {
		return nil, fmt.Errorf("list transcript entries: %w", err)
	}
	return entries, nil
}

func appendTranscriptEntry(ctx context.Context, tx *sqlx.Tx, entry models.TranscriptEntry) error {
	const query = `INSERT INTO transcript_entries (id, student_id, enrollment_id, course_code, course_title, credits,
        grade_numeric, grade_letter, grade_points, term_name, year, created_at)
        VALUES (:id, :student_id, :enrollment_id, :course_code, :course_title, :credits,
        :grade_numeric, :grade_letter, :grade_points, :term_name, :year, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append transcript entry: %w", err)
	}
	return nil
}
