package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

var assessmentCols = []string{"id", "section_id", "title", "weight", "total_points", "created_at", "updated_at"}

var gradeCols = []string{"id", "enrollment_id", "assessment_id", "score", "percent", "letter", "points", "created_at", "updated_at"}

func TestGradeFinalRepositoryPostSection(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeFinalRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	expectSectionLock(mock, sectionRow(30, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c, terms t")).
		WithArgs("course-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"code", "title", "credits", "term_name", "year"}).
			AddRow("CS101", "Intro to CS", 3.0, "Fall", 2026))
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessments WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(assessmentCols).
			AddRow("as-1", "sec-1", "Midterm", 40.0, 100.0, now, now).
			AddRow("as-2", "sec-1", "Final", 60.0, 100.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE section_id = $1 AND status = $2")).
		WithArgs("sec-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows(enrollmentCols).
			AddRow("enr-1", "stu-1", "sec-1", models.EnrollmentStatusActive, nil, now, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades g JOIN enrollments e")).
		WithArgs("sec-1").
		WillReturnRows(sqlmock.NewRows(gradeCols).
			AddRow("g-1", "enr-1", "as-1", 80.0, 80.0, "A", 5.0, now, now).
			AddRow("g-2", "enr-1", "as-2", 70.0, 70.0, "A", 5.0, now, now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, grade_letter = $3")).
		WithArgs("enr-1", models.EnrollmentStatusCompleted, "A", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transcript_entries")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET final_grades_posted = TRUE")).
		WithArgs("sec-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	results, err := repo.PostSection(context.Background(), "sec-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	// 0.4*80 + 0.6*70 = 74 percent.
	require.InDelta(t, 74.0, results[0].FinalPercent, 0.001)
	require.Equal(t, "A", results[0].Letter)
	require.Equal(t, 5.0, results[0].Points)
	require.True(t, results[0].Passed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeFinalRepositoryPostSectionMissingGradeRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeFinalRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	expectSectionLock(mock, sectionRow(30, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses c, terms t")).
		WillReturnRows(sqlmock.NewRows([]string{"code", "title", "credits", "term_name", "year"}).
			AddRow("CS101", "Intro to CS", 3.0, "Fall", 2026))
	mock.ExpectQuery(regexp.QuoteMeta("FROM assessments WHERE section_id = $1")).
		WillReturnRows(sqlmock.NewRows(assessmentCols).
			AddRow("as-1", "sec-1", "Midterm", 40.0, 100.0, now, now).
			AddRow("as-2", "sec-1", "Final", 60.0, 100.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM enrollments WHERE section_id = $1 AND status = $2")).
		WillReturnRows(sqlmock.NewRows(enrollmentCols).
			AddRow("enr-1", "stu-1", "sec-1", models.EnrollmentStatusActive, nil, now, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM grades g JOIN enrollments e")).
		WillReturnRows(sqlmock.NewRows(gradeCols).
			AddRow("g-1", "enr-1", "as-1", 80.0, 80.0, "A", 5.0, now, now))
	mock.ExpectRollback()

	_, err := repo.PostSection(context.Background(), "sec-1")
	require.ErrorIs(t, err, appErrors.ErrGradeMissing)
	appErr := appErrors.FromError(err)
	require.Equal(t, "enr-1", appErr.Details["enrollment_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeFinalRepositoryPostSectionAlreadyPosted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeFinalRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(sectionCols).
		AddRow("sec-1", "course-1", "term-1", "inst-1", 30, 10, false, nil, true, false, false, now, now)

	mock.ExpectBegin()
	expectSectionLock(mock, rows)
	mock.ExpectRollback()

	_, err := repo.PostSection(context.Background(), "sec-1")
	require.ErrorIs(t, err, appErrors.ErrGradesPosted)
	require.NoError(t, mock.ExpectationsWereMet())
}
