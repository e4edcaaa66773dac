package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

func expectSectionWeights(mock sqlmock.Sqlmock, weights ...float64) {
	rows := sqlmock.NewRows([]string{"weight"})
	for _, w := range weights {
		rows.AddRow(w)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT weight FROM assessments WHERE section_id = $1")).
		WithArgs("sec-1").
		WillReturnRows(rows)
}

func TestAssessmentRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, sectionRow(30, 10))
	expectSectionWeights(mock, 40)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assessments")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assessment := &models.Assessment{SectionID: "sec-1", Title: "Final Exam", Weight: 60, TotalPoints: 100}
	require.NoError(t, repo.Create(context.Background(), assessment))
	require.NotEmpty(t, assessment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryCreateWeightOverflow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	mock.ExpectBegin()
	expectSectionLock(mock, sectionRow(30, 10))
	expectSectionWeights(mock, 40, 40)
	mock.ExpectRollback()

	assessment := &models.Assessment{SectionID: "sec-1", Title: "Quiz 3", Weight: 30, TotalPoints: 20}
	err := repo.Create(context.Background(), assessment)
	require.ErrorIs(t, err, appErrors.ErrWeightOverflow)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAssessmentRepositoryCreateAfterPostingRejected(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssessmentRepository(db)

	posted := sqlmock.NewRows(sectionCols).
		AddRow("sec-1", "course-1", "term-1", "inst-1", 30, 10, false, nil, true, false, false, time.Now(), time.Now())
	mock.ExpectBegin()
	expectSectionLock(mock, posted)
	mock.ExpectRollback()

	assessment := &models.Assessment{SectionID: "sec-1", Title: "Late Quiz", Weight: 10, TotalPoints: 10}
	err := repo.Create(context.Background(), assessment)
	require.ErrorIs(t, err, appErrors.ErrGradesPosted)
	require.NoError(t, mock.ExpectationsWereMet())
}
