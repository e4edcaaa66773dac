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

var transcriptCols = []string{
	"id", "student_id", "enrollment_id", "course_code", "course_title", "credits",
	"grade_numeric", "grade_letter", "grade_points", "term_name", "year", "created_at",
}

func studentRows(status models.StudentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "student_number", "full_name", "program_id", "status", "created_at", "updated_at"}).
		AddRow("stu-1", "S-0001", "Ada Okafor", "prog-1", status, now, now)
}

func expectEligibilityData(mock sqlmock.Sqlmock, transcript *sqlmock.Rows, outstanding int) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM programs WHERE id = $1")).
		WithArgs("prog-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "required_credits", "required_gpa", "created_at", "updated_at"}).
			AddRow("prog-1", "Computer Science", 6.0, 2.0, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM program_required_courses WHERE program_id = $1")).
		WithArgs("prog-1").
		WillReturnRows(sqlmock.NewRows([]string{"course_code"}).AddRow("CS101"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM transcript_entries WHERE student_id = $1")).
		WithArgs("stu-1").
		WillReturnRows(transcript)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE student_id = $1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(outstanding))
}

func passingTranscript() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(transcriptCols).
		AddRow("tr-1", "stu-1", "enr-1", "CS101", "Intro to CS", 3.0, 74.0, "A", 5.0, "Fall", 2025, now).
		AddRow("tr-2", "stu-1", "enr-2", "CS102", "Programming II", 3.0, 68.0, "B", 4.0, "Spring", 2026, now)
}

func TestGraduationRepositoryProcess(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGraduationRepository(db, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(studentRows(models.StudentStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM graduation_records")).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectEligibilityData(mock, passingTranscript(), 0)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO graduation_records")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO alumni_profiles")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE students SET status = $2")).
		WithArgs("stu-1", models.StudentStatusGraduated, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	record, err := repo.Process(context.Background(), "stu-1", "usr-registrar")
	require.NoError(t, err)
	require.Equal(t, "stu-1", record.StudentID)
	require.Equal(t, "usr-registrar", record.ApproverID)
	// (5.0*3 + 4.0*3) / 6 = 4.5
	require.InDelta(t, 4.5, record.GPA, 0.001)
	require.InDelta(t, 6.0, record.Credits, 0.001)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraduationRepositoryProcessOutstandingEnrollmentBlocks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGraduationRepository(db, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(studentRows(models.StudentStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM graduation_records")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	expectEligibilityData(mock, passingTranscript(), 1)
	mock.ExpectRollback()

	_, err := repo.Process(context.Background(), "stu-1", "usr-registrar")
	require.ErrorIs(t, err, appErrors.ErrNotEligible)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraduationRepositoryProcessDuplicateRecord(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGraduationRepository(db, 0, 0)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1 FOR UPDATE")).
		WithArgs("stu-1").
		WillReturnRows(studentRows(models.StudentStatusActive))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM graduation_records")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := repo.Process(context.Background(), "stu-1", "usr-registrar")
	require.ErrorIs(t, err, appErrors.ErrAlreadyGraduated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGraduationRepositoryAuditReportsMissingRequirements(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGraduationRepository(db, 0, 0)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM students WHERE id = $1")).
		WithArgs("stu-1").
		WillReturnRows(studentRows(models.StudentStatusActive))
	expectEligibilityData(mock, sqlmock.NewRows(transcriptCols).
		AddRow("tr-1", "stu-1", "enr-1", "CS102", "Programming II", 3.0, 30.0, "F", 0.0, "Fall", 2025, now), 2)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM graduation_records")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	audit, err := repo.Audit(context.Background(), "stu-1")
	require.NoError(t, err)
	require.False(t, audit.Eligible)
	require.Equal(t, []string{"CS101"}, audit.MissingCourses)
	require.Equal(t, 2, audit.OutstandingCount)
	require.Len(t, audit.MissingRequirements, 4)
	require.NoError(t, mock.ExpectationsWereMet())
}
