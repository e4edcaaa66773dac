package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/grading"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

type mockGradeRepo struct {
	grades []models.Grade
}

func (m *mockGradeRepo) Upsert(ctx context.Context, entry models.GradeEntry) (*models.Grade, error) {
	result, err := grading.ScoreToGrade(entry.Score, 100)
	if err != nil {
		return nil, err
	}
	grade := models.Grade{
		ID:           "g-" + entry.AssessmentID,
		EnrollmentID: entry.EnrollmentID,
		AssessmentID: entry.AssessmentID,
		Score:        entry.Score,
		Percent:      result.Percent,
		Letter:       result.Letter,
		Points:       result.Points,
	}
	m.grades = append(m.grades, grade)
	return &grade, nil
}

func (m *mockGradeRepo) BulkUpsert(ctx context.Context, entries []models.GradeEntry) ([]models.Grade, error) {
	before := len(m.grades)
	for _, entry := range entries {
		if _, err := m.Upsert(ctx, entry); err != nil {
			m.grades = m.grades[:before]
			return nil, err
		}
	}
	return m.grades[before:], nil
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, error) {
	return m.grades, nil
}

type mockPoster struct {
	results []models.FinalGradeResult
	err     error
	calls   int
}

func (m *mockPoster) PostSection(ctx context.Context, sectionID string) ([]models.FinalGradeResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func TestGradeServiceRecordDerivesLetter(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := NewGradeService(repo, nil, nil, nil, nil, nil, nil, nil)

	grade, err := svc.Record(context.Background(), RecordGradeRequest{
		EnrollmentID: "enr-1", AssessmentID: "as-1", Score: 74,
	}, "usr-1")
	require.NoError(t, err)
	assert.Equal(t, "A", grade.Letter)
	assert.Equal(t, 5.0, grade.Points)
}

func TestGradeServiceRecordValidation(t *testing.T) {
	svc := NewGradeService(&mockGradeRepo{}, nil, nil, nil, nil, nil, nil, nil)

	_, err := svc.Record(context.Background(), RecordGradeRequest{Score: 50}, "usr-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestGradeServiceBulkRecordAtomic(t *testing.T) {
	repo := &mockGradeRepo{}
	svc := NewGradeService(repo, nil, nil, nil, nil, nil, nil, nil)

	_, err := svc.BulkRecord(context.Background(), BulkGradeRequest{Grades: []models.GradeEntry{
		{EnrollmentID: "enr-1", AssessmentID: "as-1", Score: 80},
		{EnrollmentID: "enr-1", AssessmentID: "as-2", Score: 120},
	}}, "usr-1")
	require.Error(t, err)
	assert.Empty(t, repo.grades)
}

func TestGradeServicePostFinalGrades(t *testing.T) {
	poster := &mockPoster{results: []models.FinalGradeResult{
		{EnrollmentID: "enr-1", StudentID: "stu-1", FinalPercent: 74, Letter: "A", Points: 5.0, Passed: true},
	}}
	cache := &mockCache{store: map[string][]byte{"transcript:stu-1": []byte("{}")}}
	svc := NewGradeService(&mockGradeRepo{}, poster, cache, nil, nil, nil, nil, nil)

	results, err := svc.PostFinalGrades(context.Background(), "sec-1", "usr-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, poster.calls)
	// The student's cached transcript is invalidated by the posting.
	assert.Empty(t, cache.store)
}

func TestGradeServicePostFinalGradesPropagatesConflict(t *testing.T) {
	poster := &mockPoster{err: appErrors.ErrGradesPosted}
	svc := NewGradeService(&mockGradeRepo{}, poster, nil, nil, nil, nil, nil, nil)

	_, err := svc.PostFinalGrades(context.Background(), "sec-1", "usr-1")
	require.ErrorIs(t, err, appErrors.ErrGradesPosted)
}
