package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

func TestFromPercent(t *testing.T) {
	cases := []struct {
		percent float64
		letter  string
		points  float64
	}{
		{95, "A", 5.0},
		{70, "A", 5.0},
		{69.99, "B", 4.0},
		{60, "B", 4.0},
		{59, "C", 3.0},
		{50, "C", 3.0},
		{49, "D", 2.0},
		{45, "D", 2.0},
		{44, "E", 1.0},
		{40, "E", 1.0},
		{39.99, "F", 0.0},
		{0, "F", 0.0},
	}
	for _, tc := range cases {
		got := FromPercent(tc.percent)
		assert.Equal(t, tc.letter, got.Letter, "%.2f%%", tc.percent)
		assert.Equal(t, tc.points, got.Points, "%.2f%%", tc.percent)
	}
}

func TestScoreToGrade(t *testing.T) {
	got, err := ScoreToGrade(45, 50)
	require.NoError(t, err)
	assert.Equal(t, Result{Percent: 90, Letter: "A", Points: 5.0}, got)

	_, err = ScoreToGrade(51, 50)
	assert.Error(t, err)
	_, err = ScoreToGrade(-1, 50)
	assert.Error(t, err)
	_, err = ScoreToGrade(10, 0)
	assert.Error(t, err)
}

func TestPassing(t *testing.T) {
	assert.True(t, Passing(1.0))
	assert.True(t, Passing(5.0))
	assert.False(t, Passing(0))
}

func TestFinalCourseGradeWeighted(t *testing.T) {
	// Weights [40, 60] with scores 80% and 70%: 0.4*80 + 0.6*70 = 74.
	assessments := []models.Assessment{
		{ID: "a1", Title: "Midterm", Weight: 40},
		{ID: "a2", Title: "Final", Weight: 60},
	}
	grades := map[string]models.Grade{
		"a1": {AssessmentID: "a1", Percent: 80},
		"a2": {AssessmentID: "a2", Percent: 70},
	}

	got, err := FinalCourseGrade(assessments, grades)
	require.NoError(t, err)
	assert.InDelta(t, 74.0, got.Percent, 0.001)
	assert.Equal(t, "A", got.Letter)
	assert.Equal(t, 5.0, got.Points)
}

func TestFinalCourseGradeMissingGrades(t *testing.T) {
	assessments := []models.Assessment{
		{ID: "a1", Title: "Midterm", Weight: 40},
		{ID: "a2", Title: "Final", Weight: 60},
	}
	grades := map[string]models.Grade{"a1": {AssessmentID: "a1", Percent: 80}}

	_, err := FinalCourseGrade(assessments, grades)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrGradeMissing))
	appErr := appErrors.FromError(err)
	assert.Equal(t, []string{"Final"}, appErr.Details["missing_assessments"])
}

func TestFinalCourseGradeBadWeights(t *testing.T) {
	assessments := []models.Assessment{
		{ID: "a1", Title: "Midterm", Weight: 40},
		{ID: "a2", Title: "Final", Weight: 50},
	}
	_, err := FinalCourseGrade(assessments, map[string]models.Grade{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrWeightIncomplete))

	_, err = FinalCourseGrade(nil, nil)
	assert.Error(t, err)
}

func TestGPA(t *testing.T) {
	entries := []models.TranscriptEntry{
		{Credits: 3, GradePoints: 5.0},
		{Credits: 4, GradePoints: 4.0},
		{Credits: 2, GradePoints: 3.0},
	}
	// (15 + 16 + 6) / 9 = 4.111...
	assert.InDelta(t, 4.11, GPA(entries), 0.001)

	// Idempotent: recomputation over the same entries yields the same value.
	assert.Equal(t, GPA(entries), GPA(entries))

	// Appending then removing an entry restores the prior value.
	extended := append(append([]models.TranscriptEntry{}, entries...), models.TranscriptEntry{Credits: 3, GradePoints: 0})
	assert.NotEqual(t, GPA(entries), GPA(extended))
	assert.Equal(t, GPA(entries), GPA(extended[:len(entries)]))

	assert.Zero(t, GPA(nil))
	assert.Zero(t, GPA([]models.TranscriptEntry{}))
}

func TestTotalCredits(t *testing.T) {
	entries := []models.TranscriptEntry{{Credits: 3}, {Credits: 4.5}}
	assert.Equal(t, 7.5, TotalCredits(entries))
	assert.Zero(t, TotalCredits(nil))
}
