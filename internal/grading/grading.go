// Package grading implements the canonical grade scale and the weighted
// final-grade and GPA arithmetic. One scale applies uniformly to recorded
// assessment grades and posted finals.
package grading

import (
	"fmt"
	"math"
	"sort"

	"github.com/sisforge/sis-core-api/internal/invariant"
	"github.com/sisforge/sis-core-api/internal/models"
	appErrors "github.com/sisforge/sis-core-api/pkg/errors"
)

// Band maps a percentage floor to a letter and its grade points.
type Band struct {
	Floor  float64
	Letter string
	Points float64
}

// Scale is the canonical 5-point mapping, highest band first.
var Scale = []Band{
	{Floor: 70, Letter: "A", Points: 5.0},
	{Floor: 60, Letter: "B", Points: 4.0},
	{Floor: 50, Letter: "C", Points: 3.0},
	{Floor: 45, Letter: "D", Points: 2.0},
	{Floor: 40, Letter: "E", Points: 1.0},
	{Floor: 0, Letter: "F", Points: 0.0},
}

// MaxPoints is the top of the scale.
const MaxPoints = 5.0

// Result is a derived grade representation.
type Result struct {
	Percent float64 `json:"percent"`
	Letter  string  `json:"letter"`
	Points  float64 `json:"points"`
}

// Passing reports whether grade points satisfy a prerequisite (not an
// F-equivalent).
func Passing(points float64) bool {
	return points > 0
}

// FromPercent maps a percentage onto the scale.
func FromPercent(percent float64) Result {
	for _, band := range Scale {
		if percent >= band.Floor {
			return Result{Percent: Round2(percent), Letter: band.Letter, Points: band.Points}
		}
	}
	last := Scale[len(Scale)-1]
	return Result{Percent: Round2(percent), Letter: last.Letter, Points: last.Points}
}

// ScoreToGrade converts a raw assessment score into its derived grade.
func ScoreToGrade(score, totalPoints float64) (Result, error) {
	if totalPoints <= 0 {
		return Result{}, appErrors.FieldInvalid("total_points", "assessment total points must be positive")
	}
	if score < 0 || score > totalPoints {
		return Result{}, appErrors.FieldInvalid("score", fmt.Sprintf("score must be between 0 and %g", totalPoints))
	}
	return FromPercent(score / totalPoints * 100), nil
}

// FinalCourseGrade folds recorded per-assessment grades into the weighted
// course result. Every assessment must carry a grade and the weights must
// sum to 100 within tolerance; a violation reports the missing assessment
// titles so the caller can surface them.
func FinalCourseGrade(assessments []models.Assessment, grades map[string]models.Grade) (Result, error) {
	if len(assessments) == 0 {
		return Result{}, appErrors.Clone(appErrors.ErrWeightIncomplete, "section has no assessments")
	}

	weights := make([]float64, 0, len(assessments))
	for _, a := range assessments {
		weights = append(weights, a.Weight)
	}
	if err := invariant.WeightsComplete(weights); err != nil {
		return Result{}, err
	}

	var missing []string
	var final float64
	for _, a := range assessments {
		grade, ok := grades[a.ID]
		if !ok {
			missing = append(missing, a.Title)
			continue
		}
		final += grade.Percent / 100 * a.Weight
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Result{}, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrGradeMissing, fmt.Sprintf("missing grades for %d assessment(s)", len(missing))),
			map[string]interface{}{"missing_assessments": missing},
		)
	}

	return FromPercent(final), nil
}

// GPA recomputes the weighted grade-point average over transcript entries:
// sum(points x credits) / sum(credits), two decimals, zero with no credits.
func GPA(entries []models.TranscriptEntry) float64 {
	var points, credits float64
	for _, e := range entries {
		points += e.GradePoints * e.Credits
		credits += e.Credits
	}
	if credits == 0 {
		return 0
	}
	return Round2(points / credits)
}

// TotalCredits sums the credits of transcript entries.
func TotalCredits(entries []models.TranscriptEntry) float64 {
	var credits float64
	for _, e := range entries {
		credits += e.Credits
	}
	return credits
}

// Round2 rounds to two decimals using banker's rounding.
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
