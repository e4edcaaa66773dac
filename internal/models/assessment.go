package models

import "time"

// Assessment is a weighted graded component of a section. The weights of all
// assessments of a section may never sum past 100 (+0.01 tolerance) and must
// equal 100 (±0.01) when final grades are computed.
type Assessment struct {
	ID          string    `db:"id" json:"id"`
	SectionID   string    `db:"section_id" json:"section_id"`
	Title       string    `db:"title" json:"title"`
	Weight      float64   `db:"weight" json:"weight"`
	TotalPoints float64   `db:"total_points" json:"total_points"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Grade is one recorded score for an (enrollment, assessment) pair with its
// derived representation under the canonical scale.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	AssessmentID string    `db:"assessment_id" json:"assessment_id"`
	Score        float64   `db:"score" json:"score"`
	Percent      float64   `db:"percent" json:"percent"`
	Letter       string    `db:"letter" json:"letter"`
	Points       float64   `db:"points" json:"points"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// GradeEntry is one (enrollment, assessment, score) triple to record.
type GradeEntry struct {
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	AssessmentID string  `json:"assessment_id" validate:"required"`
	Score        float64 `json:"score" validate:"gte=0"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	EnrollmentID string
	AssessmentID string
	SectionID    string
}

// FinalGradeResult is the posting outcome for one student in a section.
type FinalGradeResult struct {
	EnrollmentID string  `json:"enrollment_id"`
	StudentID    string  `json:"student_id"`
	FinalPercent float64 `json:"final_percent"`
	Letter       string  `json:"letter"`
	Points       float64 `json:"points"`
	Passed       bool    `json:"passed"`
}
