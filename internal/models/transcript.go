package models

import "time"

// TranscriptEntry is an immutable snapshot appended once per completed
// enrollment. Entries are never edited; corrections happen through new
// records, not mutation.
type TranscriptEntry struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	CourseCode   string    `db:"course_code" json:"course_code"`
	CourseTitle  string    `db:"course_title" json:"course_title"`
	Credits      float64   `db:"credits" json:"credits"`
	GradeNumeric float64   `db:"grade_numeric" json:"grade_numeric"`
	GradeLetter  string    `db:"grade_letter" json:"grade_letter"`
	GradePoints  float64   `db:"grade_points" json:"grade_points"`
	TermName     string    `db:"term_name" json:"term_name"`
	Year         int       `db:"year" json:"year"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Transcript is the ordered entry list plus the GPA recomputed from it. The
// GPA is derived state; it is recalculated on every read, never stored and
// trusted.
type Transcript struct {
	StudentID string            `json:"student_id"`
	Entries   []TranscriptEntry `json:"entries"`
	GPA       float64           `json:"gpa"`
	Credits   float64           `json:"credits"`
}

// DegreeAuditResult reports graduation eligibility as data so callers can
// display partial progress; ineligibility is not an error.
type DegreeAuditResult struct {
	StudentID           string   `json:"student_id"`
	Eligible            bool     `json:"eligible"`
	MissingRequirements []string `json:"missing_requirements"`
	TotalCredits        float64  `json:"total_credits"`
	RequiredCredits     float64  `json:"required_credits"`
	GPA                 float64  `json:"gpa"`
	RequiredGPA         float64  `json:"required_gpa"`
	MissingCourses      []string `json:"missing_courses"`
	OutstandingCount    int      `json:"outstanding_count"`
}

// GraduationRecord exists at most once per student.
type GraduationRecord struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	ApproverID  string    `db:"approver_id" json:"approver_id"`
	GPA         float64   `db:"gpa" json:"gpa"`
	Credits     float64   `db:"credits" json:"credits"`
	GraduatedAt time.Time `db:"graduated_at" json:"graduated_at"`
}

// AlumniProfile is the default profile created with a graduation record.
type AlumniProfile struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
