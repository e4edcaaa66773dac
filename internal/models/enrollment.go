package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. COMPLETED and FAILED are terminal and
// reachable only through final-grade posting.
const (
	EnrollmentStatusActive     EnrollmentStatus = "ACTIVE"
	EnrollmentStatusWaitlisted EnrollmentStatus = "WAITLISTED"
	EnrollmentStatusDropped    EnrollmentStatus = "DROPPED"
	EnrollmentStatusWithdrawn  EnrollmentStatus = "WITHDRAWN"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFailed     EnrollmentStatus = "FAILED"
)

// IsTerminal reports whether the status is a grading sink.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentStatusCompleted || s == EnrollmentStatusFailed
}

// IsLive reports whether the enrollment still occupies or queues for a seat.
func (s EnrollmentStatus) IsLive() bool {
	return s == EnrollmentStatusActive || s == EnrollmentStatusWaitlisted
}

// Enrollment captures a student's registration in a section. QueueSeq is a
// per-section monotonic sequence assigned at waitlist-join time; FIFO
// promotion orders by it, never by wall clock.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	SectionID   string           `db:"section_id" json:"section_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	QueueSeq    *int64           `db:"queue_seq" json:"queue_seq,omitempty"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LeftAt      *time.Time       `db:"left_at" json:"left_at,omitempty"`
	GradeLetter *string          `db:"grade_letter" json:"grade_letter,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and section context.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	CourseCode    string `db:"course_code" json:"course_code"`
	CourseTitle   string `db:"course_title" json:"course_title"`
	TermID        string `db:"term_id" json:"term_id"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	SectionID string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AdmitParams drives the atomic admit-or-waitlist transaction.
type AdmitParams struct {
	StudentID        string
	SectionID        string
	JoinWaitlist     bool
	MaxWaitlistDepth int
}

// AdmitOutcome reports the committed admission.
type AdmitOutcome struct {
	Enrollment      Enrollment `json:"enrollment"`
	EnrollmentCount int        `json:"enrollment_count"`
}

// DropOutcome reports a committed drop and any waitlist promotion that
// happened in the same transaction.
type DropOutcome struct {
	Enrollment           Enrollment `json:"enrollment"`
	PromotedEnrollmentID *string    `json:"promoted_enrollment_id,omitempty"`
	EnrollmentCount      int        `json:"enrollment_count"`
}

// CompletedCourse summarises a completed enrollment for prerequisite checks.
type CompletedCourse struct {
	CourseCode  string  `db:"course_code"`
	GradeLetter string  `db:"grade_letter"`
	GradePoints float64 `db:"grade_points"`
}
