package models

import "time"

// ScheduleSlot is one recurring meeting of a section. Start and End are
// minutes since midnight within the named day.
type ScheduleSlot struct {
	ID        string `db:"id" json:"id"`
	SectionID string `db:"section_id" json:"section_id"`
	Day       string `db:"day" json:"day"`
	StartMin  int    `db:"start_min" json:"start_min"`
	EndMin    int    `db:"end_min" json:"end_min"`
	Room      string `db:"room" json:"room"`
}

// Section is the unit a student enrolls into. EnrollmentCount is a cached
// projection of the non-waitlisted live enrollment rows and is only ever
// written in the same transaction as the enrollment row it reflects.
type Section struct {
	ID                  string         `db:"id" json:"id"`
	CourseID            string         `db:"course_id" json:"course_id"`
	TermID              string         `db:"term_id" json:"term_id"`
	InstructorID        string         `db:"instructor_id" json:"instructor_id"`
	Capacity            int            `db:"capacity" json:"capacity"`
	EnrollmentCount     int            `db:"enrollment_count" json:"enrollment_count"`
	IsOpenForEnrollment bool           `db:"is_open_for_enrollment" json:"is_open_for_enrollment"`
	EnrollmentDeadline  *time.Time     `db:"enrollment_deadline" json:"enrollment_deadline,omitempty"`
	FinalGradesPosted   bool           `db:"final_grades_posted" json:"final_grades_posted"`
	GradesEditable      bool           `db:"grades_editable" json:"grades_editable"`
	IsLocked            bool           `db:"is_locked" json:"is_locked"`
	CreatedAt           time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at" json:"updated_at"`
	Slots               []ScheduleSlot `json:"slots,omitempty"`
}

// SectionDetail enriches Section with catalog context.
type SectionDetail struct {
	Section
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	TermName    string `db:"term_name" json:"term_name"`
}

// SectionSchedule pairs a section's identity with its slots for conflict
// checks across a scope (instructor, room, or student).
type SectionSchedule struct {
	SectionID  string
	CourseCode string
	Slots      []ScheduleSlot
}

// SectionFilter describes query params for listing sections.
type SectionFilter struct {
	CourseID     string
	TermID       string
	InstructorID string
	OpenOnly     bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
