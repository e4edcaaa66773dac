package models

import "time"

// StudentStatus represents the student-level lifecycle.
type StudentStatus string

const (
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusSuspended StudentStatus = "SUSPENDED"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusInactive  StudentStatus = "INACTIVE"
)

// Student represents an enrolled learner.
type Student struct {
	ID            string        `db:"id" json:"id"`
	StudentNumber string        `db:"student_number" json:"student_number"`
	FullName      string        `db:"full_name" json:"full_name"`
	ProgramID     *string       `db:"program_id" json:"program_id,omitempty"`
	Status        StudentStatus `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// Program defines the degree requirements a graduation audit runs against.
// RequiredCourses is loaded from the program_required_courses join table.
type Program struct {
	ID              string    `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	RequiredCredits float64   `db:"required_credits" json:"required_credits"`
	RequiredGPA     float64   `db:"required_gpa" json:"required_gpa"`
	RequiredCourses []string  `json:"required_courses"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}
