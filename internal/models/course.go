package models

import "time"

// Course describes a catalog course. Prerequisites reference other courses
// by code and are loaded from the course_prerequisites join table.
type Course struct {
	ID            string    `db:"id" json:"id"`
	Code          string    `db:"code" json:"code"`
	Title         string    `db:"title" json:"title"`
	Credits       float64   `db:"credits" json:"credits"`
	DepartmentID  *string   `db:"department_id" json:"department_id,omitempty"`
	Prerequisites []string  `json:"prerequisites"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Term identifies an academic term.
type Term struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Year      int       `db:"year" json:"year"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
