package models

import "time"

// Class represents a course section taught in exactly one lab.
type Class struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Code         string    `db:"code" json:"code"`
	LabID        string    `db:"lab_id" json:"lab_id"`
	InstructorID *string   `db:"instructor_id" json:"instructor_id,omitempty"`
	MaxGroupSize int       `db:"max_group_size" json:"max_group_size"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with lab and instructor names.
type ClassDetail struct {
	Class
	LabName        string  `db:"lab_name" json:"lab_name"`
	InstructorName *string `db:"instructor_name" json:"instructor_name,omitempty"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	LabID        string
	InstructorID string
	Active       *bool
	Search       string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
