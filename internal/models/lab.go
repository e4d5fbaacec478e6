package models

import "time"

// Lab represents a physical computer lab.
type Lab struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Location  string    `db:"location" json:"location"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// LabFilter defines filter criteria for listing labs.
type LabFilter struct {
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Computer represents a workstation belonging to a lab.
type Computer struct {
	ID        string    `db:"id" json:"id"`
	LabID     string    `db:"lab_id" json:"lab_id"`
	Hostname  string    `db:"hostname" json:"hostname"`
	Specs     string    `db:"specs" json:"specs"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ComputerFilter defines filter criteria for listing computers.
type ComputerFilter struct {
	LabID     string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
