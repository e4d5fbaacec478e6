package models

import "time"

// LabSession is a one-off session anchored to a specific date-time, as
// opposed to a recurring weekly timetable slot.
type LabSession struct {
	ID              string    `db:"id" json:"id"`
	ClassID         string    `db:"class_id" json:"class_id"`
	LabID           string    `db:"lab_id" json:"lab_id"`
	Title           string    `db:"title" json:"title"`
	StartsAt        time.Time `db:"starts_at" json:"starts_at"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	Active          bool      `db:"active" json:"active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	ClassID   string
	LabID     string
	From      *time.Time
	To        *time.Time
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SessionConflict describes an existing session colliding with a proposal.
type SessionConflict struct {
	SessionID       string    `json:"session_id"`
	ClassID         string    `json:"class_id"`
	LabID           string    `json:"lab_id"`
	StartsAt        time.Time `json:"starts_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Dimension       string    `json:"dimension"`
}

// SessionConflictResult is the outcome of a session conflict check.
type SessionConflictResult struct {
	HasConflicts bool              `json:"has_conflicts"`
	Conflicts    []SessionConflict `json:"conflicts"`
}
