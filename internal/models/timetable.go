package models

import "time"

// Conflict dimensions reported by the schedule checkers.
const (
	ConflictDimensionLab   = "LAB"
	ConflictDimensionClass = "CLASS"
)

// TimetableSlot is a recurring weekly reservation of a lab for a class.
// DayOfWeek is ISO (1=Monday .. 7=Sunday); times are "HH:MM" strings.
type TimetableSlot struct {
	ID        string    `db:"id" json:"id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	LabID     string    `db:"lab_id" json:"lab_id"`
	DayOfWeek int       `db:"day_of_week" json:"day_of_week"`
	StartTime string    `db:"start_time" json:"start_time"`
	EndTime   string    `db:"end_time" json:"end_time"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TimetableFilter describes query params for listing slots.
type TimetableFilter struct {
	ClassID   string
	LabID     string
	DayOfWeek int
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SlotConflict describes an existing slot that collides with a proposal,
// tagged with the dimension (lab or class) that caused the collision.
type SlotConflict struct {
	SlotID    string `json:"slot_id"`
	ClassID   string `json:"class_id"`
	LabID     string `json:"lab_id"`
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Dimension string `json:"dimension"`
}

// ConflictResult is the outcome of a conflict check. A conflict is a valid
// result, not an error: callers decide whether to reject the write.
type ConflictResult struct {
	HasConflicts bool           `json:"has_conflicts"`
	Conflicts    []SlotConflict `json:"conflicts"`
}

// ScheduleConflictError is returned when a write would collide with an
// existing slot or session.
type ScheduleConflictError struct {
	ConflictType string         `json:"conflict_type"`
	Message      string         `json:"message"`
	Conflicts    []SlotConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
