package models

import "time"

// Assignment is a class task students submit work against.
type Assignment struct {
	ID          string     `db:"id" json:"id"`
	ClassID     string     `db:"class_id" json:"class_id"`
	Title       string     `db:"title" json:"title"`
	Description string     `db:"description" json:"description"`
	DueAt       *time.Time `db:"due_at" json:"due_at,omitempty"`
	MaxScore    int        `db:"max_score" json:"max_score"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// AssignmentFilter describes query params for listing assignments.
type AssignmentFilter struct {
	ClassID   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Submission is a student's answer to an assignment.
type Submission struct {
	ID           string    `db:"id" json:"id"`
	AssignmentID string    `db:"assignment_id" json:"assignment_id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	Content      string    `db:"content" json:"content"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// SubmissionDetail enriches Submission with its grade when present.
type SubmissionDetail struct {
	Submission
	StudentName string   `db:"student_name" json:"student_name"`
	Score       *float64 `db:"score" json:"score,omitempty"`
	Feedback    *string  `db:"feedback" json:"feedback,omitempty"`
}

// Grade records an instructor's evaluation of a submission.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	SubmissionID string    `db:"submission_id" json:"submission_id"`
	GraderID     string    `db:"grader_id" json:"grader_id"`
	Score        float64   `db:"score" json:"score"`
	Feedback     string    `db:"feedback" json:"feedback"`
	GradedAt     time.Time `db:"graded_at" json:"graded_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
