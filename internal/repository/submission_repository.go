package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labsphere/labsphere-api/internal/models"
)

// SubmissionRepository provides persistence for submissions and grades.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository creates a new submission repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// ListByAssignment returns submissions for an assignment with grades.
func (r *SubmissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	const query = `SELECT s.id, s.assignment_id, s.student_id, s.content, s.submitted_at, s.updated_at,
        u.full_name AS student_name, gr.score, gr.feedback
        FROM submissions s
        LEFT JOIN users u ON u.id = s.student_id
        LEFT JOIN grades gr ON gr.submission_id = s.id
        WHERE s.assignment_id = $1
        ORDER BY s.submitted_at ASC`
	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, assignmentID); err != nil {
		return nil, fmt.Errorf("list submissions by assignment: %w", err)
	}
	return submissions, nil
}

// FindByID loads a submission by id.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content, submitted_at, updated_at FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns a student's submission for an assignment.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	const query = `SELECT id, assignment_id, student_id, content, submitted_at, updated_at FROM submissions WHERE assignment_id = $1 AND student_id = $2`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Create stores a new submission.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if submission.SubmittedAt.IsZero() {
		submission.SubmittedAt = now
	}
	submission.UpdatedAt = now

	const query = `INSERT INTO submissions (id, assignment_id, student_id, content, submitted_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :content, :submitted_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// UpdateContent replaces the submission body for resubmission.
func (r *SubmissionRepository) UpdateContent(ctx context.Context, id, content string) error {
	const query = `UPDATE submissions SET content = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	return nil
}

// FindGradeBySubmission returns the grade for a submission when present.
func (r *SubmissionRepository) FindGradeBySubmission(ctx context.Context, submissionID string) (*models.Grade, error) {
	const query = `SELECT id, submission_id, grader_id, score, feedback, graded_at, updated_at FROM grades WHERE submission_id = $1`
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, submissionID); err != nil {
		return nil, err
	}
	return &grade, nil
}

// UpsertGrade creates or replaces the grade for a submission.
func (r *SubmissionRepository) UpsertGrade(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.GradedAt.IsZero() {
		grade.GradedAt = now
	}
	grade.UpdatedAt = now

	const query = `INSERT INTO grades (id, submission_id, grader_id, score, feedback, graded_at, updated_at)
        VALUES (:id, :submission_id, :grader_id, :score, :feedback, :graded_at, :updated_at)
        ON CONFLICT (submission_id) DO UPDATE SET grader_id = EXCLUDED.grader_id, score = EXCLUDED.score,
        feedback = EXCLUDED.feedback, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// HasSubmission reports whether the student already submitted.
func (r *SubmissionRepository) HasSubmission(ctx context.Context, assignmentID, studentID string) (bool, error) {
	const query = `SELECT 1 FROM submissions WHERE assignment_id = $1 AND student_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, assignmentID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check submission: %w", err)
	}
	return true, nil
}
