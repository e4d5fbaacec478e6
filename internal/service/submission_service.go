package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type submissionRepository interface {
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	UpdateContent(ctx context.Context, id, content string) error
	FindGradeBySubmission(ctx context.Context, submissionID string) (*models.Grade, error)
	UpsertGrade(ctx context.Context, grade *models.Grade) error
}

type assignmentReader interface {
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
}

type enrollmentChecker interface {
	ExistsActive(ctx context.Context, studentID, classID string) (bool, error)
}

// SubmitRequest carries a student's answer payload.
type SubmitRequest struct {
	AssignmentID string `json:"assignment_id" validate:"required"`
	Content      string `json:"content" validate:"required,max=50000"`
}

// GradeRequest carries an instructor's evaluation payload.
type GradeRequest struct {
	Score    float64 `json:"score" validate:"min=0"`
	Feedback string  `json:"feedback" validate:"max=5000"`
}

// SubmissionService handles submissions and grading. Resubmitting before
// the deadline replaces the previous content; grading is an upsert keyed by
// submission so a regrade overwrites the prior score.
type SubmissionService struct {
	submissions submissionRepository
	assignments assignmentReader
	enrollments enrollmentChecker
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewSubmissionService instantiates SubmissionService.
func NewSubmissionService(submissions submissionRepository, assignments assignmentReader, enrollments enrollmentChecker, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		submissions: submissions,
		assignments: assignments,
		enrollments: enrollments,
		validator:   validate,
		logger:      logger,
	}
}

// ListByAssignment returns all submissions for an assignment with grades.
func (s *SubmissionService) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	details, err := s.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return details, nil
}

// Submit records or replaces a student's answer. Late submissions are
// rejected once the assignment's due date has passed.
func (s *SubmissionService) Submit(ctx context.Context, studentID string, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}

	assignment, err := s.assignments.FindByID(ctx, req.AssignmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if assignment.DueAt != nil && time.Now().UTC().After(*assignment.DueAt) {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "assignment deadline has passed")
	}

	enrolled, err := s.enrollments.ExistsActive(ctx, studentID, assignment.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if !enrolled {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "student is not enrolled in this class")
	}

	existing, err := s.submissions.FindByAssignmentAndStudent(ctx, req.AssignmentID, studentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}
	if existing != nil {
		if err := s.submissions.UpdateContent(ctx, existing.ID, req.Content); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
		}
		existing.Content = req.Content
		return existing, nil
	}

	submission := &models.Submission{
		AssignmentID: req.AssignmentID,
		StudentID:    studentID,
		Content:      req.Content,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "submission already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	return submission, nil
}

// Grade records an instructor's score and feedback for a submission. The
// score is bounded by the assignment's maximum.
func (s *SubmissionService) Grade(ctx context.Context, submissionID, graderID string, req GradeRequest) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}

	submission, err := s.submissions.FindByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	assignment, err := s.assignments.FindByID(ctx, submission.AssignmentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	if req.Score > float64(assignment.MaxScore) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds the assignment maximum")
	}

	grade := &models.Grade{
		SubmissionID: submissionID,
		GraderID:     graderID,
		Score:        req.Score,
		Feedback:     req.Feedback,
	}
	if err := s.submissions.UpsertGrade(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record grade")
	}
	s.logger.Info("submission graded",
		zap.String("submission_id", submissionID),
		zap.String("grader_id", graderID),
		zap.Float64("score", req.Score))
	return grade, nil
}

// GetGrade returns the grade for a submission, if any.
func (s *SubmissionService) GetGrade(ctx context.Context, submissionID string) (*models.Grade, error) {
	grade, err := s.submissions.FindGradeBySubmission(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission has not been graded")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}
