package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Withdraw(ctx context.Context, id string, leftAt time.Time) error
}

type groupLeaderReader interface {
	FindByID(ctx context.Context, id string) (*models.Group, error)
	UpdateLeader(ctx context.Context, groupID string, leaderID *string) error
}

// EnrollmentService exposes roster listing and withdrawal. Enrolling goes
// through GroupService because placement and enrollment are one operation.
type EnrollmentService struct {
	enrollments enrollmentRepository
	groups      groupLeaderReader
	logger      *zap.Logger
}

// NewEnrollmentService instantiates EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepository, groups groupLeaderReader, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, groups: groups, logger: logger}
}

// List returns enrollments matching the filter with a total count for
// pagination.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	details, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return details, total, nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Withdraw marks an enrollment LEFT and detaches it from its group. A group
// leader must hand off leadership first; the group keeps its seat history.
func (s *EnrollmentService) Withdraw(ctx context.Context, id string) error {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "enrollment is not active")
	}

	if enrollment.GroupID != nil {
		group, err := s.groups.FindByID(ctx, *enrollment.GroupID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
		}
		if group != nil && group.LeaderID != nil && *group.LeaderID == enrollment.StudentID {
			return appErrors.Clone(appErrors.ErrPreconditionFailed, "reassign group leadership before withdrawing")
		}
	}

	if err := s.enrollments.Withdraw(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	s.logger.Info("enrollment withdrawn",
		zap.String("enrollment_id", id),
		zap.String("student_id", enrollment.StudentID),
		zap.String("class_id", enrollment.ClassID))
	return nil
}
