package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/timeslot"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.LabSession, int, error)
	FindByID(ctx context.Context, id string) (*models.LabSession, error)
	ListActiveByDate(ctx context.Context, day time.Time) ([]models.LabSession, error)
	Create(ctx context.Context, session *models.LabSession) error
	Update(ctx context.Context, session *models.LabSession) error
	Delete(ctx context.Context, id string) error
}

// CheckSessionRequest describes a proposed one-off session to test.
type CheckSessionRequest struct {
	LabID           string    `json:"lab_id" validate:"required"`
	ClassID         string    `json:"class_id"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1"`
	ExcludeID       string    `json:"exclude_id"`
}

// CreateSessionRequest describes payload for creating a session.
type CreateSessionRequest struct {
	ClassID         string    `json:"class_id" validate:"required"`
	Title           string    `json:"title" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1"`
}

// UpdateSessionRequest updates an existing session.
type UpdateSessionRequest struct {
	Title           string    `json:"title" validate:"required"`
	StartsAt        time.Time `json:"starts_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=1"`
	Active          *bool     `json:"active"`
}

// SessionService coordinates one-off lab sessions. It shares the interval
// overlap primitive with the timetable checker, swapping minute-of-day
// ordinals for epoch milliseconds.
type SessionService struct {
	repo      sessionRepository
	classes   classReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSessionService instantiates SessionService.
func NewSessionService(repo sessionRepository, classes classReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{repo: repo, classes: classes, metrics: metrics, validator: validate, logger: logger}
}

// List returns sessions with pagination metadata.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.LabSession, *models.Pagination, error) {
	sessions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Check runs conflict detection for a proposed session.
func (s *SessionService) Check(ctx context.Context, req CheckSessionRequest) (*models.SessionConflictResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	proposed, err := timeslot.SessionInterval(req.StartsAt, req.DurationMinutes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session window")
	}

	candidates, err := s.repo.ListActiveByDate(ctx, timeslot.DateOf(req.StartsAt))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions")
	}

	result := &models.SessionConflictResult{Conflicts: []models.SessionConflict{}}
	for _, candidate := range candidates {
		if candidate.ID == req.ExcludeID {
			continue
		}
		existing, err := timeslot.SessionInterval(candidate.StartsAt, candidate.DurationMinutes)
		if err != nil {
			s.logger.Warn("skipping session with invalid window", zap.String("session_id", candidate.ID), zap.Error(err))
			continue
		}
		if !proposed.Overlaps(existing) {
			continue
		}
		switch {
		case candidate.LabID == req.LabID:
			result.Conflicts = append(result.Conflicts, sessionConflict(candidate, models.ConflictDimensionLab))
		case req.ClassID != "" && candidate.ClassID == req.ClassID:
			result.Conflicts = append(result.Conflicts, sessionConflict(candidate, models.ConflictDimensionClass))
		}
	}
	result.HasConflicts = len(result.Conflicts) > 0
	return result, nil
}

// Create inserts a new session after conflict detection.
func (s *SessionService) Create(ctx context.Context, req CreateSessionRequest) (*models.LabSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	session := models.LabSession{
		ClassID:         class.ID,
		LabID:           class.LabID,
		Title:           req.Title,
		StartsAt:        req.StartsAt.UTC(),
		DurationMinutes: req.DurationMinutes,
		Active:          true,
	}

	if err := s.rejectOnConflict(ctx, session, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	return &session, nil
}

// Update modifies an existing session, re-checking conflicts only when the
// window moved.
func (s *SessionService) Update(ctx context.Context, id string, req UpdateSessionRequest) (*models.LabSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	updated := *existing
	updated.Title = req.Title
	updated.StartsAt = req.StartsAt.UTC()
	updated.DurationMinutes = req.DurationMinutes
	if req.Active != nil {
		updated.Active = *req.Active
	}

	windowChanged := !updated.StartsAt.Equal(existing.StartsAt) ||
		updated.DurationMinutes != existing.DurationMinutes ||
		(updated.Active && !existing.Active)

	if windowChanged && updated.Active {
		if err := s.rejectOnConflict(ctx, updated, existing.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session")
	}
	return &updated, nil
}

// Delete removes a session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	return nil
}

func (s *SessionService) rejectOnConflict(ctx context.Context, session models.LabSession, excludeID string) error {
	result, err := s.Check(ctx, CheckSessionRequest{
		LabID:           session.LabID,
		ClassID:         session.ClassID,
		StartsAt:        session.StartsAt,
		DurationMinutes: session.DurationMinutes,
		ExcludeID:       excludeID,
	})
	if err != nil {
		return err
	}
	if !result.HasConflicts {
		return nil
	}

	conflictType := result.Conflicts[0].Dimension
	s.metrics.RecordScheduleConflict(conflictType)
	message := "lab already occupied in this time range"
	if conflictType == models.ConflictDimensionClass {
		message = "class already has a session in this time range"
	}
	appErr := appErrors.Clone(appErrors.ErrScheduleConflict, message)
	return appErrors.WithDetails(appErr, result)
}

func sessionConflict(session models.LabSession, dimension string) models.SessionConflict {
	return models.SessionConflict{
		SessionID:       session.ID,
		ClassID:         session.ClassID,
		LabID:           session.LabID,
		StartsAt:        session.StartsAt,
		DurationMinutes: session.DurationMinutes,
		Dimension:       dimension,
	}
}
