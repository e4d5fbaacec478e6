package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/timeslot"
)

type timetableRepository interface {
	List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableSlot, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error)
	ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.TimetableSlot, error)
	FindByID(ctx context.Context, id string) (*models.TimetableSlot, error)
	Create(ctx context.Context, slot *models.TimetableSlot) error
	Update(ctx context.Context, slot *models.TimetableSlot) error
	Delete(ctx context.Context, id string) error
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// CheckSlotRequest describes a proposed slot to test against the timetable.
type CheckSlotRequest struct {
	LabID     string `json:"lab_id" validate:"required"`
	ClassID   string `json:"class_id"`
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	ExcludeID string `json:"exclude_id"`
}

// CreateSlotRequest describes payload for creating a timetable slot.
type CreateSlotRequest struct {
	ClassID   string `json:"class_id" validate:"required"`
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

// UpdateSlotRequest updates an existing slot.
type UpdateSlotRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"required,min=1,max=7"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Active    *bool  `json:"active"`
}

// TimetableService coordinates recurring slot scheduling and conflict
// detection.
type TimetableService struct {
	repo      timetableRepository
	classes   classReader
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService instantiates TimetableService.
func NewTimetableService(repo timetableRepository, classes classReader, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{repo: repo, classes: classes, metrics: metrics, validator: validate, logger: logger}
}

// List returns slots with pagination metadata.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableSlot, *models.Pagination, error) {
	slots, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable slots")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return slots, pagination, nil
}

// ListByClass returns the weekly timetable of a class.
func (s *TimetableService) ListByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error) {
	slots, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list class timetable")
	}
	return slots, nil
}

// Check runs the conflict detection without persisting anything. A conflict
// is a normal outcome: the result always comes back, and the caller decides
// whether to reject the write.
func (s *TimetableService) Check(ctx context.Context, req CheckSlotRequest) (*models.ConflictResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid conflict check payload")
	}
	proposed, err := timeslot.ClockInterval(req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot times")
	}

	candidates, err := s.repo.ListActiveByDay(ctx, req.DayOfWeek)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slots")
	}

	result := &models.ConflictResult{Conflicts: []models.SlotConflict{}}
	for _, candidate := range candidates {
		if candidate.ID == req.ExcludeID {
			continue
		}
		existing, err := timeslot.ClockInterval(candidate.StartTime, candidate.EndTime)
		if err != nil {
			s.logger.Warn("skipping slot with malformed times", zap.String("slot_id", candidate.ID), zap.Error(err))
			continue
		}
		if !proposed.Overlaps(existing) {
			continue
		}
		// Lab takes precedence when both dimensions match.
		switch {
		case candidate.LabID == req.LabID:
			result.Conflicts = append(result.Conflicts, slotConflict(candidate, models.ConflictDimensionLab))
		case req.ClassID != "" && candidate.ClassID == req.ClassID:
			result.Conflicts = append(result.Conflicts, slotConflict(candidate, models.ConflictDimensionClass))
		}
	}
	result.HasConflicts = len(result.Conflicts) > 0
	return result, nil
}

// Create inserts a new timetable slot after conflict detection. The lab is
// derived from the class: a class meets in exactly one lab.
func (s *TimetableService) Create(ctx context.Context, req CreateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	slot := models.TimetableSlot{
		ClassID:   class.ID,
		LabID:     class.LabID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Active:    true,
	}

	if err := s.rejectOnConflict(ctx, slot, ""); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, &slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable slot")
	}
	return &slot, nil
}

// Update modifies an existing slot, re-running conflict detection only when
// a time-relevant field changed.
func (s *TimetableService) Update(ctx context.Context, id string, req UpdateSlotRequest) (*models.TimetableSlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slot")
	}

	updated := *existing
	updated.DayOfWeek = req.DayOfWeek
	updated.StartTime = req.StartTime
	updated.EndTime = req.EndTime
	if req.Active != nil {
		updated.Active = *req.Active
	}

	timeChanged := updated.DayOfWeek != existing.DayOfWeek ||
		updated.StartTime != existing.StartTime ||
		updated.EndTime != existing.EndTime ||
		(updated.Active && !existing.Active)

	if timeChanged && updated.Active {
		if err := s.rejectOnConflict(ctx, updated, existing.ID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update timetable slot")
	}
	return &updated, nil
}

// Delete removes a slot.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "timetable slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable slot")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete timetable slot")
	}
	return nil
}

func (s *TimetableService) rejectOnConflict(ctx context.Context, slot models.TimetableSlot, excludeID string) error {
	result, err := s.Check(ctx, CheckSlotRequest{
		LabID:     slot.LabID,
		ClassID:   slot.ClassID,
		DayOfWeek: slot.DayOfWeek,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		ExcludeID: excludeID,
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
	domainErr := &models.ScheduleConflictError{
		ConflictType: conflictType,
		Message:      message,
		Conflicts:    result.Conflicts,
	}
	appErr := appErrors.Wrap(domainErr, appErrors.ErrScheduleConflict.Code, appErrors.ErrScheduleConflict.Status, message)
	return appErrors.WithDetails(appErr, domainErr)
}

func slotConflict(slot models.TimetableSlot, dimension string) models.SlotConflict {
	return models.SlotConflict{
		SlotID:    slot.ID,
		ClassID:   slot.ClassID,
		LabID:     slot.LabID,
		DayOfWeek: slot.DayOfWeek,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Dimension: dimension,
	}
}
