package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	Delete(ctx context.Context, id string) error
}

type labReader interface {
	FindByID(ctx context.Context, id string) (*models.Lab, error)
}

// ClassRequest carries class create/update payloads.
type ClassRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=100"`
	Code         string `json:"code" validate:"required,min=2,max=20"`
	LabID        string `json:"lab_id" validate:"required"`
	InstructorID string `json:"instructor_id"`
	MaxGroupSize int    `json:"max_group_size" validate:"omitempty,min=1,max=10"`
	Active       *bool  `json:"active"`
}

// ClassService manages classes. Every class is bound to exactly one lab;
// that binding is what makes lab-dimension conflict checks meaningful.
type ClassService struct {
	classes   classRepository
	labs      labReader
	users     userReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService instantiates ClassService. The cache is optional.
func NewClassService(classes classRepository, labs labReader, users userReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, labs: labs, users: users, cache: cache, validator: validate, logger: logger}
}

func classCacheKey(id string) string {
	return fmt.Sprintf("class:%s", id)
}

// List returns classes matching the filter.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, total, nil
}

// Get returns one class.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// GetCached returns one class, preferring the cache. The boolean reports
// whether the result came from cache.
func (s *ClassService) GetCached(ctx context.Context, id string) (*models.Class, bool, error) {
	key := classCacheKey(id)
	if s.cache.Enabled() {
		var cached models.Class
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, class, 0); err != nil {
			s.logger.Warn("cache class", zap.String("class_id", id), zap.Error(err))
		}
	}
	return class, false, nil
}

func (s *ClassService) invalidateCache(ctx context.Context, id string) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, classCacheKey(id)); err != nil {
		s.logger.Warn("invalidate class cache", zap.String("class_id", id), zap.Error(err))
	}
}

// Create stores a new class after validating its lab and instructor.
func (s *ClassService) Create(ctx context.Context, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if err := s.checkRefs(ctx, req); err != nil {
		return nil, err
	}
	class := &models.Class{
		Name:         req.Name,
		Code:         req.Code,
		LabID:        req.LabID,
		MaxGroupSize: req.MaxGroupSize,
		Active:       true,
	}
	if class.MaxGroupSize == 0 {
		class.MaxGroupSize = 4
	}
	if req.InstructorID != "" {
		class.InstructorID = &req.InstructorID
	}
	if req.Active != nil {
		class.Active = *req.Active
	}
	if err := s.classes.Create(ctx, class); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("code", class.Code))
	return class, nil
}

// Update modifies an existing class. The lab binding is immutable once set
// because groups already hold computers from that lab.
func (s *ClassService) Update(ctx context.Context, id string, req ClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.LabID != class.LabID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classes cannot move between labs")
	}
	if req.InstructorID != "" {
		if err := s.checkInstructor(ctx, req.InstructorID); err != nil {
			return nil, err
		}
		class.InstructorID = &req.InstructorID
	} else {
		class.InstructorID = nil
	}
	class.Name = req.Name
	class.Code = req.Code
	if req.MaxGroupSize != 0 {
		class.MaxGroupSize = req.MaxGroupSize
	}
	if req.Active != nil {
		class.Active = *req.Active
	}
	if err := s.classes.Update(ctx, class); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class code already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.invalidateCache(ctx, id)
	return class, nil
}

// Delete removes a class.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.classes.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	s.invalidateCache(ctx, id)
	return nil
}

func (s *ClassService) checkRefs(ctx context.Context, req ClassRequest) error {
	if _, err := s.labs.FindByID(ctx, req.LabID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	if req.InstructorID != "" {
		return s.checkInstructor(ctx, req.InstructorID)
	}
	return nil
}

func (s *ClassService) checkInstructor(ctx context.Context, instructorID string) error {
	user, err := s.users.FindByID(ctx, instructorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instructor not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instructor")
	}
	if user.Role != models.RoleInstructor && user.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrValidation, "instructor must have the INSTRUCTOR role")
	}
	return nil
}
