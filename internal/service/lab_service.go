package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type labRepository interface {
	List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error)
	FindByID(ctx context.Context, id string) (*models.Lab, error)
	Create(ctx context.Context, lab *models.Lab) error
	Update(ctx context.Context, lab *models.Lab) error
	Delete(ctx context.Context, id string) error
}

type computerRepository interface {
	List(ctx context.Context, filter models.ComputerFilter) ([]models.Computer, int, error)
	FindByID(ctx context.Context, id string) (*models.Computer, error)
	ListActiveByLab(ctx context.Context, labID string) ([]models.Computer, error)
	Create(ctx context.Context, computer *models.Computer) error
	Update(ctx context.Context, computer *models.Computer) error
	Delete(ctx context.Context, id string) error
}

// LabRequest carries lab create/update payloads.
type LabRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Location string `json:"location" validate:"max=200"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=500"`
	Active   *bool  `json:"active"`
}

// ComputerRequest carries computer create/update payloads.
type ComputerRequest struct {
	LabID    string `json:"lab_id" validate:"required"`
	Hostname string `json:"hostname" validate:"required,min=2,max=100"`
	Specs    string `json:"specs" validate:"max=500"`
	Active   *bool  `json:"active"`
}

// LabService manages labs and their computers.
type LabService struct {
	labs      labRepository
	computers computerRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLabService instantiates LabService.
func NewLabService(labs labRepository, computers computerRepository, validate *validator.Validate, logger *zap.Logger) *LabService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabService{labs: labs, computers: computers, validator: validate, logger: logger}
}

// List returns labs matching the filter.
func (s *LabService) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error) {
	labs, total, err := s.labs.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list labs")
	}
	return labs, total, nil
}

// Get returns one lab.
func (s *LabService) Get(ctx context.Context, id string) (*models.Lab, error) {
	lab, err := s.labs.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lab not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lab")
	}
	return lab, nil
}

// Create stores a new lab.
func (s *LabService) Create(ctx context.Context, req LabRequest) (*models.Lab, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}
	lab := &models.Lab{
		Name:     req.Name,
		Location: req.Location,
		Capacity: req.Capacity,
		Active:   true,
	}
	if req.Active != nil {
		lab.Active = *req.Active
	}
	if err := s.labs.Create(ctx, lab); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "lab name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lab")
	}
	s.logger.Info("lab created", zap.String("lab_id", lab.ID), zap.String("name", lab.Name))
	return lab, nil
}

// Update modifies an existing lab.
func (s *LabService) Update(ctx context.Context, id string, req LabRequest) (*models.Lab, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}
	lab, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	lab.Name = req.Name
	lab.Location = req.Location
	lab.Capacity = req.Capacity
	if req.Active != nil {
		lab.Active = *req.Active
	}
	if err := s.labs.Update(ctx, lab); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "lab name already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lab")
	}
	return lab, nil
}

// Delete removes a lab.
func (s *LabService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.labs.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete lab")
	}
	return nil
}

// ListComputers returns computers matching the filter.
func (s *LabService) ListComputers(ctx context.Context, filter models.ComputerFilter) ([]models.Computer, int, error) {
	computers, total, err := s.computers.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list computers")
	}
	return computers, total, nil
}

// GetComputer returns one computer.
func (s *LabService) GetComputer(ctx context.Context, id string) (*models.Computer, error) {
	computer, err := s.computers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "computer not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load computer")
	}
	return computer, nil
}

// CreateComputer stores a new computer under an existing lab.
func (s *LabService) CreateComputer(ctx context.Context, req ComputerRequest) (*models.Computer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid computer payload")
	}
	if _, err := s.Get(ctx, req.LabID); err != nil {
		return nil, err
	}
	computer := &models.Computer{
		LabID:    req.LabID,
		Hostname: req.Hostname,
		Specs:    req.Specs,
		Active:   true,
	}
	if req.Active != nil {
		computer.Active = *req.Active
	}
	if err := s.computers.Create(ctx, computer); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "hostname already exists in this lab")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create computer")
	}
	return computer, nil
}

// UpdateComputer modifies an existing computer.
func (s *LabService) UpdateComputer(ctx context.Context, id string, req ComputerRequest) (*models.Computer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid computer payload")
	}
	computer, err := s.GetComputer(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.LabID != computer.LabID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "computers cannot move between labs")
	}
	computer.Hostname = req.Hostname
	computer.Specs = req.Specs
	if req.Active != nil {
		computer.Active = *req.Active
	}
	if err := s.computers.Update(ctx, computer); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "hostname already exists in this lab")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update computer")
	}
	return computer, nil
}

// DeleteComputer removes a computer.
func (s *LabService) DeleteComputer(ctx context.Context, id string) error {
	if _, err := s.GetComputer(ctx, id); err != nil {
		return err
	}
	if err := s.computers.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete computer")
	}
	return nil
}
