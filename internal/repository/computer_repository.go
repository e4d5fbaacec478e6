package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labsphere/labsphere-api/internal/models"
)

// ComputerRepository provides persistence for lab workstations.
type ComputerRepository struct {
	db *sqlx.DB
}

// NewComputerRepository creates a new computer repository.
func NewComputerRepository(db *sqlx.DB) *ComputerRepository {
	return &ComputerRepository{db: db}
}

const computerColumns = "id, lab_id, hostname, specs, active, created_at, updated_at"

// List returns computers with optional filtering and pagination.
func (r *ComputerRepository) List(ctx context.Context, filter models.ComputerFilter) ([]models.Computer, int, error) {
	base := "FROM computers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.LabID != "" {
		conditions = append(conditions, fmt.Sprintf("lab_id = $%d", len(args)+1))
		args = append(args, filter.LabID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY hostname %s LIMIT %d OFFSET %d", computerColumns, base, order, size, offset)
	var computers []models.Computer
	if err := r.db.SelectContext(ctx, &computers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list computers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count computers: %w", err)
	}
	return computers, total, nil
}

// FindByID loads a computer by id.
func (r *ComputerRepository) FindByID(ctx context.Context, id string) (*models.Computer, error) {
	query := fmt.Sprintf("SELECT %s FROM computers WHERE id = $1", computerColumns)
	var computer models.Computer
	if err := r.db.GetContext(ctx, &computer, query, id); err != nil {
		return nil, err
	}
	return &computer, nil
}

// ListActiveByLab returns a lab's usable computers in a stable order. The
// assignor's "first unused computer" choice depends on this ordering.
func (r *ComputerRepository) ListActiveByLab(ctx context.Context, labID string) ([]models.Computer, error) {
	query := fmt.Sprintf("SELECT %s FROM computers WHERE lab_id = $1 AND active = TRUE ORDER BY hostname ASC, id ASC", computerColumns)
	var computers []models.Computer
	if err := r.db.SelectContext(ctx, &computers, query, labID); err != nil {
		return nil, fmt.Errorf("list active computers by lab: %w", err)
	}
	return computers, nil
}

// Create stores a new computer.
func (r *ComputerRepository) Create(ctx context.Context, computer *models.Computer) error {
	if computer.ID == "" {
		computer.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if computer.CreatedAt.IsZero() {
		computer.CreatedAt = now
	}
	computer.UpdatedAt = now

	const query = `INSERT INTO computers (id, lab_id, hostname, specs, active, created_at, updated_at)
        VALUES (:id, :lab_id, :hostname, :specs, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, computer); err != nil {
		return fmt.Errorf("create computer: %w", err)
	}
	return nil
}

// Update modifies a computer.
func (r *ComputerRepository) Update(ctx context.Context, computer *models.Computer) error {
	computer.UpdatedAt = time.Now().UTC()
	const query = `UPDATE computers SET lab_id = :lab_id, hostname = :hostname, specs = :specs, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, computer); err != nil {
		return fmt.Errorf("update computer: %w", err)
	}
	return nil
}

// Delete removes a computer by id.
func (r *ComputerRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM computers WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete computer: %w", err)
	}
	return nil
}
