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

// SessionRepository provides persistence for one-off lab sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "id, class_id, lab_id, title, starts_at, duration_minutes, active, created_at, updated_at"

// List returns sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.LabSession, int, error) {
	base := "FROM lab_sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.LabID != "" {
		conditions = append(conditions, fmt.Sprintf("lab_id = $%d", len(args)+1))
		args = append(args, filter.LabID)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("starts_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("starts_at < $%d", len(args)+1))
		args = append(args, *filter.To)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY starts_at %s LIMIT %d OFFSET %d", sessionColumns, base, order, size, offset)
	var sessions []models.LabSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.LabSession, error) {
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE id = $1", sessionColumns)
	var session models.LabSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActiveByDate returns active sessions starting within the given UTC
// calendar day. Sessions only conflict within the same absolute day.
func (r *SessionRepository) ListActiveByDate(ctx context.Context, day time.Time) ([]models.LabSession, error) {
	query := fmt.Sprintf("SELECT %s FROM lab_sessions WHERE starts_at >= $1 AND starts_at < $2 AND active = TRUE ORDER BY starts_at ASC", sessionColumns)
	var sessions []models.LabSession
	if err := r.db.SelectContext(ctx, &sessions, query, day, day.Add(24*time.Hour)); err != nil {
		return nil, fmt.Errorf("list active sessions by date: %w", err)
	}
	return sessions, nil
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.LabSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO lab_sessions (id, class_id, lab_id, title, starts_at, duration_minutes, active, created_at, updated_at)
        VALUES (:id, :class_id, :lab_id, :title, :starts_at, :duration_minutes, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies a session.
func (r *SessionRepository) Update(ctx context.Context, session *models.LabSession) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE lab_sessions SET class_id = :class_id, lab_id = :lab_id, title = :title,
        starts_at = :starts_at, duration_minutes = :duration_minutes, active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session by id.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM lab_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
