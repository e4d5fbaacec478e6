package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labsphere/labsphere-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = "id, student_id, class_id, group_id, seat_label, joined_at, left_at, status"

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN groups g ON g.id = e.group_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("e.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"joined_at":    "e.joined_at",
		"seat_label":   "e.seat_label",
		"student_name": "u.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.joined_at"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.group_id, e.seat_label, e.joined_at, e.left_at, e.status,
        u.full_name AS student_name, u.email AS student_email, c.name AS class_name, g.name AS group_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListDetailByClass returns every enrollment of a class with student and
// group names, unpaginated, for roster exports.
func (r *EnrollmentRepository) ListDetailByClass(ctx context.Context, classID string, status models.EnrollmentStatus) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.group_id, e.seat_label, e.joined_at, e.left_at, e.status,
        u.full_name AS student_name, u.email AS student_email, c.name AS class_name, g.name AS group_name
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        LEFT JOIN groups g ON g.id = e.group_id
        WHERE e.class_id = $1 AND e.status = $2
        ORDER BY e.seat_label ASC`
	var details []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &details, query, classID, status); err != nil {
		return nil, fmt.Errorf("list enrollment detail by class: %w", err)
	}
	return details, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE id = $1", enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListActiveByClass returns all active enrollments for a class in one pass.
// The assignor treats the result as a frozen snapshot for its decision.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf("SELECT %s FROM enrollments WHERE class_id = $1 AND status = $2 ORDER BY joined_at ASC", enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments by class: %w", err)
	}
	return enrollments, nil
}

// ExistsActive checks whether a student already has an active enrollment in
// the class.
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, classID, models.EnrollmentStatusActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// CreateWithTx persists a new enrollment using an existing transaction.
func (r *EnrollmentRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, group_id, seat_label, joined_at, left_at, status)
        VALUES (:id, :student_id, :class_id, :group_id, :seat_label, :joined_at, :left_at, :status)`
	if _, err := sqlx.NamedExecContext(ctx, tx, query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// BulkSetGroupWithTx assigns a group to the given students' unassigned
// active enrollments in the class, returning the number of rows updated.
// The group_id IS NULL guard makes a concurrent claim visible as a count
// mismatch the caller must treat as a race.
func (r *EnrollmentRepository) BulkSetGroupWithTx(ctx context.Context, tx *sqlx.Tx, classID, groupID string, studentIDs []string) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("nil transaction provided")
	}
	query, args, err := sqlx.In(`UPDATE enrollments SET group_id = ? WHERE class_id = ? AND student_id IN (?) AND status = ? AND group_id IS NULL`,
		groupID, classID, studentIDs, models.EnrollmentStatusActive)
	if err != nil {
		return 0, fmt.Errorf("build bulk group update: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("bulk set enrollment group: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk set enrollment group rows: %w", err)
	}
	return affected, nil
}

// ClearGroup detaches an enrollment from its group.
func (r *EnrollmentRepository) ClearGroup(ctx context.Context, id string) error {
	const query = `UPDATE enrollments SET group_id = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear enrollment group: %w", err)
	}
	return nil
}

// ClearGroupWithTx detaches an enrollment from its group inside a transaction.
func (r *EnrollmentRepository) ClearGroupWithTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE enrollments SET group_id = NULL WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("clear enrollment group: %w", err)
	}
	return nil
}

// Withdraw marks an enrollment as left and releases its group reference.
func (r *EnrollmentRepository) Withdraw(ctx context.Context, id string, leftAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, left_at = $3, group_id = NULL WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, models.EnrollmentStatusLeft, leftAt); err != nil {
		return fmt.Errorf("withdraw enrollment: %w", err)
	}
	return nil
}
