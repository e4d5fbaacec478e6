package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/labsphere/labsphere-api/internal/models"
)

// GroupRepository handles persistence of student groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs the repository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = "id, class_id, name, computer_id, leader_id, max_members, created_at, updated_at"

// ListByClass returns the class's groups in creation order. The assignor's
// first-fit scan depends on this ordering being stable.
func (r *GroupRepository) ListByClass(ctx context.Context, classID string) ([]models.Group, error) {
	query := fmt.Sprintf("SELECT %s FROM groups WHERE class_id = $1 ORDER BY created_at ASC, id ASC", groupColumns)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, classID); err != nil {
		return nil, fmt.Errorf("list groups by class: %w", err)
	}
	return groups, nil
}

// ListClaimedComputerIDs returns the computers claimed by any group whose
// class sits in the given lab. Claims are lab-wide: classes sharing a lab
// compete for the same machines.
func (r *GroupRepository) ListClaimedComputerIDs(ctx context.Context, labID string) ([]string, error) {
	const query = `SELECT g.computer_id FROM groups g
        JOIN classes c ON c.id = g.class_id
        WHERE c.lab_id = $1 AND g.computer_id IS NOT NULL`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, labID); err != nil {
		return nil, fmt.Errorf("list claimed computers: %w", err)
	}
	return ids, nil
}

// FindByID loads a group by id.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.Group, error) {
	query := fmt.Sprintf("SELECT %s FROM groups WHERE id = $1", groupColumns)
	var group models.Group
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ListMembers returns the active member roster of a group.
func (r *GroupRepository) ListMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	const query = `SELECT e.student_id, u.full_name AS student_name, e.seat_label,
        (g.leader_id IS NOT NULL AND g.leader_id = e.student_id) AS is_leader
        FROM enrollments e
        JOIN groups g ON g.id = e.group_id
        LEFT JOIN users u ON u.id = e.student_id
        WHERE e.group_id = $1 AND e.status = $2
        ORDER BY e.seat_label ASC`
	var members []models.GroupMember
	if err := r.db.SelectContext(ctx, &members, query, groupID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	return members, nil
}

// Create stores a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	return r.insert(ctx, r.db, group)
}

// CreateWithTx stores a new group using an existing transaction.
func (r *GroupRepository) CreateWithTx(ctx context.Context, tx *sqlx.Tx, group *models.Group) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	return r.insert(ctx, tx, group)
}

func (r *GroupRepository) insert(ctx context.Context, exec sqlx.ExtContext, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	const query = `INSERT INTO groups (id, class_id, name, computer_id, leader_id, max_members, created_at, updated_at)
        VALUES (:id, :class_id, :name, :computer_id, :leader_id, :max_members, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// UpdateLeader sets or clears the leader reference.
func (r *GroupRepository) UpdateLeader(ctx context.Context, groupID string, leaderID *string) error {
	const query = `UPDATE groups SET leader_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, groupID, leaderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update group leader: %w", err)
	}
	return nil
}

// UpdateLeaderWithTx sets or clears the leader reference inside a transaction.
func (r *GroupRepository) UpdateLeaderWithTx(ctx context.Context, tx *sqlx.Tx, groupID string, leaderID *string) error {
	if tx == nil {
		return fmt.Errorf("nil transaction provided")
	}
	const query = `UPDATE groups SET leader_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, groupID, leaderID, time.Now().UTC()); err != nil {
		return fmt.Errorf("update group leader: %w", err)
	}
	return nil
}

// Delete removes a group by id.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}
