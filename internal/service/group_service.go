package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type groupRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.Group, error)
	ListClaimedComputerIDs(ctx context.Context, labID string) ([]string, error)
	FindByID(ctx context.Context, id string) (*models.Group, error)
	ListMembers(ctx context.Context, groupID string) ([]models.GroupMember, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, group *models.Group) error
	UpdateLeader(ctx context.Context, groupID string, leaderID *string) error
	UpdateLeaderWithTx(ctx context.Context, tx *sqlx.Tx, groupID string, leaderID *string) error
	Delete(ctx context.Context, id string) error
}

type enrollmentStore interface {
	ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error)
	ExistsActive(ctx context.Context, studentID, classID string) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error
	BulkSetGroupWithTx(ctx context.Context, tx *sqlx.Tx, classID, groupID string, studentIDs []string) (int64, error)
	ClearGroup(ctx context.Context, id string) error
	ClearGroupWithTx(ctx context.Context, tx *sqlx.Tx, id string) error
}

type computerReader interface {
	FindByID(ctx context.Context, id string) (*models.Computer, error)
	ListActiveByLab(ctx context.Context, labID string) ([]models.Computer, error)
}

type userReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

// AssignmentResult reports a successful enrollment placement.
type AssignmentResult struct {
	Enrollment   *models.Enrollment `json:"enrollment"`
	Group        *models.Group      `json:"group"`
	GroupCreated bool               `json:"group_created"`
}

// CreateGroupRequest describes a bulk group creation with an explicit roster.
type CreateGroupRequest struct {
	ClassID    string   `json:"class_id" validate:"required"`
	Name       string   `json:"name" validate:"required"`
	StudentIDs []string `json:"student_ids" validate:"required,min=1"`
	LeaderID   string   `json:"leader_id"`
	ComputerID string   `json:"computer_id"`
	MaxMembers int      `json:"max_members" validate:"omitempty,min=1,max=10"`
}

// GroupService places students into groups and seats. Placement is first-fit
// over the class's groups in creation order; reads happen in one pass and
// the snapshot is never refreshed mid-decision. Cross-request races are
// caught by database constraints and the post-hoc row-count check, not by
// locks.
type GroupService struct {
	groups            groupRepository
	enrollments       enrollmentStore
	computers         computerReader
	users             userReader
	classes           classReader
	tx                txRunner
	metrics           *MetricsService
	defaultMaxMembers int
	validator         *validator.Validate
	logger            *zap.Logger
}

// NewGroupService instantiates GroupService.
func NewGroupService(groups groupRepository, enrollments enrollmentStore, computers computerReader, users userReader, classes classReader, tx txRunner, metrics *MetricsService, defaultMaxMembers int, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxMembers < 1 || defaultMaxMembers > 10 {
		defaultMaxMembers = 4
	}
	return &GroupService{
		groups:            groups,
		enrollments:       enrollments,
		computers:         computers,
		users:             users,
		classes:           classes,
		tx:                tx,
		metrics:           metrics,
		defaultMaxMembers: defaultMaxMembers,
		validator:         validate,
		logger:            logger,
	}
}

// ListByClass returns a class's groups.
func (s *GroupService) ListByClass(ctx context.Context, classID string) ([]models.Group, error) {
	groups, err := s.groups.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	return groups, nil
}

// Detail returns a group with its member roster.
func (s *GroupService) Detail(ctx context.Context, groupID string) (*models.GroupDetail, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}
	return &models.GroupDetail{Group: *group, Members: members}, nil
}

// EnrollStudent enrolls a student into a class and places them into a group
// with a seat label, creating a group when none has room. Group creation and
// enrollment insert commit or roll back together.
func (s *GroupService) EnrollStudent(ctx context.Context, classID, studentID string) (*AssignmentResult, error) {
	student, err := s.users.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	already, err := s.enrollments.ExistsActive(ctx, studentID, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if already {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already enrolled in this class")
	}

	// One-pass snapshot; the first-fit decision never re-reads.
	groups, err := s.groups.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	active, err := s.enrollments.ListActiveByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	memberCounts := make(map[string]int, len(groups))
	for _, enrollment := range active {
		if enrollment.GroupID != nil {
			memberCounts[*enrollment.GroupID]++
		}
	}

	var target *models.Group
	for i := range groups {
		if memberCounts[groups[i].ID] < groups[i].MaxMembers {
			target = &groups[i]
			break
		}
	}

	var created *models.Group
	if target == nil {
		created, err = s.buildGroup(ctx, class, groups)
		if err != nil {
			return nil, err
		}
		target = created
	}

	seat := fmt.Sprintf("S%02d", len(active)+1)
	enrollment := &models.Enrollment{
		StudentID: studentID,
		ClassID:   classID,
		GroupID:   &target.ID,
		SeatLabel: seat,
		Status:    models.EnrollmentStatusActive,
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if created != nil {
			if err := s.groups.CreateWithTx(ctx, tx, created); err != nil {
				return err
			}
		}
		return s.enrollments.CreateWithTx(ctx, tx, enrollment)
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "enrollment already exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
	}

	return &AssignmentResult{Enrollment: enrollment, Group: target, GroupCreated: created != nil}, nil
}

// buildGroup prepares (without persisting) a new group bound to an unused
// computer in the class's lab. Claims count lab-wide, so groups of other
// classes sharing the lab block a computer too. When every computer is
// claimed the group shares the first one rather than failing; a lab
// without computers cannot host groups at all.
func (s *GroupService) buildGroup(ctx context.Context, class *models.Class, existing []models.Group) (*models.Group, error) {
	computers, err := s.computers.ListActiveByLab(ctx, class.LabID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lab computers")
	}
	if len(computers) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoCapacity, "lab has no computers available for a new group")
	}

	claimed, err := s.groups.ListClaimedComputerIDs(ctx, class.LabID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list claimed computers")
	}
	used := make(map[string]struct{}, len(claimed))
	for _, id := range claimed {
		used[id] = struct{}{}
	}

	computerID := computers[0].ID
	for _, computer := range computers {
		if _, taken := used[computer.ID]; !taken {
			computerID = computer.ID
			break
		}
	}

	maxMembers := class.MaxGroupSize
	if maxMembers < 1 || maxMembers > 10 {
		maxMembers = s.defaultMaxMembers
	}

	return &models.Group{
		ClassID:    class.ID,
		Name:       fmt.Sprintf("Group %d", len(existing)+1),
		ComputerID: &computerID,
		MaxMembers: maxMembers,
	}, nil
}

// CreateGroupWithMembers creates a group with an explicit roster in a single
// all-or-nothing transaction. A row-count mismatch on the bulk update means
// another request claimed one of the students concurrently; the whole
// operation aborts and is never retried internally.
func (s *GroupService) CreateGroupWithMembers(ctx context.Context, req CreateGroupRequest) (*models.GroupDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	maxMembers := req.MaxMembers
	if maxMembers == 0 {
		maxMembers = class.MaxGroupSize
	}
	if maxMembers < 1 || maxMembers > 10 {
		maxMembers = s.defaultMaxMembers
	}
	if len(req.StudentIDs) > maxMembers {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("roster of %d exceeds the member cap of %d", len(req.StudentIDs), maxMembers))
	}

	seen := make(map[string]struct{}, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student in roster")
		}
		seen[id] = struct{}{}
	}

	if req.LeaderID != "" {
		if _, ok := seen[req.LeaderID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "leader must be one of the listed students")
		}
	}

	active, err := s.enrollments.ListActiveByClass(ctx, req.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	enrolled := make(map[string]models.Enrollment, len(active))
	for _, enrollment := range active {
		enrolled[enrollment.StudentID] = enrollment
	}
	for _, id := range req.StudentIDs {
		enrollment, ok := enrolled[id]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s has no active enrollment in this class", id))
		}
		if enrollment.GroupID != nil {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("student %s already belongs to a group", id))
		}
	}

	var computerID *string
	if req.ComputerID != "" {
		computer, err := s.computers.FindByID(ctx, req.ComputerID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "computer not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load computer")
		}
		if computer.LabID != class.LabID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "computer does not belong to the class's lab")
		}
		if !computer.Active {
			return nil, appErrors.Clone(appErrors.ErrValidation, "computer is not active")
		}
		claimed, err := s.groups.ListClaimedComputerIDs(ctx, class.LabID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list claimed computers")
		}
		for _, id := range claimed {
			if id == computer.ID {
				return nil, appErrors.Clone(appErrors.ErrConflict, "computer is already claimed by another group")
			}
		}
		computerID = &computer.ID
	}

	group := &models.Group{
		ClassID:    req.ClassID,
		Name:       req.Name,
		ComputerID: computerID,
		MaxMembers: maxMembers,
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.groups.CreateWithTx(ctx, tx, group); err != nil {
			return err
		}
		affected, err := s.enrollments.BulkSetGroupWithTx(ctx, tx, req.ClassID, group.ID, req.StudentIDs)
		if err != nil {
			return err
		}
		if affected != int64(len(req.StudentIDs)) {
			s.metrics.RecordAssignmentRace()
			return appErrors.Clone(appErrors.ErrRaceDetected,
				fmt.Sprintf("expected %d enrollments to update, got %d", len(req.StudentIDs), affected))
		}
		if req.LeaderID != "" {
			return s.groups.UpdateLeaderWithTx(ctx, tx, group.ID, &req.LeaderID)
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "group name already taken in this class")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create group")
	}

	if req.LeaderID != "" {
		group.LeaderID = &req.LeaderID
	}
	members, err := s.groups.ListMembers(ctx, group.ID)
	if err != nil {
		s.logger.Warn("group created but roster load failed", zap.String("group_id", group.ID), zap.Error(err))
		members = nil
	}
	return &models.GroupDetail{Group: *group, Members: members}, nil
}

// RemoveMember detaches a student from a group. The leader can only be
// removed as the last member, in which case the leader reference is cleared
// rather than left dangling.
func (s *GroupService) RemoveMember(ctx context.Context, groupID, studentID string) error {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	active, err := s.enrollments.ListActiveByClass(ctx, group.ClassID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}

	var membership *models.Enrollment
	memberCount := 0
	for i := range active {
		if active[i].GroupID != nil && *active[i].GroupID == groupID {
			memberCount++
			if active[i].StudentID == studentID {
				membership = &active[i]
			}
		}
	}
	if membership == nil {
		return appErrors.Clone(appErrors.ErrNotFound, "student is not a member of this group")
	}

	isLeader := group.LeaderID != nil && *group.LeaderID == studentID
	if isLeader && memberCount > 1 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "reassign leadership before removing the leader")
	}

	if isLeader {
		return s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
			if err := s.groups.UpdateLeaderWithTx(ctx, tx, groupID, nil); err != nil {
				return err
			}
			return s.enrollments.ClearGroupWithTx(ctx, tx, membership.ID)
		})
	}
	if err := s.enrollments.ClearGroup(ctx, membership.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to remove member")
	}
	return nil
}

// ReassignLeader transfers group leadership to another current member.
func (s *GroupService) ReassignLeader(ctx context.Context, groupID, newLeaderID string) (*models.Group, error) {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}
	found := false
	for _, member := range members {
		if member.StudentID == newLeaderID {
			found = true
			break
		}
	}
	if !found {
		return nil, appErrors.Clone(appErrors.ErrValidation, "new leader must be a member of the group")
	}

	if err := s.groups.UpdateLeader(ctx, groupID, &newLeaderID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reassign leader")
	}
	group.LeaderID = &newLeaderID
	return group, nil
}

// Delete removes a group that has no remaining members.
func (s *GroupService) Delete(ctx context.Context, groupID string) error {
	group, err := s.groups.FindByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group members")
	}
	if len(members) > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "group still has members")
	}
	if err := s.groups.Delete(ctx, group.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete group")
	}
	return nil
}
