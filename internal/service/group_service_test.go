package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type mockGroupRepo struct {
	groups       []models.Group
	classLab     map[string]string
	members      map[string][]models.GroupMember
	created      *models.Group
	leaderSet    map[string]*string
	deleted      []string
	leaderInTx   bool
}

func (m *mockGroupRepo) ListByClass(ctx context.Context, classID string) ([]models.Group, error) {
	var out []models.Group
	for _, g := range m.groups {
		if g.ClassID == classID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockGroupRepo) ListClaimedComputerIDs(ctx context.Context, labID string) ([]string, error) {
	var ids []string
	for _, g := range m.groups {
		if g.ComputerID == nil {
			continue
		}
		if m.classLab != nil && m.classLab[g.ClassID] != labID {
			continue
		}
		ids = append(ids, *g.ComputerID)
	}
	return ids, nil
}

func (m *mockGroupRepo) FindByID(ctx context.Context, id string) (*models.Group, error) {
	for i := range m.groups {
		if m.groups[i].ID == id {
			return &m.groups[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupRepo) ListMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	return m.members[groupID], nil
}

func (m *mockGroupRepo) CreateWithTx(ctx context.Context, tx *sqlx.Tx, group *models.Group) error {
	if group.ID == "" {
		group.ID = "new-group"
	}
	m.created = group
	m.groups = append(m.groups, *group)
	return nil
}

func (m *mockGroupRepo) UpdateLeader(ctx context.Context, groupID string, leaderID *string) error {
	if m.leaderSet == nil {
		m.leaderSet = make(map[string]*string)
	}
	m.leaderSet[groupID] = leaderID
	return nil
}

func (m *mockGroupRepo) UpdateLeaderWithTx(ctx context.Context, tx *sqlx.Tx, groupID string, leaderID *string) error {
	m.leaderInTx = true
	return m.UpdateLeader(ctx, groupID, leaderID)
}

func (m *mockGroupRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

type mockEnrollmentStore struct {
	active       []models.Enrollment
	existsActive map[string]bool
	created      *models.Enrollment
	cleared      []string
	bulkAffected int64
	bulkCalled   bool
}

func (m *mockEnrollmentStore) ListActiveByClass(ctx context.Context, classID string) ([]models.Enrollment, error) {
	var out []models.Enrollment
	for _, e := range m.active {
		if e.ClassID == classID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockEnrollmentStore) ExistsActive(ctx context.Context, studentID, classID string) (bool, error) {
	return m.existsActive[studentID+classID], nil
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	for i := range m.active {
		if m.active[i].ID == id {
			return &m.active[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentStore) CreateWithTx(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.created = enrollment
	m.active = append(m.active, *enrollment)
	return nil
}

func (m *mockEnrollmentStore) BulkSetGroupWithTx(ctx context.Context, tx *sqlx.Tx, classID, groupID string, studentIDs []string) (int64, error) {
	m.bulkCalled = true
	return m.bulkAffected, nil
}

func (m *mockEnrollmentStore) ClearGroup(ctx context.Context, id string) error {
	m.cleared = append(m.cleared, id)
	return nil
}

func (m *mockEnrollmentStore) ClearGroupWithTx(ctx context.Context, tx *sqlx.Tx, id string) error {
	return m.ClearGroup(ctx, id)
}

type mockComputerReader struct {
	computers []models.Computer
}

func (m *mockComputerReader) FindByID(ctx context.Context, id string) (*models.Computer, error) {
	for i := range m.computers {
		if m.computers[i].ID == id {
			return &m.computers[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockComputerReader) ListActiveByLab(ctx context.Context, labID string) ([]models.Computer, error) {
	var out []models.Computer
	for _, c := range m.computers {
		if c.LabID == labID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type mockClassReader struct {
	classes map[string]*models.Class
}

func (m *mockClassReader) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type fakeTxRunner struct {
	calls int
}

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	f.calls++
	return fn(nil)
}

func strPtr(s string) *string { return &s }

func newGroupFixture() (*mockGroupRepo, *mockEnrollmentStore, *mockComputerReader, *mockUserReader, *mockClassReader, *fakeTxRunner) {
	groups := &mockGroupRepo{}
	enrollments := &mockEnrollmentStore{}
	computers := &mockComputerReader{computers: []models.Computer{
		{ID: "pc-1", LabID: "lab-1", Hostname: "lab1-pc01", Active: true},
		{ID: "pc-2", LabID: "lab-1", Hostname: "lab1-pc02", Active: true},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"stu-1": {ID: "stu-1", Role: models.RoleStudent, Active: true},
	}}
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", LabID: "lab-1", MaxGroupSize: 2},
	}}
	return groups, enrollments, computers, users, classes, &fakeTxRunner{}
}

func TestGroupServiceEnrollCreatesFirstGroup(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	result, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, result.GroupCreated)
	assert.Equal(t, "Group 1", result.Group.Name)
	require.NotNil(t, result.Group.ComputerID)
	assert.Equal(t, "pc-1", *result.Group.ComputerID)
	assert.Equal(t, "S01", result.Enrollment.SeatLabel)
	assert.Equal(t, 1, tx.calls)
}

func TestGroupServiceEnrollFirstFitPicksEarliestOpenGroup(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{
		{ID: "g1", ClassID: "class-1", Name: "Group 1", ComputerID: strPtr("pc-1"), MaxMembers: 2},
		{ID: "g2", ClassID: "class-1", Name: "Group 2", ComputerID: strPtr("pc-2"), MaxMembers: 2},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "a", GroupID: strPtr("g1"), SeatLabel: "S01", Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "b", GroupID: strPtr("g1"), SeatLabel: "S02", Status: models.EnrollmentStatusActive},
		{ID: "e3", ClassID: "class-1", StudentID: "c", GroupID: strPtr("g2"), SeatLabel: "S03", Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	result, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.False(t, result.GroupCreated)
	assert.Equal(t, "g2", result.Group.ID)
	assert.Equal(t, "S04", result.Enrollment.SeatLabel)
}

func TestGroupServiceEnrollCreatesGroupWhenAllFull(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{
		{ID: "g1", ClassID: "class-1", Name: "Group 1", ComputerID: strPtr("pc-1"), MaxMembers: 2},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "a", GroupID: strPtr("g1"), SeatLabel: "S01", Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "b", GroupID: strPtr("g1"), SeatLabel: "S02", Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	result, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, result.GroupCreated)
	assert.Equal(t, "Group 2", result.Group.Name)
	require.NotNil(t, result.Group.ComputerID)
	assert.Equal(t, "pc-2", *result.Group.ComputerID)
	assert.Equal(t, "S03", result.Enrollment.SeatLabel)
}

func TestGroupServiceEnrollSharesComputerWhenAllClaimed(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{
		{ID: "g1", ClassID: "class-1", Name: "Group 1", ComputerID: strPtr("pc-1"), MaxMembers: 1},
		{ID: "g2", ClassID: "class-1", Name: "Group 2", ComputerID: strPtr("pc-2"), MaxMembers: 1},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "a", GroupID: strPtr("g1"), SeatLabel: "S01", Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "b", GroupID: strPtr("g2"), SeatLabel: "S02", Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	result, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, result.GroupCreated)
	require.NotNil(t, result.Group.ComputerID)
	assert.Equal(t, "pc-1", *result.Group.ComputerID)
}

func TestGroupServiceEnrollSkipsComputersClaimedByOtherClasses(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	classes.classes["class-2"] = &models.Class{ID: "class-2", LabID: "lab-1", MaxGroupSize: 2}
	groups.classLab = map[string]string{"class-1": "lab-1", "class-2": "lab-1"}
	groups.groups = []models.Group{
		{ID: "g-other", ClassID: "class-2", Name: "Group 1", ComputerID: strPtr("pc-1"), MaxMembers: 2},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	result, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.NoError(t, err)
	assert.True(t, result.GroupCreated)
	require.NotNil(t, result.Group.ComputerID)
	assert.Equal(t, "pc-2", *result.Group.ComputerID)
}

func TestGroupServiceCreateRejectsComputerClaimedByOtherClass(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	classes.classes["class-2"] = &models.Class{ID: "class-2", LabID: "lab-1", MaxGroupSize: 2}
	groups.classLab = map[string]string{"class-1": "lab-1", "class-2": "lab-1"}
	groups.groups = []models.Group{
		{ID: "g-other", ClassID: "class-2", Name: "Group 1", ComputerID: strPtr("pc-1"), MaxMembers: 2},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", SeatLabel: "S01", Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.CreateGroupWithMembers(context.Background(), CreateGroupRequest{
		ClassID:    "class-1",
		Name:       "Alpha",
		StudentIDs: []string{"stu-1"},
		ComputerID: "pc-1",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.False(t, enrollments.bulkCalled)
}

func TestGroupServiceEnrollNoComputers(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	computers.computers = nil
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNoCapacity.Code, appErr.Code)
	assert.Equal(t, 0, tx.calls)
}

func TestGroupServiceEnrollDuplicate(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	enrollments.existsActive = map[string]bool{"stu-1class-1": true}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.EnrollStudent(context.Background(), "class-1", "stu-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestGroupServiceEnrollRejectsNonStudent(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	users.users["inst-1"] = &models.User{ID: "inst-1", Role: models.RoleInstructor, Active: true}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.EnrollStudent(context.Background(), "class-1", "inst-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}

func TestGroupServiceCreateWithMembers(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", SeatLabel: "S01", Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "stu-2", SeatLabel: "S02", Status: models.EnrollmentStatusActive},
	}
	enrollments.bulkAffected = 2
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	detail, err := svc.CreateGroupWithMembers(context.Background(), CreateGroupRequest{
		ClassID:    "class-1",
		Name:       "Alpha",
		StudentIDs: []string{"stu-1", "stu-2"},
		LeaderID:   "stu-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alpha", detail.Name)
	require.NotNil(t, detail.LeaderID)
	assert.Equal(t, "stu-1", *detail.LeaderID)
	assert.True(t, enrollments.bulkCalled)
	assert.True(t, groups.leaderInTx)
}

func TestGroupServiceCreateWithMembersRaceAborts(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", SeatLabel: "S01", Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "stu-2", SeatLabel: "S02", Status: models.EnrollmentStatusActive},
	}
	enrollments.bulkAffected = 1
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.CreateGroupWithMembers(context.Background(), CreateGroupRequest{
		ClassID:    "class-1",
		Name:       "Alpha",
		StudentIDs: []string{"stu-1", "stu-2"},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrRaceDetected.Code, appErr.Code)
	assert.Equal(t, 1, tx.calls)
}

func TestGroupServiceCreateWithMembersRejectsAssigned(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", GroupID: strPtr("g9"), SeatLabel: "S01", Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.CreateGroupWithMembers(context.Background(), CreateGroupRequest{
		ClassID:    "class-1",
		Name:       "Alpha",
		StudentIDs: []string{"stu-1"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.False(t, enrollments.bulkCalled)
}

func TestGroupServiceCreateWithMembersRosterExceedsCap(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.CreateGroupWithMembers(context.Background(), CreateGroupRequest{
		ClassID:    "class-1",
		Name:       "Alpha",
		StudentIDs: []string{"a", "b", "c"},
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestGroupServiceRemoveMemberLeaderBlocked(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{
		{ID: "g1", ClassID: "class-1", Name: "Group 1", LeaderID: strPtr("stu-1"), MaxMembers: 2},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", GroupID: strPtr("g1"), Status: models.EnrollmentStatusActive},
		{ID: "e2", ClassID: "class-1", StudentID: "stu-2", GroupID: strPtr("g1"), Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	err := svc.RemoveMember(context.Background(), "g1", "stu-1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, enrollments.cleared)
}

func TestGroupServiceRemoveLastLeaderClearsLeadership(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{
		{ID: "g1", ClassID: "class-1", Name: "Group 1", LeaderID: strPtr("stu-1"), MaxMembers: 2},
	}
	enrollments.active = []models.Enrollment{
		{ID: "e1", ClassID: "class-1", StudentID: "stu-1", GroupID: strPtr("g1"), Status: models.EnrollmentStatusActive},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	err := svc.RemoveMember(context.Background(), "g1", "stu-1")
	require.NoError(t, err)
	assert.Contains(t, enrollments.cleared, "e1")
	leader, ok := groups.leaderSet["g1"]
	require.True(t, ok)
	assert.Nil(t, leader)
	assert.Equal(t, 1, tx.calls)
}

func TestGroupServiceReassignLeaderRequiresMembership(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{{ID: "g1", ClassID: "class-1", Name: "Group 1", MaxMembers: 2}}
	groups.members = map[string][]models.GroupMember{
		"g1": {{StudentID: "stu-1"}},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	_, err := svc.ReassignLeader(context.Background(), "g1", "outsider")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)

	group, err := svc.ReassignLeader(context.Background(), "g1", "stu-1")
	require.NoError(t, err)
	require.NotNil(t, group.LeaderID)
	assert.Equal(t, "stu-1", *group.LeaderID)
}

func TestGroupServiceDeleteRequiresEmptyGroup(t *testing.T) {
	groups, enrollments, computers, users, classes, tx := newGroupFixture()
	groups.groups = []models.Group{{ID: "g1", ClassID: "class-1", Name: "Group 1", MaxMembers: 2}}
	groups.members = map[string][]models.GroupMember{
		"g1": {{StudentID: "stu-1"}},
	}
	svc := NewGroupService(groups, enrollments, computers, users, classes, tx, nil, 4, nil, zap.NewNop())

	err := svc.Delete(context.Background(), "g1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)

	groups.members["g1"] = nil
	require.NoError(t, svc.Delete(context.Background(), "g1"))
	assert.Contains(t, groups.deleted, "g1")
}
