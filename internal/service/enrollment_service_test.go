package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	withdrawn   []string
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: e})
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Withdraw(ctx context.Context, id string, leftAt time.Time) error {
	m.withdrawn = append(m.withdrawn, id)
	if e, ok := m.enrollments[id]; ok {
		e.Status = models.EnrollmentStatusLeft
		e.LeftAt = &leftAt
		e.GroupID = nil
		m.enrollments[id] = e
	}
	return nil
}

type mockGroupLeaderReader struct {
	groups map[string]*models.Group
}

func (m *mockGroupLeaderReader) FindByID(ctx context.Context, id string) (*models.Group, error) {
	if g, ok := m.groups[id]; ok {
		return g, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGroupLeaderReader) UpdateLeader(ctx context.Context, groupID string, leaderID *string) error {
	return nil
}

func TestEnrollmentServiceWithdraw(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "stu-1", ClassID: "class-1", GroupID: strPtr("g1"), Status: models.EnrollmentStatusActive},
	}}
	groups := &mockGroupLeaderReader{groups: map[string]*models.Group{
		"g1": {ID: "g1", ClassID: "class-1", LeaderID: strPtr("stu-2")},
	}}
	svc := NewEnrollmentService(repo, groups, zap.NewNop())

	require.NoError(t, svc.Withdraw(context.Background(), "e1"))
	assert.Contains(t, repo.withdrawn, "e1")
	assert.Equal(t, models.EnrollmentStatusLeft, repo.enrollments["e1"].Status)
}

func TestEnrollmentServiceWithdrawBlocksLeader(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "stu-1", ClassID: "class-1", GroupID: strPtr("g1"), Status: models.EnrollmentStatusActive},
	}}
	groups := &mockGroupLeaderReader{groups: map[string]*models.Group{
		"g1": {ID: "g1", ClassID: "class-1", LeaderID: strPtr("stu-1")},
	}}
	svc := NewEnrollmentService(repo, groups, zap.NewNop())

	err := svc.Withdraw(context.Background(), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.withdrawn)
}

func TestEnrollmentServiceWithdrawRequiresActive(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "stu-1", ClassID: "class-1", Status: models.EnrollmentStatusLeft},
	}}
	svc := NewEnrollmentService(repo, &mockGroupLeaderReader{}, zap.NewNop())

	err := svc.Withdraw(context.Background(), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
}

func TestEnrollmentServiceWithdrawNotFound(t *testing.T) {
	svc := NewEnrollmentService(&mockEnrollmentRepo{}, &mockGroupLeaderReader{}, zap.NewNop())

	err := svc.Withdraw(context.Background(), "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
