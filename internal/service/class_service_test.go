package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
)

type mockClassRepo struct {
	classes map[string]*models.Class
	created []*models.Class
	updated []*models.Class
	deleted []string
}

func (m *mockClassRepo) List(_ context.Context, _ models.ClassFilter) ([]models.ClassDetail, int, error) {
	var out []models.ClassDetail
	for _, class := range m.classes {
		out = append(out, models.ClassDetail{Class: *class})
	}
	return out, len(out), nil
}

func (m *mockClassRepo) FindByID(_ context.Context, id string) (*models.Class, error) {
	if class, ok := m.classes[id]; ok {
		return class, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) Create(_ context.Context, class *models.Class) error {
	class.ID = "class-new"
	m.created = append(m.created, class)
	m.classes[class.ID] = class
	return nil
}

func (m *mockClassRepo) Update(_ context.Context, class *models.Class) error {
	m.updated = append(m.updated, class)
	m.classes[class.ID] = class
	return nil
}

func (m *mockClassRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	delete(m.classes, id)
	return nil
}

type mockLabReader struct {
	labs map[string]*models.Lab
}

func (m *mockLabReader) FindByID(_ context.Context, id string) (*models.Lab, error) {
	if lab, ok := m.labs[id]; ok {
		return lab, nil
	}
	return nil, sql.ErrNoRows
}

func newClassFixture() (*ClassService, *mockClassRepo) {
	repo := &mockClassRepo{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Networking 101", Code: "NET101", LabID: "lab-1", MaxGroupSize: 4, Active: true},
	}}
	labs := &mockLabReader{labs: map[string]*models.Lab{
		"lab-1": {ID: "lab-1", Name: "Lab A", Active: true},
		"lab-2": {ID: "lab-2", Name: "Lab B", Active: true},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"inst-1": {ID: "inst-1", Role: models.RoleInstructor, Active: true},
		"stu-1":  {ID: "stu-1", Role: models.RoleStudent, Active: true},
	}}
	svc := NewClassService(repo, labs, users, nil, nil, zap.NewNop())
	return svc, repo
}

func TestClassService_CreateDefaultsGroupSize(t *testing.T) {
	svc, repo := newClassFixture()

	class, err := svc.Create(context.Background(), ClassRequest{
		Name:  "Operating Systems",
		Code:  "OS201",
		LabID: "lab-2",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, 4, class.MaxGroupSize)
	assert.True(t, class.Active)
}

func TestClassService_CreateRejectsUnknownLab(t *testing.T) {
	svc, repo := newClassFixture()

	_, err := svc.Create(context.Background(), ClassRequest{
		Name:  "Operating Systems",
		Code:  "OS201",
		LabID: "lab-missing",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestClassService_CreateRejectsStudentInstructor(t *testing.T) {
	svc, _ := newClassFixture()

	_, err := svc.Create(context.Background(), ClassRequest{
		Name:         "Operating Systems",
		Code:         "OS201",
		LabID:        "lab-1",
		InstructorID: "stu-1",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestClassService_UpdateRejectsLabMove(t *testing.T) {
	svc, repo := newClassFixture()

	_, err := svc.Update(context.Background(), "class-1", ClassRequest{
		Name:  "Networking 101",
		Code:  "NET101",
		LabID: "lab-2",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Empty(t, repo.updated)
}

func TestClassService_UpdateSetsInstructor(t *testing.T) {
	svc, repo := newClassFixture()

	class, err := svc.Update(context.Background(), "class-1", ClassRequest{
		Name:         "Networking 101",
		Code:         "NET101",
		LabID:        "lab-1",
		InstructorID: "inst-1",
	})
	require.NoError(t, err)
	require.Len(t, repo.updated, 1)
	require.NotNil(t, class.InstructorID)
	assert.Equal(t, "inst-1", *class.InstructorID)
}

func TestClassService_GetCachedWithoutCacheFallsThrough(t *testing.T) {
	svc, _ := newClassFixture()

	class, hit, err := svc.GetCached(context.Background(), "class-1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "NET101", class.Code)
}

func TestClassService_DeleteUnknownClass(t *testing.T) {
	svc, repo := newClassFixture()

	err := svc.Delete(context.Background(), "class-missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.deleted)
}
