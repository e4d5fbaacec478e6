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

type mockTimetableRepo struct {
	slots     []models.TimetableSlot
	created   *models.TimetableSlot
	updated   *models.TimetableSlot
	dayCalls  int
	deleted   []string
}

func (m *mockTimetableRepo) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableSlot, int, error) {
	return m.slots, len(m.slots), nil
}

func (m *mockTimetableRepo) ListByClass(ctx context.Context, classID string) ([]models.TimetableSlot, error) {
	var out []models.TimetableSlot
	for _, s := range m.slots {
		if s.ClassID == classID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockTimetableRepo) ListActiveByDay(ctx context.Context, dayOfWeek int) ([]models.TimetableSlot, error) {
	m.dayCalls++
	var out []models.TimetableSlot
	for _, s := range m.slots {
		if s.DayOfWeek == dayOfWeek && s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockTimetableRepo) FindByID(ctx context.Context, id string) (*models.TimetableSlot, error) {
	for i := range m.slots {
		if m.slots[i].ID == id {
			return &m.slots[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTimetableRepo) Create(ctx context.Context, slot *models.TimetableSlot) error {
	if slot.ID == "" {
		slot.ID = "new-slot"
	}
	m.created = slot
	m.slots = append(m.slots, *slot)
	return nil
}

func (m *mockTimetableRepo) Update(ctx context.Context, slot *models.TimetableSlot) error {
	m.updated = slot
	return nil
}

func (m *mockTimetableRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func newTimetableService(repo *mockTimetableRepo) *TimetableService {
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", LabID: "lab-1"},
		"class-2": {ID: "class-2", LabID: "lab-2"},
	}}
	return NewTimetableService(repo, classes, nil, nil, zap.NewNop())
}

func TestTimetableCheckBackToBackSlotsDoNotConflict(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", DayOfWeek: 2, StartTime: "10:00", EndTime: "11:00",
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
	assert.Empty(t, result.Conflicts)
}

func TestTimetableCheckOverlapSameLab(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-2", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", ClassID: "class-1", DayOfWeek: 2, StartTime: "09:30", EndTime: "10:30",
	})
	require.NoError(t, err)
	require.True(t, result.HasConflicts)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionLab, result.Conflicts[0].Dimension)
	assert.Equal(t, "slot-1", result.Conflicts[0].SlotID)
}

func TestTimetableCheckLabDimensionWins(t *testing.T) {
	// Same lab and same class: reported once, as a lab conflict.
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 3, StartTime: "13:00", EndTime: "14:00", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", ClassID: "class-1", DayOfWeek: 3, StartTime: "13:30", EndTime: "14:30",
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionLab, result.Conflicts[0].Dimension)
}

func TestTimetableCheckClassDimension(t *testing.T) {
	// Same class meeting in a different lab still conflicts for the class.
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-2", DayOfWeek: 4, StartTime: "08:00", EndTime: "09:30", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", ClassID: "class-1", DayOfWeek: 4, StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionClass, result.Conflicts[0].Dimension)
}

func TestTimetableCheckDifferentDaysAreIndependent(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
}

func TestTimetableCheckExcludesOwnSlot(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	result, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", ExcludeID: "slot-1",
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
}

func TestTimetableCheckRejectsMalformedTimes(t *testing.T) {
	svc := newTimetableService(&mockTimetableRepo{})

	_, err := svc.Check(context.Background(), CheckSlotRequest{
		LabID: "lab-1", DayOfWeek: 2, StartTime: "25:00", EndTime: "26:00",
	})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestTimetableCreateDerivesLabFromClass(t *testing.T) {
	repo := &mockTimetableRepo{}
	svc := newTimetableService(repo)

	slot, err := svc.Create(context.Background(), CreateSlotRequest{
		ClassID: "class-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, "lab-1", slot.LabID)
	assert.True(t, slot.Active)
	require.NotNil(t, repo.created)
}

func TestTimetableCreateRejectsConflict(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-2", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	_, err := svc.Create(context.Background(), CreateSlotRequest{
		ClassID: "class-1", DayOfWeek: 2, StartTime: "09:30", EndTime: "10:30",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	assert.NotNil(t, appErr.Details)
	assert.Nil(t, repo.created)
}

func TestTimetableUpdateSkipsCheckWhenWindowUnchanged(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
	}}
	svc := newTimetableService(repo)

	_, err := svc.Update(context.Background(), "slot-1", UpdateSlotRequest{
		DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, repo.dayCalls)
	require.NotNil(t, repo.updated)
}

func TestTimetableUpdateRechecksWhenMoved(t *testing.T) {
	repo := &mockTimetableRepo{slots: []models.TimetableSlot{
		{ID: "slot-1", ClassID: "class-1", LabID: "lab-1", DayOfWeek: 2, StartTime: "09:00", EndTime: "10:00", Active: true},
		{ID: "slot-2", ClassID: "class-2", LabID: "lab-1", DayOfWeek: 2, StartTime: "10:00", EndTime: "11:00", Active: true},
	}}
	svc := newTimetableService(repo)

	_, err := svc.Update(context.Background(), "slot-1", UpdateSlotRequest{
		DayOfWeek: 2, StartTime: "10:30", EndTime: "11:30",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	assert.Equal(t, 1, repo.dayCalls)
}
