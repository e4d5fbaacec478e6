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

type mockSessionRepo struct {
	sessions []models.LabSession
	created  *models.LabSession
	updated  *models.LabSession
	dateCalls int
}

func (m *mockSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.LabSession, int, error) {
	return m.sessions, len(m.sessions), nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*models.LabSession, error) {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return &m.sessions[i], nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSessionRepo) ListActiveByDate(ctx context.Context, day time.Time) ([]models.LabSession, error) {
	m.dateCalls++
	var out []models.LabSession
	for _, s := range m.sessions {
		if s.Active && s.StartsAt.UTC().Truncate(24*time.Hour).Equal(day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSessionRepo) Create(ctx context.Context, session *models.LabSession) error {
	if session.ID == "" {
		session.ID = "new-session"
	}
	m.created = session
	m.sessions = append(m.sessions, *session)
	return nil
}

func (m *mockSessionRepo) Update(ctx context.Context, session *models.LabSession) error {
	m.updated = session
	return nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	return nil
}

func newSessionService(repo *mockSessionRepo) *SessionService {
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", LabID: "lab-1"},
		"class-2": {ID: "class-2", LabID: "lab-2"},
	}}
	return NewSessionService(repo, classes, nil, nil, zap.NewNop())
}

func TestSessionCheckBackToBackDoesNotConflict(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-2", LabID: "lab-1", StartsAt: start, DurationMinutes: 60, Active: true},
	}}
	svc := newSessionService(repo)

	result, err := svc.Check(context.Background(), CheckSessionRequest{
		LabID: "lab-1", StartsAt: start.Add(time.Hour), DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
}

func TestSessionCheckOverlapSameLab(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-2", LabID: "lab-1", StartsAt: start, DurationMinutes: 90, Active: true},
	}}
	svc := newSessionService(repo)

	result, err := svc.Check(context.Background(), CheckSessionRequest{
		LabID: "lab-1", ClassID: "class-1", StartsAt: start.Add(time.Hour), DurationMinutes: 60,
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionLab, result.Conflicts[0].Dimension)
	assert.Equal(t, "ses-1", result.Conflicts[0].SessionID)
}

func TestSessionCheckClassDimensionAcrossLabs(t *testing.T) {
	start := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-1", LabID: "lab-2", StartsAt: start, DurationMinutes: 120, Active: true},
	}}
	svc := newSessionService(repo)

	result, err := svc.Check(context.Background(), CheckSessionRequest{
		LabID: "lab-1", ClassID: "class-1", StartsAt: start.Add(30 * time.Minute), DurationMinutes: 30,
	})
	require.NoError(t, err)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, models.ConflictDimensionClass, result.Conflicts[0].Dimension)
}

func TestSessionCheckExcludesOwnSession(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-1", LabID: "lab-1", StartsAt: start, DurationMinutes: 60, Active: true},
	}}
	svc := newSessionService(repo)

	result, err := svc.Check(context.Background(), CheckSessionRequest{
		LabID: "lab-1", StartsAt: start, DurationMinutes: 60, ExcludeID: "ses-1",
	})
	require.NoError(t, err)
	assert.False(t, result.HasConflicts)
}

func TestSessionCreateRejectsConflictWithDetails(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-2", LabID: "lab-1", StartsAt: start, DurationMinutes: 60, Active: true},
	}}
	svc := newSessionService(repo)

	_, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID: "class-1", Title: "Midterm prep", StartsAt: start.Add(30 * time.Minute), DurationMinutes: 60,
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrScheduleConflict.Code, appErr.Code)
	require.NotNil(t, appErr.Details)
	details, ok := appErr.Details.(*models.SessionConflictResult)
	require.True(t, ok)
	assert.True(t, details.HasConflicts)
	assert.Nil(t, repo.created)
}

func TestSessionCreateDerivesLabFromClass(t *testing.T) {
	repo := &mockSessionRepo{}
	svc := newSessionService(repo)

	session, err := svc.Create(context.Background(), CreateSessionRequest{
		ClassID: "class-1", Title: "Intro lab", StartsAt: time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC), DurationMinutes: 90,
	})
	require.NoError(t, err)
	assert.Equal(t, "lab-1", session.LabID)
	assert.True(t, session.Active)
}

func TestSessionUpdateSkipsCheckWhenWindowUnchanged(t *testing.T) {
	start := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	repo := &mockSessionRepo{sessions: []models.LabSession{
		{ID: "ses-1", ClassID: "class-1", LabID: "lab-1", Title: "Old", StartsAt: start, DurationMinutes: 60, Active: true},
	}}
	svc := newSessionService(repo)

	session, err := svc.Update(context.Background(), "ses-1", UpdateSessionRequest{
		Title: "Renamed", StartsAt: start, DurationMinutes: 60,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", session.Title)
	assert.Equal(t, 0, repo.dateCalls)
}
