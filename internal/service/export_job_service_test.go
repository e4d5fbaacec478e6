package service

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labsphere/labsphere-api/internal/models"
	"github.com/labsphere/labsphere-api/internal/repository"
	appErrors "github.com/labsphere/labsphere-api/pkg/errors"
	"github.com/labsphere/labsphere-api/pkg/jobs"
	"github.com/labsphere/labsphere-api/pkg/storage"
)

type mockExportJobStore struct {
	jobs    map[string]*models.ExportJob
	created []*models.ExportJob
}

func (m *mockExportJobStore) Create(_ context.Context, job *models.ExportJob) error {
	if job.ID == "" {
		job.ID = "job-1"
	}
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ExportJob)
	}
	m.jobs[job.ID] = job
	m.created = append(m.created, job)
	return nil
}

func (m *mockExportJobStore) FindByID(_ context.Context, id string) (*models.ExportJob, error) {
	if job, ok := m.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockExportJobStore) Update(_ context.Context, id string, params repository.UpdateExportJobParams) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockExportJobStore) ListQueued(_ context.Context, _ int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *mockExportJobStore) ListFinishedBefore(_ context.Context, cutoff time.Time, _ int) ([]models.ExportJob, error) {
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type fakeDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (f *fakeDispatcher) Enqueue(job jobs.Job) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, job)
	return nil
}

func newStoredExportService(t *testing.T) *ExportService {
	t.Helper()
	fileStore, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewDownloadSigner("test-secret", time.Hour)

	roster := &mockRosterReader{details: []models.EnrollmentDetail{
		{
			Enrollment:   models.Enrollment{ID: "e1", StudentID: "stu-1", ClassID: "class-1", SeatLabel: "S01", JoinedAt: time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)},
			StudentName:  "Ada Example",
			StudentEmail: "ada@example.edu",
		},
	}}
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Networking 101", Code: "NET101", LabID: "lab-1"},
	}}
	return NewExportService(roster, &mockTimetableReader{}, classes, fileStore, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop())
}

func newExportJobFixture(t *testing.T) (*ExportJobService, *ExportWorker, *mockExportJobStore) {
	t.Helper()
	store := &mockExportJobStore{jobs: make(map[string]*models.ExportJob)}
	exporter := newStoredExportService(t)
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Networking 101", Code: "NET101", LabID: "lab-1"},
	}}
	dispatcher := &fakeDispatcher{}
	svc := NewExportJobService(store, classes, dispatcher, exporter, ExportJobConfig{}, nil, zap.NewNop())
	worker := NewExportWorker(store, exporter, 3, zap.NewNop())
	return svc, worker, store
}

func TestExportJobService_CreateJobEnqueues(t *testing.T) {
	store := &mockExportJobStore{jobs: make(map[string]*models.ExportJob)}
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Code: "NET101", LabID: "lab-1"},
	}}
	dispatcher := &fakeDispatcher{}
	svc := NewExportJobService(store, classes, dispatcher, newStoredExportService(t), ExportJobConfig{}, nil, zap.NewNop())

	job, err := svc.CreateJob(context.Background(), ExportJobRequest{
		ClassID: "class-1",
		Kind:    "ROSTER",
		Format:  "csv",
	}, "inst-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	assert.Equal(t, "inst-1", job.CreatedBy)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, job.ID, dispatcher.enqueued[0].ID)
}

func TestExportJobService_CreateJobUnknownClass(t *testing.T) {
	svc, _, store := newExportJobFixture(t)

	_, err := svc.CreateJob(context.Background(), ExportJobRequest{
		ClassID: "class-missing",
		Kind:    "ROSTER",
		Format:  "csv",
	}, "inst-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, store.created)
}

func TestExportJobService_CreateJobRejectsBadKind(t *testing.T) {
	svc, _, _ := newExportJobFixture(t)

	_, err := svc.CreateJob(context.Background(), ExportJobRequest{
		ClassID: "class-1",
		Kind:    "GRADES",
		Format:  "csv",
	}, "inst-1")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestExportWorker_FinishesJobWithSignedURL(t *testing.T) {
	_, worker, store := newExportJobFixture(t)
	store.jobs["job-1"] = &models.ExportJob{
		ID:      "job-1",
		Kind:    models.ExportKindRoster,
		ClassID: "class-1",
		Format:  "csv",
		Status:  models.ExportStatusQueued,
	}

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "ROSTER"})
	require.NoError(t, err)

	job := store.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFinished, job.Status)
	require.NotNil(t, job.ResultURL)
	assert.Contains(t, *job.ResultURL, "/api/v1/exports/download/")
	require.NotNil(t, job.FinishedAt)
}

func TestExportWorker_FinalFailureMarksJobFailed(t *testing.T) {
	_, worker, store := newExportJobFixture(t)
	store.jobs["job-1"] = &models.ExportJob{
		ID:      "job-1",
		Kind:    models.ExportKindRoster,
		ClassID: "class-missing",
		Format:  "csv",
		Status:  models.ExportStatusQueued,
	}

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 3})
	require.Error(t, err)

	job := store.jobs["job-1"]
	assert.Equal(t, models.ExportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
}

func TestExportWorker_EarlyFailureRequeues(t *testing.T) {
	_, worker, store := newExportJobFixture(t)
	store.jobs["job-1"] = &models.ExportJob{
		ID:      "job-1",
		Kind:    models.ExportKindRoster,
		ClassID: "class-missing",
		Format:  "csv",
		Status:  models.ExportStatusQueued,
	}

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 0})
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, store.jobs["job-1"].Status)
}

func TestExportJobService_DownloadRoundTrip(t *testing.T) {
	svc, worker, store := newExportJobFixture(t)
	store.jobs["job-1"] = &models.ExportJob{
		ID:      "job-1",
		Kind:    models.ExportKindRoster,
		ClassID: "class-1",
		Format:  "csv",
		Status:  models.ExportStatusQueued,
	}
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: "job-1"}))

	url := *store.jobs["job-1"].ResultURL
	token := url[len("/api/v1/exports/download/"):]

	download, err := svc.ResolveDownload(context.Background(), token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "roster-NET101.csv", download.Filename)
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Ada Example")
}

func TestExportJobService_DownloadRejectsForgedToken(t *testing.T) {
	svc, _, _ := newExportJobFixture(t)

	_, err := svc.ResolveDownload(context.Background(), "job-1.123.abc.def")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestExportJobService_StatusHidesForeignJobs(t *testing.T) {
	svc, _, store := newExportJobFixture(t)
	store.jobs["job-1"] = &models.ExportJob{
		ID:        "job-1",
		Kind:      models.ExportKindRoster,
		ClassID:   "class-1",
		Format:    "csv",
		Status:    models.ExportStatusQueued,
		CreatedBy: "inst-1",
	}

	_, err := svc.GetStatus(context.Background(), "job-1", "inst-2", models.RoleInstructor)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)

	job, err := svc.GetStatus(context.Background(), "job-1", "admin-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
}
