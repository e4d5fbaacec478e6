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

type mockSubmissionRepo struct {
	submissions map[string]*models.Submission
	grades      map[string]*models.Grade
	created     []*models.Submission
	updated     map[string]string
}

func (m *mockSubmissionRepo) ListByAssignment(_ context.Context, assignmentID string) ([]models.SubmissionDetail, error) {
	var out []models.SubmissionDetail
	for _, sub := range m.submissions {
		if sub.AssignmentID == assignmentID {
			out = append(out, models.SubmissionDetail{Submission: *sub})
		}
	}
	return out, nil
}

func (m *mockSubmissionRepo) FindByID(_ context.Context, id string) (*models.Submission, error) {
	if sub, ok := m.submissions[id]; ok {
		return sub, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) FindByAssignmentAndStudent(_ context.Context, assignmentID, studentID string) (*models.Submission, error) {
	for _, sub := range m.submissions {
		if sub.AssignmentID == assignmentID && sub.StudentID == studentID {
			return sub, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) Create(_ context.Context, submission *models.Submission) error {
	submission.ID = "sub-new"
	m.created = append(m.created, submission)
	if m.submissions == nil {
		m.submissions = make(map[string]*models.Submission)
	}
	m.submissions[submission.ID] = submission
	return nil
}

func (m *mockSubmissionRepo) UpdateContent(_ context.Context, id, content string) error {
	if m.updated == nil {
		m.updated = make(map[string]string)
	}
	m.updated[id] = content
	return nil
}

func (m *mockSubmissionRepo) FindGradeBySubmission(_ context.Context, submissionID string) (*models.Grade, error) {
	if grade, ok := m.grades[submissionID]; ok {
		return grade, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubmissionRepo) UpsertGrade(_ context.Context, grade *models.Grade) error {
	if m.grades == nil {
		m.grades = make(map[string]*models.Grade)
	}
	m.grades[grade.SubmissionID] = grade
	return nil
}

type mockAssignmentReader struct {
	assignments map[string]*models.Assignment
}

func (m *mockAssignmentReader) FindByID(_ context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type mockEnrollmentChecker struct {
	active map[string]bool
}

func (m *mockEnrollmentChecker) ExistsActive(_ context.Context, studentID, classID string) (bool, error) {
	return m.active[studentID+":"+classID], nil
}

func newSubmissionFixture(dueAt *time.Time) (*SubmissionService, *mockSubmissionRepo) {
	repo := &mockSubmissionRepo{submissions: make(map[string]*models.Submission)}
	assignments := &mockAssignmentReader{assignments: map[string]*models.Assignment{
		"asg-1": {ID: "asg-1", ClassID: "class-1", Title: "Subnetting worksheet", DueAt: dueAt, MaxScore: 100},
	}}
	enrollments := &mockEnrollmentChecker{active: map[string]bool{"stu-1:class-1": true}}
	svc := NewSubmissionService(repo, assignments, enrollments, nil, zap.NewNop())
	return svc, repo
}

func TestSubmissionService_SubmitCreatesSubmission(t *testing.T) {
	svc, repo := newSubmissionFixture(nil)

	sub, err := svc.Submit(context.Background(), "stu-1", SubmitRequest{
		AssignmentID: "asg-1",
		Content:      "192.168.0.0/26 has 62 usable hosts",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "stu-1", sub.StudentID)
	assert.Equal(t, "asg-1", sub.AssignmentID)
}

func TestSubmissionService_ResubmitReplacesContent(t *testing.T) {
	svc, repo := newSubmissionFixture(nil)
	repo.submissions["sub-1"] = &models.Submission{
		ID:           "sub-1",
		AssignmentID: "asg-1",
		StudentID:    "stu-1",
		Content:      "first draft",
	}

	sub, err := svc.Submit(context.Background(), "stu-1", SubmitRequest{
		AssignmentID: "asg-1",
		Content:      "final answer",
	})
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "final answer", repo.updated["sub-1"])
	assert.Empty(t, repo.created)
}

func TestSubmissionService_SubmitRejectsPastDeadline(t *testing.T) {
	due := time.Now().UTC().Add(-time.Hour)
	svc, repo := newSubmissionFixture(&due)

	_, err := svc.Submit(context.Background(), "stu-1", SubmitRequest{
		AssignmentID: "asg-1",
		Content:      "too late",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErr.Code)
	assert.Empty(t, repo.created)
}

func TestSubmissionService_SubmitRequiresActiveEnrollment(t *testing.T) {
	svc, _ := newSubmissionFixture(nil)

	_, err := svc.Submit(context.Background(), "stu-2", SubmitRequest{
		AssignmentID: "asg-1",
		Content:      "not my class",
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestSubmissionService_GradeRecordsScore(t *testing.T) {
	svc, repo := newSubmissionFixture(nil)
	repo.submissions["sub-1"] = &models.Submission{ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1"}

	grade, err := svc.Grade(context.Background(), "sub-1", "inst-1", GradeRequest{
		Score:    87.5,
		Feedback: "solid work",
	})
	require.NoError(t, err)
	assert.Equal(t, 87.5, grade.Score)
	assert.Equal(t, "inst-1", grade.GraderID)
	require.NotNil(t, repo.grades["sub-1"])
}

func TestSubmissionService_GradeRejectsScoreAboveMax(t *testing.T) {
	svc, repo := newSubmissionFixture(nil)
	repo.submissions["sub-1"] = &models.Submission{ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1"}

	_, err := svc.Grade(context.Background(), "sub-1", "inst-1", GradeRequest{Score: 120})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Nil(t, repo.grades["sub-1"])
}

func TestSubmissionService_RegradeOverwritesPrior(t *testing.T) {
	svc, repo := newSubmissionFixture(nil)
	repo.submissions["sub-1"] = &models.Submission{ID: "sub-1", AssignmentID: "asg-1", StudentID: "stu-1"}

	_, err := svc.Grade(context.Background(), "sub-1", "inst-1", GradeRequest{Score: 60})
	require.NoError(t, err)
	_, err = svc.Grade(context.Background(), "sub-1", "inst-1", GradeRequest{Score: 75, Feedback: "regraded"})
	require.NoError(t, err)

	grade, err := svc.GetGrade(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, grade.Score)
	assert.Equal(t, "regraded", grade.Feedback)
}

func TestSubmissionService_GetGradeNotFound(t *testing.T) {
	svc, _ := newSubmissionFixture(nil)

	_, err := svc.GetGrade(context.Background(), "sub-missing")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
