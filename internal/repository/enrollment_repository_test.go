package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/labsphere/labsphere-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryExistsActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3 LIMIT 1")).
		WithArgs("stu-1", "class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryExistsActiveNoRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM enrollments")).
		WithArgs("stu-1", "class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	exists, err := repo.ExistsActive(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestEnrollmentRepositoryListActiveByClass(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "class_id", "group_id", "seat_label", "joined_at", "left_at", "status"}).
		AddRow("enr-1", "stu-1", "class-1", nil, "S01", time.Now(), nil, models.EnrollmentStatusActive)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, class_id, group_id, seat_label, joined_at, left_at, status FROM enrollments WHERE class_id = $1 AND status = $2 ORDER BY joined_at ASC")).
		WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(rows)

	enrollments, err := repo.ListActiveByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	require.Equal(t, "S01", enrollments[0].SeatLabel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryBulkSetGroupReportsAffectedRows(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET group_id = ? WHERE class_id = ? AND student_id IN (?, ?) AND status = ? AND group_id IS NULL")).
		WithArgs("grp-1", "class-1", "stu-1", "stu-2", models.EnrollmentStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := db.Beginx()
	require.NoError(t, err)

	affected, err := repo.BulkSetGroupWithTx(context.Background(), tx, "class-1", "grp-1", []string{"stu-1", "stu-2"})
	require.NoError(t, err)
	// One of the two rows was claimed concurrently; the caller sees the
	// short count and aborts.
	require.Equal(t, int64(1), affected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryBulkSetGroupRequiresTx(t *testing.T) {
	db, _, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	_, err := repo.BulkSetGroupWithTx(context.Background(), nil, "class-1", "grp-1", []string{"stu-1"})
	require.Error(t, err)
}

func TestEnrollmentRepositoryWithdraw(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	leftAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollments SET status = $2, left_at = $3, group_id = NULL WHERE id = $1")).
		WithArgs("enr-1", models.EnrollmentStatusLeft, leftAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Withdraw(context.Background(), "enr-1", leftAt))
	require.NoError(t, mock.ExpectationsWereMet())
}
