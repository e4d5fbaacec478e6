package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newGroupRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestGroupRepositoryListClaimedComputerIDs(t *testing.T) {
	db, mock, cleanup := newGroupRepoMock(t)
	defer cleanup()
	repo := NewGroupRepository(db)

	rows := sqlmock.NewRows([]string{"computer_id"}).
		AddRow("pc-1").
		AddRow("pc-2")
	mock.ExpectQuery(regexp.QuoteMeta("JOIN classes c ON c.id = g.class_id")).
		WithArgs("lab-1").
		WillReturnRows(rows)

	ids, err := repo.ListClaimedComputerIDs(context.Background(), "lab-1")
	require.NoError(t, err)
	require.Equal(t, []string{"pc-1", "pc-2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
