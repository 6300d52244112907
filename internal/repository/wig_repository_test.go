package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wigshare/wigshare-api/internal/models"
)

func newWigRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestWigRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newWigRepoMock(t)
	defer cleanup()

	repo := NewWigRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO wigs")).
		WithArgs("inst-1", true, "human", "black", "long", "M", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	wig := &models.Wig{InstitutionID: "inst-1", HairType: "human", Color: "black", Length: "long", Size: "M"}
	require.NoError(t, repo.Create(context.Background(), wig))
	require.Equal(t, int64(2), wig.ID)
	require.True(t, wig.Available)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWigRepositoryListAvailableOnly(t *testing.T) {
	db, mock, cleanup := newWigRepoMock(t)
	defer cleanup()

	repo := NewWigRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM wigs")).
		WithArgs(true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows([]string{"id", "institution_id", "available", "hair_type", "color", "length", "size", "created_at"}).
		AddRow(int64(2), "inst-1", true, "human", "black", "long", "M", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, institution_id, available")).
		WithArgs(true).
		WillReturnRows(rows)

	available := true
	wigs, total, err := repo.List(context.Background(), models.WigFilter{Available: &available})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, wigs, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWigRepositoryDeleteDonatedWigKept(t *testing.T) {
	db, mock, cleanup := newWigRepoMock(t)
	defer cleanup()

	repo := NewWigRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM wigs WHERE id = $1 AND available = TRUE")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), 2)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
