package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/wigshare/wigshare-api/internal/models"
)

func newDonationRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func wigRows(institutionID string, available bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "institution_id", "available", "hair_type", "color", "length", "size", "created_at"}).
		AddRow(int64(2), institutionID, available, "human", "black", "long", "M", time.Now())
}

func TestDonationRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("APPROVED"))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO donations")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wigs SET available = FALSE")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs(models.StatusCompleted, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	donation := &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"}
	require.NoError(t, repo.Create(context.Background(), donation))
	require.Equal(t, int64(1), donation.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryCreateWigNotOwned(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-2", true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"})
	require.ErrorIs(t, err, ErrWigNotOwned)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryCreateWigUnavailable(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-1", false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"})
	require.ErrorIs(t, err, ErrWigUnavailable)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A completed donate leaves the wig unavailable, so a second donate of
// the same wig must still surface the duplicate, not unavailability.
func TestDonationRepositoryCreateSecondDonate(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-1", false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"})
	require.ErrorIs(t, err, ErrWigAlreadyDonated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryCreateAlreadyDonated(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"})
	require.ErrorIs(t, err, ErrWigAlreadyDonated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryCreateRequestNotApproved(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM wigs WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(2)).
		WillReturnRows(wigRows("inst-1", true))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)")).
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("UNDER_REVIEW"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Donation{WigID: 2, RequestID: 5, InstitutionID: "inst-1"})
	require.ErrorIs(t, err, ErrRequestNotApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryRevert(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wig_id", "request_id", "institution_id", "note", "created_at"}).
			AddRow(int64(1), int64(2), int64(5), "inst-1", "", now.Add(-time.Hour)))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM donations")).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE wigs SET available = TRUE")).
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs(models.StatusApproved, now, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Revert(context.Background(), 1, "inst-1", 24*time.Hour, now))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryRevertWindowClosed(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wig_id", "request_id", "institution_id", "note", "created_at"}).
			AddRow(int64(1), int64(2), int64(5), "inst-1", "", now.Add(-48*time.Hour)))
	mock.ExpectRollback()

	err := repo.Revert(context.Background(), 1, "inst-1", 24*time.Hour, now)
	require.ErrorIs(t, err, ErrRevertWindowClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDonationRepositoryRevertNotOwned(t *testing.T) {
	db, mock, cleanup := newDonationRepoMock(t)
	defer cleanup()

	repo := NewDonationRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM donations WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "wig_id", "request_id", "institution_id", "note", "created_at"}).
			AddRow(int64(1), int64(2), int64(5), "inst-2", "", now))
	mock.ExpectRollback()

	err := repo.Revert(context.Background(), 1, "inst-1", 24*time.Hour, now)
	require.ErrorIs(t, err, ErrDonationNotOwned)
	require.NoError(t, mock.ExpectationsWereMet())
}
