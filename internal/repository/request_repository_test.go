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

func newRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO requests")).
		WithArgs("user-1", "for my daughter", "requests/abc/evidence.pdf", models.StatusPending, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	request := &models.Request{
		RequesterID: "user-1",
		Note:        "for my daughter",
		EvidenceRef: "requests/abc/evidence.pdf",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.Equal(t, int64(7), request.ID)

	rows := sqlmock.NewRows([]string{"id", "requester_id", "note", "evidence_ref", "status", "created_at", "updated_at"}).
		AddRow(int64(7), "user-1", "for my daughter", "requests/abc/evidence.pdf", "PENDING", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester_id, note")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(7), found.ID)
	require.Equal(t, models.StatusPending, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs(models.StatusApproved, "", now, int64(7), models.StatusPending, models.StatusUnderReview).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), 7, models.StatusApproved, "", now))

	// The row moved to a final status between the caller's read and this
	// write; the guard must refuse to overwrite it.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs(models.StatusApproved, "", now, int64(7), models.StatusPending, models.StatusUnderReview).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), 7, models.StatusApproved, "", now)
	require.ErrorIs(t, err, ErrRequestNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCancelCascades(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("UNDER_REVIEW"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE requests SET status")).
		WithArgs(models.StatusCancelledByRequester, now, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE request_analyses")).
		WithArgs(models.StatusCancelledByRequester, "[cancelled by requester]", now, int64(7),
			models.StatusPending, models.StatusUnderReview).
		WillReturnRows(sqlmock.NewRows([]string{"id", "institution_id"}).
			AddRow(int64(11), "inst-1").
			AddRow(int64(12), "inst-2"))
	mock.ExpectCommit()

	refs, err := repo.Cancel(context.Background(), 7, "[cancelled by requester]", now)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	require.Equal(t, "inst-1", refs[0].InstitutionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryCancelTerminal(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("COMPLETED"))
	mock.ExpectRollback()

	_, err := repo.Cancel(context.Background(), 7, "", time.Now())
	require.ErrorIs(t, err, ErrRequestNotOpen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(int64(7), models.StatusApproved, models.StatusRejected).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM request_analyses")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM requests")).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryDeleteDecided(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM requests WHERE id = $1 FOR UPDATE")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("UNDER_REVIEW"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs(int64(7), models.StatusApproved, models.StatusRejected).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), 7)
	require.ErrorIs(t, err, ErrRequestDecided)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListPagination(t *testing.T) {
	db, mock, cleanup := newRequestRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM requests")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	rows := sqlmock.NewRows([]string{"id", "requester_id", "note", "evidence_ref", "status", "created_at", "updated_at"}).
		AddRow(int64(7), "user-1", "", "requests/abc/evidence.pdf", "PENDING", time.Now(), nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, requester_id, note")).
		WithArgs("user-1").
		WillReturnRows(rows)

	requests, total, err := repo.List(context.Background(), models.RequestFilter{RequesterID: "user-1", Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, requests, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
