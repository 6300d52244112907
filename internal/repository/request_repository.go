package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wigshare/wigshare-api/internal/models"
)

// RequestRepository persists wig requests and owns the cancellation
// cascade transaction.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new request row and fills in the generated id.
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	if request.Status == "" {
		request.Status = models.StatusPending
	}
	if request.CreatedAt.IsZero() {
		request.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO requests (requester_id, note, evidence_ref, status, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		request.RequesterID, request.Note, request.EvidenceRef, request.Status, request.CreatedAt,
	).Scan(&request.ID); err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	const query = `SELECT id, requester_id, note, evidence_ref, status, created_at, updated_at
	FROM requests WHERE id = $1`
	var request models.Request
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests matching the filter with a total count.
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 4)

	if filter.RequesterID != "" {
		args = append(args, filter.RequesterID)
		conditions = append(conditions, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count requests: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}

	query := `SELECT id, requester_id, note, evidence_ref, status, created_at, updated_at
	FROM requests` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var requests []models.Request
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list requests: %w", err)
	}
	return requests, total, nil
}

// UpdateNote replaces the requester note.
func (r *RequestRepository) UpdateNote(ctx context.Context, id int64, note string, now time.Time) error {
	const query = `UPDATE requests SET note = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, note, now, id)
	if err != nil {
		return fmt.Errorf("update request note: %w", err)
	}
	return requireRow(result)
}

// UpdateStatus sets the overall status directly (legacy single-institution
// path). The WHERE guard only matches still-open rows, so a request that
// reached a final status between the caller's read and this write stays
// frozen instead of being overwritten.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id int64, status models.Status, note string, now time.Time) error {
	const query = `UPDATE requests SET status = $1, note = CASE WHEN $2 <> '' THEN $2 ELSE note END, updated_at = $3
	WHERE id = $4 AND status IN ($5, $6)`
	result, err := r.db.ExecContext(ctx, query, status, note, now, id, models.StatusPending, models.StatusUnderReview)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrRequestNotOpen
	}
	return nil
}

// Cancel marks the request cancelled and forces every still-open analysis
// into CANCELLED_BY_REQUESTER within the same transaction. No reader may
// observe the request cancelled while an analysis is still open.
// The refs of cascade-cancelled analyses are returned for notification
// fan-out.
func (r *RequestRepository) Cancel(ctx context.Context, id int64, systemNote string, now time.Time) (refs []models.CancelledAnalysisRef, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Status
	const lockQuery = `SELECT status FROM requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		return nil, err
	}
	if current.IsTerminal() {
		err = ErrRequestNotOpen
		return nil, err
	}

	const updateRequest = `UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err = tx.ExecContext(ctx, updateRequest, models.StatusCancelledByRequester, now, id); err != nil {
		return nil, fmt.Errorf("cancel request: %w", err)
	}

	const cascade = `UPDATE request_analyses
	SET status = $1, notes = TRIM(notes || ' ' || $2), updated_at = $3
	WHERE request_id = $4 AND status IN ($5, $6)
	RETURNING id, institution_id`
	if err = tx.SelectContext(ctx, &refs, cascade,
		models.StatusCancelledByRequester, systemNote, now, id,
		models.StatusPending, models.StatusUnderReview,
	); err != nil {
		return nil, fmt.Errorf("cascade analyses: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	return refs, nil
}

// Delete removes a request while it is still open and undecided. Open
// analyses are removed with it; once any analysis reached a review
// outcome the request must be cancelled instead, preserving the audit
// trail.
func (r *RequestRepository) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Status
	const lockQuery = `SELECT status FROM requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &current, lockQuery, id); err != nil {
		return err
	}
	if current != models.StatusPending && current != models.StatusUnderReview {
		err = ErrRequestNotOpen
		return err
	}

	var decided bool
	const decidedQuery = `SELECT EXISTS (
	SELECT 1 FROM request_analyses WHERE request_id = $1 AND status IN ($2, $3))`
	if err = tx.GetContext(ctx, &decided, decidedQuery, id, models.StatusApproved, models.StatusRejected); err != nil {
		return fmt.Errorf("check decided analyses: %w", err)
	}
	if decided {
		err = ErrRequestDecided
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM request_analyses WHERE request_id = $1`, id); err != nil {
		return fmt.Errorf("delete analyses: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM requests WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check affected rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
