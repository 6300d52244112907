package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wigshare/wigshare-api/internal/models"
)

// DonationRepository finalizes and reverts donations. Both operations
// are single transactions: a failure between the donation write and the
// wig flip must leave neither applied.
type DonationRepository struct {
	db *sqlx.DB
}

// NewDonationRepository constructs the repository.
func NewDonationRepository(db *sqlx.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

// Create runs the donate check chain and, on success, inserts the
// donation, deactivates the wig and completes the request in one
// transaction. The checks run in order against locked rows; each failure
// maps to a distinct sentinel so the caller can say which precondition
// broke.
func (r *DonationRepository) Create(ctx context.Context, donation *models.Donation) (err error) {
	if donation.CreatedAt.IsZero() {
		donation.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin donate transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var wig models.Wig
	const lockWig = `SELECT id, institution_id, available, hair_type, color, length, size, created_at
	FROM wigs WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &wig, lockWig, donation.WigID); err != nil {
		return err
	}
	if wig.InstitutionID != donation.InstitutionID {
		err = ErrWigNotOwned
		return err
	}

	// A wig is donated at most once; the unique index on wig_id backs
	// this check for writers that raced past it. The check runs before
	// the availability one so a second donate of the same wig reports
	// the duplicate, not a generic unavailability.
	var donated bool
	if err = tx.GetContext(ctx, &donated, `SELECT EXISTS (SELECT 1 FROM donations WHERE wig_id = $1)`, donation.WigID); err != nil {
		return fmt.Errorf("check existing donation: %w", err)
	}
	if donated {
		err = ErrWigAlreadyDonated
		return err
	}
	if !wig.Available {
		err = ErrWigUnavailable
		return err
	}

	var requestStatus models.Status
	const lockRequest = `SELECT status FROM requests WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &requestStatus, lockRequest, donation.RequestID); err != nil {
		return err
	}
	if requestStatus != models.StatusApproved {
		err = ErrRequestNotApproved
		return err
	}

	const insert = `INSERT INTO donations (wig_id, request_id, institution_id, note, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	if err = tx.QueryRowxContext(ctx, insert,
		donation.WigID, donation.RequestID, donation.InstitutionID, donation.Note, donation.CreatedAt,
	).Scan(&donation.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			err = ErrWigAlreadyDonated
			return err
		}
		return fmt.Errorf("insert donation: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `UPDATE wigs SET available = FALSE WHERE id = $1`, donation.WigID); err != nil {
		return fmt.Errorf("deactivate wig: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3`,
		models.StatusCompleted, donation.CreatedAt, donation.RequestID); err != nil {
		return fmt.Errorf("complete request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit donation: %w", err)
	}
	return nil
}

// GetByID fetches a donation by identifier.
func (r *DonationRepository) GetByID(ctx context.Context, id int64) (*models.Donation, error) {
	const query = `SELECT id, wig_id, request_id, institution_id, note, created_at
	FROM donations WHERE id = $1`
	var donation models.Donation
	if err := r.db.GetContext(ctx, &donation, query, id); err != nil {
		return nil, err
	}
	return &donation, nil
}

// List returns donations matching the filter with a total count.
func (r *DonationRepository) List(ctx context.Context, filter models.DonationFilter) ([]models.Donation, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.InstitutionID != "" {
		args = append(args, filter.InstitutionID)
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	if filter.RequestID > 0 {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM donations"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count donations: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}

	query := `SELECT id, wig_id, request_id, institution_id, note, created_at
	FROM donations` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var donations []models.Donation
	if err := r.db.SelectContext(ctx, &donations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}
	return donations, total, nil
}

// Revert undoes a recent donation: the donation row is removed, the wig
// becomes available again and the request returns to APPROVED, all in
// one transaction. Past the window the donation is final.
func (r *DonationRepository) Revert(ctx context.Context, id int64, institutionID string, window time.Duration, now time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin revert transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var donation models.Donation
	const lock = `SELECT id, wig_id, request_id, institution_id, note, created_at
	FROM donations WHERE id = $1 FOR UPDATE`
	if err = tx.GetContext(ctx, &donation, lock, id); err != nil {
		return err
	}
	if donation.InstitutionID != institutionID {
		err = ErrDonationNotOwned
		return err
	}
	if now.Sub(donation.CreatedAt) > window {
		err = ErrRevertWindowClosed
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM donations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete donation: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE wigs SET available = TRUE WHERE id = $1`, donation.WigID); err != nil {
		return fmt.Errorf("restore wig: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `UPDATE requests SET status = $1, updated_at = $2 WHERE id = $3`,
		models.StatusApproved, now, donation.RequestID); err != nil {
		return fmt.Errorf("restore request: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit revert: %w", err)
	}
	return nil
}
