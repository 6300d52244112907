package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wigshare/wigshare-api/internal/models"
)

// WigRepository persists the wig catalog. The availability flag is only
// ever flipped by the donation transaction, never here.
type WigRepository struct {
	db *sqlx.DB
}

// NewWigRepository constructs the repository.
func NewWigRepository(db *sqlx.DB) *WigRepository {
	return &WigRepository{db: db}
}

// Create registers a wig as available.
func (r *WigRepository) Create(ctx context.Context, wig *models.Wig) error {
	if wig.CreatedAt.IsZero() {
		wig.CreatedAt = time.Now().UTC()
	}
	wig.Available = true
	const query = `INSERT INTO wigs (institution_id, available, hair_type, color, length, size, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query,
		wig.InstitutionID, wig.Available, wig.HairType, wig.Color, wig.Length, wig.Size, wig.CreatedAt,
	).Scan(&wig.ID); err != nil {
		return fmt.Errorf("create wig: %w", err)
	}
	return nil
}

// GetByID fetches a wig by identifier.
func (r *WigRepository) GetByID(ctx context.Context, id int64) (*models.Wig, error) {
	const query = `SELECT id, institution_id, available, hair_type, color, length, size, created_at
	FROM wigs WHERE id = $1`
	var wig models.Wig
	if err := r.db.GetContext(ctx, &wig, query, id); err != nil {
		return nil, err
	}
	return &wig, nil
}

// List returns wigs matching the filter with a total count.
func (r *WigRepository) List(ctx context.Context, filter models.WigFilter) ([]models.Wig, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)

	if filter.InstitutionID != "" {
		args = append(args, filter.InstitutionID)
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		conditions = append(conditions, fmt.Sprintf("available = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM wigs"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count wigs: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}

	query := `SELECT id, institution_id, available, hair_type, color, length, size, created_at
	FROM wigs` + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", size, (page-1)*size)

	var wigs []models.Wig
	if err := r.db.SelectContext(ctx, &wigs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list wigs: %w", err)
	}
	return wigs, total, nil
}

// Update edits descriptive attributes of a wig.
func (r *WigRepository) Update(ctx context.Context, wig *models.Wig) error {
	const query = `UPDATE wigs SET hair_type = $1, color = $2, length = $3, size = $4 WHERE id = $5`
	result, err := r.db.ExecContext(ctx, query, wig.HairType, wig.Color, wig.Length, wig.Size, wig.ID)
	if err != nil {
		return fmt.Errorf("update wig: %w", err)
	}
	return requireRow(result)
}

// Delete removes a wig that was never donated. The availability guard in
// the query keeps donated wigs (and their donation rows) intact.
func (r *WigRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM wigs WHERE id = $1 AND available = TRUE`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete wig: %w", err)
	}
	return requireRow(result)
}
