package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/wigshare/wigshare-api/internal/models"
)

const pqUniqueViolation = "23505"
const pqForeignKeyViolation = "23503"

// AnalysisRepository persists per-institution reviews of wig requests.
type AnalysisRepository struct {
	db *sqlx.DB
}

// NewAnalysisRepository constructs the repository.
func NewAnalysisRepository(db *sqlx.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create inserts a new analysis. The unique index on
// (request_id, institution_id) resolves concurrent claims: the losing
// writer gets ErrDuplicateAnalysis, never a silent overwrite.
func (r *AnalysisRepository) Create(ctx context.Context, analysis *models.InstitutionAnalysis) error {
	if analysis.Status == "" {
		analysis.Status = models.StatusPending
	}
	if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_analyses (request_id, institution_id, status, notes, created_at)
	VALUES ($1, $2, $3, $4, $5) RETURNING id`
	err := r.db.QueryRowxContext(ctx, query,
		analysis.RequestID, analysis.InstitutionID, analysis.Status, analysis.Notes, analysis.CreatedAt,
	).Scan(&analysis.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code {
			case pqUniqueViolation:
				return ErrDuplicateAnalysis
			case pqForeignKeyViolation:
				return sql.ErrNoRows
			}
		}
		return fmt.Errorf("create analysis: %w", err)
	}
	return nil
}

// GetByID fetches an analysis by identifier.
func (r *AnalysisRepository) GetByID(ctx context.Context, id int64) (*models.InstitutionAnalysis, error) {
	const query = `SELECT id, request_id, institution_id, status, notes, created_at, updated_at
	FROM request_analyses WHERE id = $1`
	var analysis models.InstitutionAnalysis
	if err := r.db.GetContext(ctx, &analysis, query, id); err != nil {
		return nil, err
	}
	return &analysis, nil
}

// List returns analyses matching the filter, newest first.
func (r *AnalysisRepository) List(ctx context.Context, filter models.AnalysisFilter) ([]models.InstitutionAnalysis, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0, 4)

	if filter.RequestID > 0 {
		args = append(args, filter.RequestID)
		conditions = append(conditions, fmt.Sprintf("request_id = $%d", len(args)))
	}
	if filter.InstitutionID != "" {
		args = append(args, filter.InstitutionID)
		conditions = append(conditions, fmt.Sprintf("institution_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := `SELECT id, request_id, institution_id, status, notes, created_at, updated_at
	FROM request_analyses`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	var analyses []models.InstitutionAnalysis
	if err := r.db.SelectContext(ctx, &analyses, query, args...); err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	return analyses, nil
}

// UpdateStatus transitions an analysis from an expected current status.
// The WHERE guard makes the write conditional: if a concurrent writer
// moved the row first, zero rows match and sql.ErrNoRows is returned so
// the caller can re-read and report the violation.
func (r *AnalysisRepository) UpdateStatus(ctx context.Context, id int64, from, to models.Status, notes string, now time.Time) error {
	const query = `UPDATE request_analyses
	SET status = $1, notes = $2, updated_at = $3
	WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, to, notes, now, id, from)
	if err != nil {
		return fmt.Errorf("update analysis status: %w", err)
	}
	return requireRow(result)
}

// Delete withdraws an analysis that never left PENDING. The status guard
// lives in the query so a review that started concurrently cannot be
// withdrawn.
func (r *AnalysisRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM request_analyses WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, models.StatusPending)
	if err != nil {
		return fmt.Errorf("delete analysis: %w", err)
	}
	return requireRow(result)
}

// CountByStatus buckets a request's analyses by status.
func (r *AnalysisRepository) CountByStatus(ctx context.Context, requestID int64) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS count
	FROM request_analyses WHERE request_id = $1 GROUP BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query, requestID); err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	return counts, nil
}
