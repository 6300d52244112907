package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/repository"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

type analysisRepository interface {
	Create(ctx context.Context, analysis *models.InstitutionAnalysis) error
	GetByID(ctx context.Context, id int64) (*models.InstitutionAnalysis, error)
	List(ctx context.Context, filter models.AnalysisFilter) ([]models.InstitutionAnalysis, error)
	UpdateStatus(ctx context.Context, id int64, from, to models.Status, notes string, now time.Time) error
	Delete(ctx context.Context, id int64) error
	CountByStatus(ctx context.Context, requestID int64) ([]models.StatusCount, error)
}

type requestReader interface {
	GetByID(ctx context.Context, id int64) (*models.Request, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// AnalysisService runs the per-institution review state machine:
// claiming, advancing, withdrawing and summarizing analyses.
type AnalysisService struct {
	repo      analysisRepository
	requests  requestReader
	audit     auditLogger
	notifier  Notifier
	cache     summaryCache
	cacheTTL  time.Duration
	metrics   workflowMetrics
	validator *validator.Validate
	logger    *zap.Logger
}

// AnalysisServiceOption configures the service.
type AnalysisServiceOption func(*AnalysisService)

// WithSummaryCache enables the optional Redis cache for Summarize.
// Counts may lag by the TTL; the aggregate is a UI convenience,
// eventually accurate.
func WithSummaryCache(cache summaryCache, ttl time.Duration) AnalysisServiceOption {
	return func(s *AnalysisService) {
		if cache != nil && ttl > 0 {
			s.cache = cache
			s.cacheTTL = ttl
		}
	}
}

// WithAnalysisMetrics attaches workflow counters.
func WithAnalysisMetrics(metrics workflowMetrics) AnalysisServiceOption {
	return func(s *AnalysisService) {
		s.metrics = metrics
	}
}

// NewAnalysisService constructs the service.
func NewAnalysisService(
	repo analysisRepository,
	requests requestReader,
	audit auditLogger,
	notifier Notifier,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...AnalysisServiceOption,
) *AnalysisService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	svc := &AnalysisService{
		repo:      repo,
		requests:  requests,
		audit:     audit,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Claim opts the calling institution into reviewing a request. First
// come wins: the unique index resolves concurrent claims and the loser
// receives a conflict.
func (s *AnalysisService) Claim(ctx context.Context, actor *models.JWTClaims, req dto.ClaimAnalysisRequest) (*models.InstitutionAnalysis, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleInstitution {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only institutions may claim a request for review")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid claim payload")
	}

	request, err := s.requests.GetByID(ctx, req.RequestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request is no longer open for review")
	}

	analysis := &models.InstitutionAnalysis{
		RequestID:     req.RequestID,
		InstitutionID: actor.UserID,
		Status:        models.StatusPending,
		Notes:         req.Notes,
	}
	if err := s.repo.Create(ctx, analysis); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateAnalysis):
			if s.metrics != nil {
				s.metrics.ObserveConflict("claim")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "institution already has an analysis for this request")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create analysis")
	}

	s.invalidate(ctx, req.RequestID)
	s.emitAudit(ctx, actor, models.AuditActionAnalysisClaim, analysis.ID, map[string]interface{}{"request_id": req.RequestID})
	if s.metrics != nil {
		s.metrics.ObserveTransition("analysis", models.StatusPending)
	}
	return analysis, nil
}

// Advance moves an analysis to a new status. Terminal analyses are
// frozen; COMPLETED and CANCELLED_BY_REQUESTER are reserved for the
// system and cannot be set here.
func (s *AnalysisService) Advance(ctx context.Context, analysisID int64, actor *models.JWTClaims, req dto.AdvanceAnalysisRequest) (*models.InstitutionAnalysis, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	newStatus := models.Status(req.Status)
	if !newStatus.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	analysis, err := s.load(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, analysis.InstitutionID) {
		return nil, appErrors.ErrForbidden
	}
	if analysis.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("analysis is already %s", analysis.Status.DisplayName()))
	}
	if !newStatus.IsInstitutionSettable() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("status %s cannot be set by an institution", newStatus.DisplayName()))
	}

	previous := analysis.Status
	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, analysisID, previous, newStatus, req.Notes, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent writer (another call, or the cancel cascade)
			// moved the row between our read and write.
			if s.metrics != nil {
				s.metrics.ObserveConflict("advance")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "analysis was modified concurrently; reload and retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update analysis")
	}

	analysis.Status = newStatus
	analysis.Notes = req.Notes
	analysis.UpdatedAt = &now

	if newStatus != previous {
		s.notifier.AnalysisStatusChanged(ctx, models.AnalysisStatusChangedEvent{
			AnalysisID:    analysisID,
			RequestID:     analysis.RequestID,
			InstitutionID: analysis.InstitutionID,
			NewStatus:     newStatus,
		})
	}
	s.invalidate(ctx, analysis.RequestID)
	s.emitAudit(ctx, actor, models.AuditActionAnalysisAdvance, analysisID, map[string]interface{}{
		"from": previous,
		"to":   newStatus,
	})
	if s.metrics != nil {
		s.metrics.ObserveTransition("analysis", newStatus)
	}
	return analysis, nil
}

// Withdraw removes an analysis that never left PENDING. An institution
// that started reviewing must reject instead, keeping the audit trail.
func (s *AnalysisService) Withdraw(ctx context.Context, analysisID int64, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	analysis, err := s.load(ctx, analysisID)
	if err != nil {
		return err
	}
	if !CanAct(actor.UserID, actor.Role, analysis.InstitutionID) {
		return appErrors.ErrForbidden
	}
	if analysis.Status != models.StatusPending {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "only pending analyses can be withdrawn")
	}

	if err := s.repo.Delete(ctx, analysisID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "analysis is no longer pending")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw analysis")
	}

	s.invalidate(ctx, analysis.RequestID)
	return nil
}

// Get returns one analysis. Visible to its institution, the request
// owner is served through ListByRequest instead.
func (s *AnalysisService) Get(ctx context.Context, analysisID int64, actor *models.JWTClaims) (*models.InstitutionAnalysis, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	analysis, err := s.load(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, analysis.InstitutionID) {
		return nil, appErrors.ErrForbidden
	}
	return analysis, nil
}

// ListByRequest returns all analyses of one request, for its owner, any
// institution, or an admin.
func (s *AnalysisService) ListByRequest(ctx context.Context, requestID int64, actor *models.JWTClaims) ([]models.InstitutionAnalysis, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID, models.RoleInstitution) {
		return nil, appErrors.ErrForbidden
	}
	analyses, err := s.repo.List(ctx, models.AnalysisFilter{RequestID: requestID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list analyses")
	}
	return analyses, nil
}

// ListMine returns the calling institution's analyses.
func (s *AnalysisService) ListMine(ctx context.Context, actor *models.JWTClaims) ([]models.InstitutionAnalysis, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleInstitution {
		return nil, appErrors.ErrForbidden
	}
	analyses, err := s.repo.List(ctx, models.AnalysisFilter{InstitutionID: actor.UserID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list analyses")
	}
	return analyses, nil
}

// Summarize buckets a request's analyses by status. Derived on read so
// it can never drift from the rows; the optional cache only trades
// staleness bounded by its TTL.
func (s *AnalysisService) Summarize(ctx context.Context, requestID int64) (*models.RequestAggregate, error) {
	if s.cache != nil {
		var cached models.RequestAggregate
		if err := s.cache.Get(ctx, summaryCacheKey(requestID), &cached); err == nil {
			return &cached, nil
		}
	}

	if _, err := s.requests.GetByID(ctx, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}

	counts, err := s.repo.CountByStatus(ctx, requestID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize analyses")
	}

	aggregate := &models.RequestAggregate{
		RequestID: requestID,
		Counts:    make(map[models.Status]int, len(models.AllStatuses())),
	}
	for _, status := range models.AllStatuses() {
		aggregate.Counts[status] = 0
	}
	for _, bucket := range counts {
		aggregate.Counts[bucket.Status] = bucket.Count
		aggregate.Total += bucket.Count
	}
	aggregate.HasAnalysis = aggregate.Total > 0

	if s.cache != nil {
		if err := s.cache.Set(ctx, summaryCacheKey(requestID), aggregate, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache summary", zap.Int64("request_id", requestID), zap.Error(err))
		}
	}
	return aggregate, nil
}

func (s *AnalysisService) load(ctx context.Context, id int64) (*models.InstitutionAnalysis, error) {
	analysis, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load analysis")
	}
	return analysis, nil
}

func (s *AnalysisService) invalidate(ctx context.Context, requestID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(requestID)); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Int64("request_id", requestID), zap.Error(err))
	}
}

func (s *AnalysisService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, analysisID int64, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	resourceID := fmt.Sprintf("%d", analysisID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "analysis",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func summaryCacheKey(requestID int64) string {
	return fmt.Sprintf("summary:request:%d", requestID)
}
