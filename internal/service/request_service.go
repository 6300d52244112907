package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/repository"
	"github.com/wigshare/wigshare-api/pkg/config"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

const cascadeNote = "cancelled by requester"

type requestRepository interface {
	Create(ctx context.Context, request *models.Request) error
	GetByID(ctx context.Context, id int64) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	UpdateNote(ctx context.Context, id int64, note string, now time.Time) error
	UpdateStatus(ctx context.Context, id int64, status models.Status, note string, now time.Time) error
	Cancel(ctx context.Context, id int64, systemNote string, now time.Time) ([]models.CancelledAnalysisRef, error)
	Delete(ctx context.Context, id int64) error
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type evidenceStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type evidenceSigner interface {
	Generate(resourceID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (resourceID, relPath string, expiresAt time.Time, err error)
}

type summaryInvalidator interface {
	Delete(ctx context.Context, key string) error
}

type workflowMetrics interface {
	ObserveTransition(entity string, status models.Status)
	ObserveDonation()
	ObserveRevert()
	ObserveConflict(operation string)
}

// RequestService orchestrates the wig request lifecycle: submission,
// note edits, the legacy direct status path, cancellation with its
// cascade, and deletion.
type RequestService struct {
	repo      requestRepository
	audit     auditLogger
	store     evidenceStore
	signer    evidenceSigner
	notifier  Notifier
	cache     summaryInvalidator
	metrics   workflowMetrics
	evidence  config.EvidenceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequestService constructs the service.
func NewRequestService(
	repo requestRepository,
	audit auditLogger,
	store evidenceStore,
	signer evidenceSigner,
	notifier Notifier,
	cache summaryInvalidator,
	metrics workflowMetrics,
	evidence config.EvidenceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *RequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RequestService{
		repo:      repo,
		audit:     audit,
		store:     store,
		signer:    signer,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		evidence:  evidence,
		validator: validate,
		logger:    logger,
	}
}

// Submit creates a new request in PENDING with its evidence document
// stored aside. Only requester accounts submit.
func (s *RequestService) Submit(ctx context.Context, actor *models.JWTClaims, input dto.SubmitRequestInput) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleRequester {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only requesters may submit requests")
	}
	if err := s.validator.Struct(input); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if len(input.Evidence) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence document is required")
	}
	if s.evidence.MaxFileSizeBytes > 0 && int64(len(input.Evidence)) > s.evidence.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence document exceeds the size limit")
	}
	if len(s.evidence.AllowedMIMEs) > 0 && input.EvidenceMIME != "" && !contains(s.evidence.AllowedMIMEs, input.EvidenceMIME) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence document type not allowed")
	}

	ref := path.Join("requests", uuid.NewString(), path.Base(input.EvidenceFilename))
	if _, err := s.store.Save(ref, input.Evidence); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}

	request := &models.Request{
		RequesterID: actor.UserID,
		Note:        input.Note,
		EvidenceRef: ref,
		Status:      models.StatusPending,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create request")
	}

	s.emitAudit(ctx, actor, models.AuditActionRequestSubmit, request.ID, map[string]interface{}{"status": request.Status})
	if s.metrics != nil {
		s.metrics.ObserveTransition("request", request.Status)
	}
	return request, nil
}

// Get returns one request, visible to its owner and to reviewing roles.
func (s *RequestService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID, models.RoleInstitution) {
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// List returns requests scoped by role: requesters see their own,
// institutions and admins see everything the filter matches.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.Request, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status:   query.Status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleInstitution:
	case models.RoleRequester:
		filter.RequesterID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	requests, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list requests")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return requests, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// UpdateNote edits the free-text note. Owner (or admin) only.
func (s *RequestService) UpdateNote(ctx context.Context, id int64, actor *models.JWTClaims, req dto.UpdateRequestNoteRequest) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid note payload")
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID) {
		return nil, appErrors.ErrForbidden
	}
	now := time.Now().UTC()
	if err := s.repo.UpdateNote(ctx, id, req.Note, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update note")
	}
	request.Note = req.Note
	request.UpdatedAt = &now
	return request, nil
}

// Cancel sets the request to CANCELLED_BY_REQUESTER and forces every
// still-open analysis with it, atomically. Owner (or admin) only.
func (s *RequestService) Cancel(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID) {
		return nil, appErrors.ErrForbidden
	}

	now := time.Now().UTC()
	refs, err := s.repo.Cancel(ctx, id, cascadeNote, now)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		case errors.Is(err, repository.ErrRequestNotOpen):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already reached a final status")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel request")
	}

	request.Status = models.StatusCancelledByRequester
	request.UpdatedAt = &now

	s.notifier.RequestCancelled(ctx, models.RequestCancelledEvent{RequestID: id})
	for _, ref := range refs {
		s.notifier.RequestCancelled(ctx, models.RequestCancelledEvent{RequestID: id, InstitutionID: ref.InstitutionID})
	}
	s.invalidateSummary(ctx, id)
	s.emitAudit(ctx, actor, models.AuditActionRequestCancel, id, map[string]interface{}{"cascaded": len(refs)})
	if s.metrics != nil {
		s.metrics.ObserveTransition("request", models.StatusCancelledByRequester)
	}
	return request, nil
}

// Delete removes an open, undecided request. Terminal-adjacent requests
// must be cancelled instead.
func (s *RequestService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID) {
		return appErrors.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.ErrNotFound
		case errors.Is(err, repository.ErrRequestNotOpen):
			return appErrors.Clone(appErrors.ErrInvalidTransition, "only open requests can be deleted")
		case errors.Is(err, repository.ErrRequestDecided):
			return appErrors.Clone(appErrors.ErrInvalidTransition, "request has reviewed analyses; cancel it instead")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete request")
	}

	s.invalidateSummary(ctx, id)
	s.emitAudit(ctx, actor, models.AuditActionRequestDelete, id, nil)
	return nil
}

// UpdateStatus is the legacy single-institution path: an institution (or
// admin) sets the overall status directly, bypassing per-institution
// analyses. A requester caller may only reach CANCELLED_BY_REQUESTER,
// which delegates to Cancel so the cascade cannot be skipped.
func (s *RequestService) UpdateStatus(ctx context.Context, id int64, actor *models.JWTClaims, req dto.UpdateRequestStatusRequest) (*models.Request, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	newStatus := models.Status(req.Status)
	if !newStatus.IsValid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", req.Status))
	}

	if actor.Role == models.RoleRequester {
		if newStatus != models.StatusCancelledByRequester {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "requesters may only cancel their request")
		}
		return s.Cancel(ctx, id, actor)
	}
	if actor.Role != models.RoleInstitution && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already reached a final status")
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, id, newStatus, req.Note, now); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		case errors.Is(err, repository.ErrRequestNotOpen):
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "request already reached a final status")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update status")
	}

	request.Status = newStatus
	if req.Note != "" {
		request.Note = req.Note
	}
	request.UpdatedAt = &now

	s.emitAudit(ctx, actor, models.AuditActionRequestStatus, id, map[string]interface{}{"status": newStatus})
	if s.metrics != nil {
		s.metrics.ObserveTransition("request", newStatus)
	}
	return request, nil
}

// EvidenceLink issues a signed, expiring download token for the evidence
// document. Visible to the owner, reviewing institutions and admins.
func (s *RequestService) EvidenceLink(ctx context.Context, id int64, actor *models.JWTClaims) (*dto.EvidenceLink, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, request.RequesterID, models.RoleInstitution) {
		return nil, appErrors.ErrForbidden
	}
	if request.EvidenceRef == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "request has no evidence document")
	}

	token, expiresAt, err := s.signer.Generate(fmt.Sprintf("%d", id), request.EvidenceRef)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence link")
	}
	return &dto.EvidenceLink{URL: token, ExpiresAt: expiresAt.Unix()}, nil
}

// OpenEvidence resolves a signed token to the stored document. The token
// itself is the authorization; it was only handed to a caller EvidenceLink
// already vetted.
func (s *RequestService) OpenEvidence(token string) (*os.File, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid evidence token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence document not found")
	}
	return file, nil
}

func (s *RequestService) load(ctx context.Context, id int64) (*models.Request, error) {
	request, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load request")
	}
	return request, nil
}

func (s *RequestService) invalidateSummary(ctx context.Context, requestID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(requestID)); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Int64("request_id", requestID), zap.Error(err))
	}
}

func (s *RequestService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, requestID int64, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	resourceID := fmt.Sprintf("%d", requestID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "request",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
