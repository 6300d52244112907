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

type donationRepository interface {
	Create(ctx context.Context, donation *models.Donation) error
	GetByID(ctx context.Context, id int64) (*models.Donation, error)
	List(ctx context.Context, filter models.DonationFilter) ([]models.Donation, int, error)
	Revert(ctx context.Context, id int64, institutionID string, window time.Duration, now time.Time) error
}

// DonationService finalizes approved requests against available wigs
// and handles the grace-period revert.
type DonationService struct {
	repo         donationRepository
	audit        auditLogger
	notifier     Notifier
	cache        summaryInvalidator
	metrics      workflowMetrics
	revertWindow time.Duration
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewDonationService constructs the service.
func NewDonationService(
	repo donationRepository,
	audit auditLogger,
	notifier Notifier,
	cache summaryInvalidator,
	metrics workflowMetrics,
	revertWindow time.Duration,
	validate *validator.Validate,
	logger *zap.Logger,
) *DonationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DonationService{
		repo:         repo,
		audit:        audit,
		notifier:     notifier,
		cache:        cache,
		metrics:      metrics,
		revertWindow: revertWindow,
		validator:    validate,
		logger:       logger,
	}
}

// Donate matches one of the institution's available wigs to an approved
// request. The repository enforces every precondition inside a single
// transaction; here each sentinel is translated for the caller.
func (s *DonationService) Donate(ctx context.Context, actor *models.JWTClaims, req dto.CreateDonationRequest) (*models.Donation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleInstitution {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only institutions may donate wigs")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid donation payload")
	}

	donation := &models.Donation{
		WigID:         req.WigID,
		RequestID:     req.RequestID,
		InstitutionID: actor.UserID,
		Note:          req.Note,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, donation); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrNotFound
		case errors.Is(err, repository.ErrWigNotOwned):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "wig belongs to another institution")
		case errors.Is(err, repository.ErrWigUnavailable):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "wig is not available")
		case errors.Is(err, repository.ErrWigAlreadyDonated):
			if s.metrics != nil {
				s.metrics.ObserveConflict("donate")
			}
			return nil, appErrors.Clone(appErrors.ErrConflict, "wig has already been donated")
		case errors.Is(err, repository.ErrRequestNotApproved):
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "request is not approved")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create donation")
	}

	s.notifier.DonationCreated(ctx, models.DonationCreatedEvent{
		DonationID: donation.ID,
		RequestID:  donation.RequestID,
	})
	s.invalidate(ctx, donation.RequestID)
	s.emitAudit(ctx, actor, models.AuditActionDonationCreate, donation.ID, map[string]interface{}{
		"wig_id":     donation.WigID,
		"request_id": donation.RequestID,
	})
	if s.metrics != nil {
		s.metrics.ObserveDonation()
		s.metrics.ObserveTransition("request", models.StatusCompleted)
	}
	return donation, nil
}

// Revert undoes a donation made within the configured window. The wig
// becomes available again and the request returns to APPROVED.
func (s *DonationService) Revert(ctx context.Context, id int64, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleInstitution && actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}

	donation, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	institutionID := actor.UserID
	if actor.Role == models.RoleAdmin {
		institutionID = donation.InstitutionID
	}

	now := time.Now().UTC()
	if err := s.repo.Revert(ctx, id, institutionID, s.revertWindow, now); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.ErrNotFound
		case errors.Is(err, repository.ErrDonationNotOwned):
			return appErrors.Clone(appErrors.ErrForbidden, "donation belongs to another institution")
		case errors.Is(err, repository.ErrRevertWindowClosed):
			return appErrors.Clone(appErrors.ErrInvalidTransition, "donation is too old to revert")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revert donation")
	}

	s.invalidate(ctx, donation.RequestID)
	s.emitAudit(ctx, actor, models.AuditActionDonationRevert, id, nil)
	if s.metrics != nil {
		s.metrics.ObserveRevert()
		s.metrics.ObserveTransition("request", models.StatusApproved)
	}
	return nil
}

// Get returns one donation, scoped to its institution or an admin.
func (s *DonationService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Donation, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	donation, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, donation.InstitutionID) {
		return nil, appErrors.ErrForbidden
	}
	return donation, nil
}

// List returns donations scoped by role: institutions see their own,
// admins see everything the filter matches.
func (s *DonationService) List(ctx context.Context, filter models.DonationFilter, actor *models.JWTClaims) ([]models.Donation, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleInstitution:
		filter.InstitutionID = actor.UserID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	donations, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list donations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return donations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *DonationService) load(ctx context.Context, id int64) (*models.Donation, error) {
	donation, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load donation")
	}
	return donation, nil
}

func (s *DonationService) invalidate(ctx context.Context, requestID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, summaryCacheKey(requestID)); err != nil {
		s.logger.Warn("failed to invalidate summary cache", zap.Int64("request_id", requestID), zap.Error(err))
	}
}

func (s *DonationService) emitAudit(ctx context.Context, actor *models.JWTClaims, action string, donationID int64, values map[string]interface{}) {
	if s.audit == nil {
		return
	}
	var payload []byte
	if values != nil {
		payload, _ = json.Marshal(values)
	}
	resourceID := fmt.Sprintf("%d", donationID)
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actor.UserID,
		Action:     action,
		Resource:   "donation",
		ResourceID: &resourceID,
		NewValues:  payload,
	}); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}
