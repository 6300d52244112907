package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

type wigRepository interface {
	Create(ctx context.Context, wig *models.Wig) error
	GetByID(ctx context.Context, id int64) (*models.Wig, error)
	List(ctx context.Context, filter models.WigFilter) ([]models.Wig, int, error)
	Update(ctx context.Context, wig *models.Wig) error
	Delete(ctx context.Context, id int64) error
}

// WigService manages an institution's wig catalog.
type WigService struct {
	repo      wigRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewWigService constructs the service.
func NewWigService(repo wigRepository, validate *validator.Validate, logger *zap.Logger) *WigService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WigService{repo: repo, validator: validate, logger: logger}
}

// Create registers a wig under the calling institution.
func (s *WigService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateWigRequest) (*models.Wig, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleInstitution {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only institutions may register wigs")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid wig payload")
	}

	wig := &models.Wig{
		InstitutionID: actor.UserID,
		HairType:      req.HairType,
		Color:         req.Color,
		Length:        req.Length,
		Size:          req.Size,
	}
	if err := s.repo.Create(ctx, wig); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create wig")
	}
	return wig, nil
}

// Get fetches one wig. Any authenticated role may view the catalog.
func (s *WigService) Get(ctx context.Context, id int64, actor *models.JWTClaims) (*models.Wig, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	return s.load(ctx, id)
}

// List returns wigs. Institutions default to their own catalog; other
// roles browse available wigs only.
func (s *WigService) List(ctx context.Context, filter models.WigFilter, actor *models.JWTClaims) ([]models.Wig, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleInstitution:
		filter.InstitutionID = actor.UserID
	default:
		available := true
		filter.Available = &available
	}

	wigs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list wigs")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return wigs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Update edits descriptive attributes of an owned wig.
func (s *WigService) Update(ctx context.Context, id int64, actor *models.JWTClaims, req dto.UpdateWigRequest) (*models.Wig, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid wig payload")
	}
	wig, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanAct(actor.UserID, actor.Role, wig.InstitutionID) {
		return nil, appErrors.ErrForbidden
	}

	if req.HairType != "" {
		wig.HairType = req.HairType
	}
	if req.Color != "" {
		wig.Color = req.Color
	}
	if req.Length != "" {
		wig.Length = req.Length
	}
	if req.Size != "" {
		wig.Size = req.Size
	}
	if err := s.repo.Update(ctx, wig); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update wig")
	}
	return wig, nil
}

// Delete removes an owned wig that has not been donated.
func (s *WigService) Delete(ctx context.Context, id int64, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	wig, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !CanAct(actor.UserID, actor.Role, wig.InstitutionID) {
		return appErrors.ErrForbidden
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "donated wigs cannot be removed")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete wig")
	}
	return nil
}

func (s *WigService) load(ctx context.Context, id int64) (*models.Wig, error) {
	wig, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wig")
	}
	return wig, nil
}
