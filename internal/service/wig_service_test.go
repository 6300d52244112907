package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

type mockWigRepo struct {
	wig        *models.Wig
	listResult []models.Wig
	listTotal  int
	listFilter models.WigFilter
	updated    *models.Wig
	deleteErr  error
	deleted    bool
}

func (m *mockWigRepo) Create(ctx context.Context, wig *models.Wig) error {
	wig.ID = 2
	wig.Available = true
	return nil
}

func (m *mockWigRepo) GetByID(ctx context.Context, id int64) (*models.Wig, error) {
	if m.wig == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.wig
	return &copied, nil
}

func (m *mockWigRepo) List(ctx context.Context, filter models.WigFilter) ([]models.Wig, int, error) {
	m.listFilter = filter
	return m.listResult, m.listTotal, nil
}

func (m *mockWigRepo) Update(ctx context.Context, wig *models.Wig) error {
	m.updated = wig
	return nil
}

func (m *mockWigRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = true
	return nil
}

func newTestWigService(repo *mockWigRepo) *WigService {
	return NewWigService(repo, validator.New(), zap.NewNop())
}

func TestWigServiceCreate(t *testing.T) {
	svc := newTestWigService(&mockWigRepo{})

	wig, err := svc.Create(context.Background(), institutionClaims("i1"), dto.CreateWigRequest{
		HairType: "human", Color: "black", Length: "long", Size: "M",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), wig.ID)
	assert.Equal(t, "i1", wig.InstitutionID)
	assert.True(t, wig.Available)
}

func TestWigServiceCreateRequiresInstitution(t *testing.T) {
	svc := newTestWigService(&mockWigRepo{})

	_, err := svc.Create(context.Background(), requesterClaims("u1"), dto.CreateWigRequest{
		HairType: "human", Color: "black", Length: "long", Size: "M",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWigServiceListScoping(t *testing.T) {
	repo := &mockWigRepo{listResult: []models.Wig{{ID: 2}}, listTotal: 1}
	svc := newTestWigService(repo)

	_, _, err := svc.List(context.Background(), models.WigFilter{}, institutionClaims("i1"))
	require.NoError(t, err)
	assert.Equal(t, "i1", repo.listFilter.InstitutionID)

	_, _, err = svc.List(context.Background(), models.WigFilter{}, requesterClaims("u1"))
	require.NoError(t, err)
	require.NotNil(t, repo.listFilter.Available)
	assert.True(t, *repo.listFilter.Available)

	_, _, err = svc.List(context.Background(), models.WigFilter{}, adminClaims())
	require.NoError(t, err)
	assert.Empty(t, repo.listFilter.InstitutionID)
	assert.Nil(t, repo.listFilter.Available)
}

func TestWigServiceUpdateMergesFields(t *testing.T) {
	repo := &mockWigRepo{wig: &models.Wig{ID: 2, InstitutionID: "i1", HairType: "human", Color: "black", Length: "long", Size: "M"}}
	svc := newTestWigService(repo)

	wig, err := svc.Update(context.Background(), 2, institutionClaims("i1"), dto.UpdateWigRequest{Color: "brown"})
	require.NoError(t, err)
	assert.Equal(t, "brown", wig.Color)
	assert.Equal(t, "human", wig.HairType)
}

func TestWigServiceUpdateForbiddenForOtherInstitution(t *testing.T) {
	repo := &mockWigRepo{wig: &models.Wig{ID: 2, InstitutionID: "i1"}}
	svc := newTestWigService(repo)

	_, err := svc.Update(context.Background(), 2, institutionClaims("i2"), dto.UpdateWigRequest{Color: "brown"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.updated)
}

func TestWigServiceDeleteDonatedWig(t *testing.T) {
	repo := &mockWigRepo{wig: &models.Wig{ID: 2, InstitutionID: "i1"}, deleteErr: sql.ErrNoRows}
	svc := newTestWigService(repo)

	err := svc.Delete(context.Background(), 2, institutionClaims("i1"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "donated")
}

func TestWigServiceDelete(t *testing.T) {
	repo := &mockWigRepo{wig: &models.Wig{ID: 2, InstitutionID: "i1"}}
	svc := newTestWigService(repo)

	require.NoError(t, svc.Delete(context.Background(), 2, institutionClaims("i1")))
	assert.True(t, repo.deleted)
}
