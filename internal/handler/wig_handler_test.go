package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/middleware"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/service"
)

type wigRepoStub struct {
	wigs map[int64]*models.Wig
}

func (s *wigRepoStub) Create(ctx context.Context, wig *models.Wig) error {
	wig.ID = 1
	wig.Available = true
	if s.wigs == nil {
		s.wigs = make(map[int64]*models.Wig)
	}
	s.wigs[wig.ID] = wig
	return nil
}

func (s *wigRepoStub) GetByID(ctx context.Context, id int64) (*models.Wig, error) {
	wig, ok := s.wigs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *wig
	return &copied, nil
}

func (s *wigRepoStub) List(ctx context.Context, filter models.WigFilter) ([]models.Wig, int, error) {
	out := make([]models.Wig, 0, len(s.wigs))
	for _, wig := range s.wigs {
		out = append(out, *wig)
	}
	return out, len(out), nil
}

func (s *wigRepoStub) Update(ctx context.Context, wig *models.Wig) error {
	s.wigs[wig.ID] = wig
	return nil
}

func (s *wigRepoStub) Delete(ctx context.Context, id int64) error {
	if _, ok := s.wigs[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.wigs, id)
	return nil
}

func newWigHandlerForTest() *WigHandler {
	svc := service.NewWigService(&wigRepoStub{}, nil, zap.NewNop())
	return NewWigHandler(svc)
}

func TestWigHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newWigHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateWigRequest{HairType: "human", Color: "black", Length: "long", Size: "M"})
	req, _ := http.NewRequest(http.MethodPost, "/wigs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "i1", Role: models.RoleInstitution})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"hair_type":"human"`)
}

func TestWigHandlerCreateForbiddenForRequester(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newWigHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.CreateWigRequest{HairType: "human", Color: "black"})
	req, _ := http.NewRequest(http.MethodPost, "/wigs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleRequester})

	handler.Create(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWigHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newWigHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/wigs", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "i1", Role: models.RoleInstitution})

	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWigHandlerGetInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newWigHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/wigs/abc", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleRequester})

	handler.Get(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWigHandlerListBadAvailabilityFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newWigHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/wigs?available=maybe", nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1", Role: models.RoleRequester})

	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
