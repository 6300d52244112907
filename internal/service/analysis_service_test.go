package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wigshare/wigshare-api/internal/dto"
	"github.com/wigshare/wigshare-api/internal/models"
	"github.com/wigshare/wigshare-api/internal/repository"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

type mockAnalysisRepo struct {
	analysis        *models.InstitutionAnalysis
	getErr          error
	createErr       error
	created         *models.InstitutionAnalysis
	listResult      []models.InstitutionAnalysis
	updateStatusErr error
	updatedTo       models.Status
	deleteErr       error
	deleted         bool
	counts          []models.StatusCount
	countCalls      int
}

func (m *mockAnalysisRepo) Create(ctx context.Context, analysis *models.InstitutionAnalysis) error {
	if m.createErr != nil {
		return m.createErr
	}
	analysis.ID = 1
	m.created = analysis
	return nil
}

func (m *mockAnalysisRepo) GetByID(ctx context.Context, id int64) (*models.InstitutionAnalysis, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.analysis == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.analysis
	return &copied, nil
}

func (m *mockAnalysisRepo) List(ctx context.Context, filter models.AnalysisFilter) ([]models.InstitutionAnalysis, error) {
	return m.listResult, nil
}

func (m *mockAnalysisRepo) UpdateStatus(ctx context.Context, id int64, from, to models.Status, notes string, now time.Time) error {
	if m.updateStatusErr != nil {
		return m.updateStatusErr
	}
	m.updatedTo = to
	return nil
}

func (m *mockAnalysisRepo) Delete(ctx context.Context, id int64) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = true
	return nil
}

func (m *mockAnalysisRepo) CountByStatus(ctx context.Context, requestID int64) ([]models.StatusCount, error) {
	m.countCalls++
	return m.counts, nil
}

type mockRequestReader struct {
	request *models.Request
}

func (m *mockRequestReader) GetByID(ctx context.Context, id int64) (*models.Request, error) {
	if m.request == nil {
		return nil, sql.ErrNoRows
	}
	copied := *m.request
	return &copied, nil
}

type memorySummaryCache struct {
	values map[string][]byte
}

func (m *memorySummaryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memorySummaryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.values == nil {
		m.values = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memorySummaryCache) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func newTestAnalysisService(repo *mockAnalysisRepo, requests *mockRequestReader, notifier Notifier, opts ...AnalysisServiceOption) (*AnalysisService, *mockAudit) {
	audit := &mockAudit{}
	svc := NewAnalysisService(repo, requests, audit, notifier, validator.New(), zap.NewNop(), opts...)
	return svc, audit
}

func TestAnalysisServiceClaim(t *testing.T) {
	repo := &mockAnalysisRepo{}
	requests := &mockRequestReader{request: &models.Request{ID: 5, RequesterID: "u1", Status: models.StatusPending}}
	svc, audit := newTestAnalysisService(repo, requests, &captureNotifier{})

	analysis, err := svc.Claim(context.Background(), institutionClaims("i1"), dto.ClaimAnalysisRequest{RequestID: 5})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, analysis.Status)
	assert.Equal(t, "i1", analysis.InstitutionID)
	assert.Len(t, audit.logs, 1)
}

func TestAnalysisServiceClaimDuplicateConflicts(t *testing.T) {
	metrics := &mockMetrics{}
	repo := &mockAnalysisRepo{createErr: repository.ErrDuplicateAnalysis}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{}, WithAnalysisMetrics(metrics))

	_, err := svc.Claim(context.Background(), institutionClaims("i1"), dto.ClaimAnalysisRequest{RequestID: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.conflicts["claim"])
}

func TestAnalysisServiceClaimTerminalRequest(t *testing.T) {
	repo := &mockAnalysisRepo{}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusCancelledByRequester}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{})

	_, err := svc.Claim(context.Background(), institutionClaims("i1"), dto.ClaimAnalysisRequest{RequestID: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceClaimRequiresInstitution(t *testing.T) {
	svc, _ := newTestAnalysisService(&mockAnalysisRepo{}, &mockRequestReader{}, &captureNotifier{})

	_, err := svc.Claim(context.Background(), requesterClaims("u1"), dto.ClaimAnalysisRequest{RequestID: 5})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceAdvanceNotifies(t *testing.T) {
	notifier := &captureNotifier{}
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, RequestID: 5, InstitutionID: "i1", Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, notifier)

	analysis, err := svc.Advance(context.Background(), 3, institutionClaims("i1"), dto.AdvanceAnalysisRequest{Status: string(models.StatusUnderReview)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, analysis.Status)
	require.Len(t, notifier.advanced, 1)
	assert.Equal(t, models.StatusUnderReview, notifier.advanced[0].NewStatus)
	assert.Equal(t, int64(5), notifier.advanced[0].RequestID)
}

func TestAnalysisServiceAdvanceTerminalFrozen(t *testing.T) {
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, InstitutionID: "i1", Status: models.StatusRejected}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{})

	_, err := svc.Advance(context.Background(), 3, institutionClaims("i1"), dto.AdvanceAnalysisRequest{Status: string(models.StatusUnderReview)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceAdvanceReservedStatus(t *testing.T) {
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, InstitutionID: "i1", Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{})

	_, err := svc.Advance(context.Background(), 3, institutionClaims("i1"), dto.AdvanceAnalysisRequest{Status: string(models.StatusCancelledByRequester)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceAdvanceConcurrentChangeConflicts(t *testing.T) {
	metrics := &mockMetrics{}
	repo := &mockAnalysisRepo{
		analysis:        &models.InstitutionAnalysis{ID: 3, InstitutionID: "i1", Status: models.StatusPending},
		updateStatusErr: sql.ErrNoRows,
	}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{}, WithAnalysisMetrics(metrics))

	_, err := svc.Advance(context.Background(), 3, institutionClaims("i1"), dto.AdvanceAnalysisRequest{Status: string(models.StatusUnderReview)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 1, metrics.conflicts["advance"])
}

func TestAnalysisServiceAdvanceForbiddenForOtherInstitution(t *testing.T) {
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, InstitutionID: "i1", Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{})

	_, err := svc.Advance(context.Background(), 3, institutionClaims("i2"), dto.AdvanceAnalysisRequest{Status: string(models.StatusUnderReview)})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceWithdrawOnlyPending(t *testing.T) {
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, InstitutionID: "i1", Status: models.StatusUnderReview}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{})

	err := svc.Withdraw(context.Background(), 3, institutionClaims("i1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.deleted)
}

func TestAnalysisServiceWithdrawPending(t *testing.T) {
	repo := &mockAnalysisRepo{analysis: &models.InstitutionAnalysis{ID: 3, RequestID: 5, InstitutionID: "i1", Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, &mockRequestReader{}, &captureNotifier{})

	require.NoError(t, svc.Withdraw(context.Background(), 3, institutionClaims("i1")))
	assert.True(t, repo.deleted)
}

func TestAnalysisServiceSummarize(t *testing.T) {
	repo := &mockAnalysisRepo{counts: []models.StatusCount{
		{Status: models.StatusPending, Count: 2},
		{Status: models.StatusApproved, Count: 1},
	}}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusUnderReview}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{})

	aggregate, err := svc.Summarize(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, aggregate.Total)
	assert.True(t, aggregate.HasAnalysis)
	assert.Equal(t, 2, aggregate.Counts[models.StatusPending])
	assert.Equal(t, 1, aggregate.Counts[models.StatusApproved])
	// Every registry status appears, including zero buckets.
	assert.Equal(t, 0, aggregate.Counts[models.StatusRejected])
	assert.Len(t, aggregate.Counts, len(models.AllStatuses()))
}

func TestAnalysisServiceSummarizeEmpty(t *testing.T) {
	repo := &mockAnalysisRepo{}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{})

	aggregate, err := svc.Summarize(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, aggregate.Total)
	assert.False(t, aggregate.HasAnalysis)
}

func TestAnalysisServiceSummarizeUnknownRequest(t *testing.T) {
	svc, _ := newTestAnalysisService(&mockAnalysisRepo{}, &mockRequestReader{}, &captureNotifier{})

	_, err := svc.Summarize(context.Background(), 99)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAnalysisServiceSummarizeUsesCache(t *testing.T) {
	cache := &memorySummaryCache{}
	repo := &mockAnalysisRepo{counts: []models.StatusCount{{Status: models.StatusPending, Count: 1}}}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{}, WithSummaryCache(cache, time.Minute))

	first, err := svc.Summarize(context.Background(), 5)
	require.NoError(t, err)
	second, err := svc.Summarize(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, 1, repo.countCalls)
}

func TestAnalysisServiceClaimInvalidatesCache(t *testing.T) {
	cache := &memorySummaryCache{}
	repo := &mockAnalysisRepo{counts: []models.StatusCount{{Status: models.StatusPending, Count: 1}}}
	requests := &mockRequestReader{request: &models.Request{ID: 5, Status: models.StatusPending}}
	svc, _ := newTestAnalysisService(repo, requests, &captureNotifier{}, WithSummaryCache(cache, time.Minute))

	_, err := svc.Summarize(context.Background(), 5)
	require.NoError(t, err)
	require.Contains(t, cache.values, summaryCacheKey(5))

	_, err = svc.Claim(context.Background(), institutionClaims("i1"), dto.ClaimAnalysisRequest{RequestID: 5})
	require.NoError(t, err)
	assert.NotContains(t, cache.values, summaryCacheKey(5))
}
