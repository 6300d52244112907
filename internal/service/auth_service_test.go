package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/wigshare/wigshare-api/internal/models"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	userByID         *models.User
	findByEmailErr   error
	findByIDErr      error
	refreshTokens    map[string]*models.RefreshToken
	createRefreshErr error
	auditLogs        []*models.AuditLog
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail != nil {
		return m.userByEmail, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func newTestAuthService(repo *mockAuthRepo) *AuthService {
	return NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
	})
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true, Role: models.RoleRequester}}
	svc := newTestAuthService(repo)

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
	assert.Len(t, repo.auditLogs, 1)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: true}}
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "user@example.com", PasswordHash: string(password), Active: false}}
	svc := newTestAuthService(repo)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "user@example.com", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRefreshTokenRotates(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "user@example.com", PasswordHash: "hash", Active: true, Role: models.RoleInstitution}
	repo.userByID = user
	repo.refreshTokens["token"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	svc := newTestAuthService(repo)

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceRefreshTokenExpired(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(-time.Hour)},
	}}
	svc := newTestAuthService(repo)

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newTestAuthService(repo)

	require.NoError(t, svc.Logout(context.Background(), "token", "u1"))
	assert.True(t, repo.refreshTokens["token"].Revoked)
}

func TestAuthServiceLogoutForeignToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"token": {ID: "rt1", UserID: "u1", Token: "token", ExpiresAt: time.Now().Add(time.Hour)},
	}}
	svc := newTestAuthService(repo)

	err := svc.Logout(context.Background(), "token", "u2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.False(t, repo.refreshTokens["token"].Revoked)
}

func TestValidateToken(t *testing.T) {
	svc := newTestAuthService(&mockAuthRepo{})
	user := &models.User{ID: "u1", Email: "user@example.com", Role: models.RoleAdmin}
	token, _, err := svc.generateAccessToken(user)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	issuer := newTestAuthService(&mockAuthRepo{})
	token, _, err := issuer.generateAccessToken(&models.User{ID: "u1", Role: models.RoleAdmin})
	require.NoError(t, err)

	verifier := NewAuthService(&mockAuthRepo{}, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "other-secret",
		AccessTokenExpiry: time.Hour,
	})
	_, err = verifier.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
