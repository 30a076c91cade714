package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuthService(t *testing.T) (*AuthService, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		JWTSecret:  "unit-test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		BcryptCost: 4,
	}
	return NewAuthService(cfg, rdb, nil), mr
}

func testUser() *model.User {
	return &model.User{
		ID:       uuid.New(),
		Email:    "student@example.com",
		Role:     model.RoleStudent,
		IsActive: true,
	}
}

func TestIssuePairAndValidateAccess(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestAuthService(t)
	user := testUser()

	pair, err := svc.IssuePair(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := svc.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID())
	assert.Equal(t, model.RoleStudent, claims.Role)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)

	// The refresh index points at the freshly issued refresh jti.
	assert.True(t, mr.Exists(config.CacheKey.RefreshTokenKey(user.ID)))
}

func TestValidateAccessRejectsRefreshToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)

	pair, err := svc.IssuePair(ctx, testUser())
	require.NoError(t, err)

	_, err = svc.ValidateAccess(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenType)
}

func TestValidateAccessRejectsForgedToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestAuthService(t)
	other, _ := newTestAuthService(t)
	other.cfg.JWTSecret = "a-different-secret"

	pair, err := other.IssuePair(ctx, testUser())
	require.NoError(t, err)

	_, err = svc.ValidateAccess(ctx, pair.AccessToken)
	assert.Error(t, err)
}

func TestLogoutRevokesBothCapabilities(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestAuthService(t)
	user := testUser()

	pair, err := svc.IssuePair(ctx, user)
	require.NoError(t, err)

	claims, err := svc.ValidateAccess(ctx, pair.AccessToken)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, claims))

	// The access jti is blacklisted for its remaining lifetime.
	_, err = svc.ValidateAccess(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	// The refresh index is gone, so the refresh token cannot rotate either.
	assert.False(t, mr.Exists(config.CacheKey.RefreshTokenKey(user.ID)))
}

func TestIssuePairRepointsRefreshIndex(t *testing.T) {
	ctx := context.Background()
	svc, mr := newTestAuthService(t)
	user := testUser()

	_, err := svc.IssuePair(ctx, user)
	require.NoError(t, err)
	first, err := mr.Get(config.CacheKey.RefreshTokenKey(user.ID))
	require.NoError(t, err)

	_, err = svc.IssuePair(ctx, user)
	require.NoError(t, err)
	second, err := mr.Get(config.CacheKey.RefreshTokenKey(user.ID))
	require.NoError(t, err)

	// Only the newest refresh capability stays valid per user.
	assert.NotEqual(t, first, second)
}

func TestHashAndCheckPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	hash, err := svc.HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NoError(t, svc.CheckPassword(hash, "s3cret-password"))
	assert.Error(t, svc.CheckPassword(hash, "wrong-password"))
}
