package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealforge/config"
	"dealforge/models"
)

func setupAuthTest(t *testing.T) *models.User {
	t.Helper()
	config.DB = testDB(t)
	config.AppConfig = &config.Config{JWTSecret: "test-secret"}

	user := &models.User{
		Email: "analyst@firm.com", Name: "Ana Lyst",
		GoogleID: "g-123", Role: models.RoleAnalyst, IsActive: true,
	}
	require.NoError(t, config.DB.Create(user).Error)
	return user
}

func TestGenerateAndParseJWT(t *testing.T) {
	user := setupAuthTest(t)

	access, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	claims, err := ParseJWTToken(access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, models.RoleAnalyst, claims.Role)

	// The refresh token is persisted for later revocation.
	var stored models.RefreshToken
	require.NoError(t, config.DB.Where("token = ?", refresh).First(&stored).Error)
	assert.Equal(t, user.ID, stored.UserID)
	assert.False(t, stored.Revoked)

	_, err = ParseJWTToken("not-a-token")
	assert.Error(t, err)
}

func TestRefreshTokenRotation(t *testing.T) {
	user := setupAuthTest(t)

	_, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)

	newAccess, newRefresh, err := RefreshTokens(refresh)
	require.NoError(t, err)
	require.NotEmpty(t, newAccess)
	assert.NotEqual(t, refresh, newRefresh)

	// Rotation revoked the old token; it cannot be used a second time.
	var old models.RefreshToken
	require.NoError(t, config.DB.Where("token = ?", refresh).First(&old).Error)
	assert.True(t, old.Revoked)

	_, _, err = RefreshTokens(refresh)
	assert.Error(t, err)

	// The new token still works.
	_, _, err = RefreshTokens(newRefresh)
	assert.NoError(t, err)
}

func TestRefreshTokenRevocation(t *testing.T) {
	user := setupAuthTest(t)

	_, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)

	require.NoError(t, RevokeRefreshToken(refresh))
	_, _, err = RefreshTokens(refresh)
	assert.Error(t, err)

	// Revoking an unknown token is a no-op, logout never fails on it.
	assert.NoError(t, RevokeRefreshToken("unknown-token"))
}

func TestRefreshTokenInactiveUser(t *testing.T) {
	user := setupAuthTest(t)

	_, refresh, err := GenerateJWTToken(user)
	require.NoError(t, err)

	require.NoError(t, config.DB.Model(user).Update("is_active", false).Error)
	_, _, err = RefreshTokens(refresh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deactivated")
}
