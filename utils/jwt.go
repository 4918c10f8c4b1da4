package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dealforge/config"
	"dealforge/models"
)

type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateJWTToken issues an access token (15 minutes) and a refresh
// token (7 days). The refresh token is persisted so logout can revoke it.
func GenerateJWTToken(user *models.User) (string, string, error) {
	accessClaims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(15 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims)
	accessTokenString, err := accessToken.SignedString([]byte(config.AppConfig.JWTSecret))
	if err != nil {
		return "", "", err
	}

	// A random jti keeps refresh tokens unique even when two are issued
	// for the same user within the same second (rotation relies on the
	// token's unique index).
	jti := make([]byte, 16)
	if _, err := rand.Read(jti); err != nil {
		return "", "", err
	}

	refreshClaims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        hex.EncodeToString(jti),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(7 * 24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims)
	refreshTokenString, err := refreshToken.SignedString([]byte(config.AppConfig.JWTSecret))
	if err != nil {
		return "", "", err
	}

	record := models.RefreshToken{UserID: user.ID, Token: refreshTokenString}
	if err := config.DB.Create(&record).Error; err != nil {
		return "", "", err
	}

	return accessTokenString, refreshTokenString, nil
}

func ParseJWTToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// RefreshTokens exchanges a valid, unrevoked refresh token for a new
// token pair. The old refresh token is revoked (single-use rotation).
func RefreshTokens(refreshToken string) (string, string, error) {
	claims, err := ParseJWTToken(refreshToken)
	if err != nil {
		return "", "", err
	}
	if time.Until(claims.ExpiresAt.Time) <= 0 {
		return "", "", errors.New("refresh token expired")
	}

	var stored models.RefreshToken
	if err := config.DB.Where("token = ? AND revoked = ?", refreshToken, false).
		First(&stored).Error; err != nil {
		return "", "", errors.New("refresh token revoked or unknown")
	}

	var user models.User
	if err := config.DB.First(&user, claims.UserID).Error; err != nil {
		return "", "", errors.New("user not found")
	}
	if !user.IsActive {
		return "", "", errors.New("account deactivated")
	}

	if err := config.DB.Model(&stored).Update("revoked", true).Error; err != nil {
		return "", "", err
	}

	return GenerateJWTToken(&user)
}

// RevokeRefreshToken marks a refresh token revoked. Unknown tokens are a
// no-op so logout never fails.
func RevokeRefreshToken(refreshToken string) error {
	return config.DB.Model(&models.RefreshToken{}).
		Where("token = ?", refreshToken).
		Update("revoked", true).Error
}
