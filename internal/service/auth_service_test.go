package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-roster-sync/internal/models"
	appErrors "github.com/noah-isme/sma-roster-sync/pkg/errors"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims *models.JWTClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func teacherClaims(expiresIn time.Duration) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		Role: models.RoleTeacher,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "teacher-1",
			Issuer:    "sma-adp",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "sma-adp"})

	claims, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, teacherClaims(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "teacher-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "sma-adp"})

	tests := map[string]string{
		"wrong secret": signToken(t, "other", jwt.SigningMethodHS256, teacherClaims(time.Hour)),
		"expired":      signToken(t, "secret", jwt.SigningMethodHS256, teacherClaims(-time.Minute)),
		"wrong method": signToken(t, "secret", jwt.SigningMethodHS512, teacherClaims(time.Hour)),
		"garbage":      "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}

func TestAuthServiceChecksIssuer(t *testing.T) {
	svc := NewAuthService(AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	_, err := svc.ValidateToken(signToken(t, "secret", jwt.SigningMethodHS256, teacherClaims(time.Hour)))
	assert.Error(t, err)
}
