package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-health-api/internal/models"
	appErrors "github.com/noah-isme/sma-health-api/pkg/errors"
)

func signToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidateToken(t *testing.T) {
	secret := []byte("test-secret")
	svc := NewTokenService(TokenConfig{Secret: string(secret), Issuer: "school-idp"})
	exp := time.Now().Add(time.Hour).Unix()

	claims, err := svc.ValidateToken(signToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{
		"user_id": "stu-1", "role": "Student", "iss": "school-idp", "exp": exp,
	}))
	require.NoError(t, err)
	assert.Equal(t, models.Actor{ID: "stu-1", Role: models.RoleStudent}, claims.Actor())

	cases := map[string]string{
		"wrong secret": signToken(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"user_id": "u", "role": "admin", "iss": "school-idp", "exp": exp}),
		"wrong method": signToken(t, jwt.SigningMethodHS512, secret, jwt.MapClaims{"user_id": "u", "role": "admin", "iss": "school-idp", "exp": exp}),
		"expired":      signToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": "u", "role": "admin", "iss": "school-idp", "exp": time.Now().Add(-time.Hour).Unix()}),
		"wrong issuer": signToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": "u", "role": "admin", "iss": "elsewhere", "exp": exp}),
		"no user":      signToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"role": "admin", "iss": "school-idp", "exp": exp}),
		"unknown role": signToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"user_id": "u", "role": "teacher", "iss": "school-idp", "exp": exp}),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
		})
	}
}
