package usecases

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth(t *testing.T) *AuthUsecase {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	return NewAuthUsecase("ops", string(hash), "jwt-secret")
}

func TestLoginIssuesSignedToken(t *testing.T) {
	uc := newTestAuth(t)

	signed, err := uc.Login("ops", "s3cret")
	require.NoError(t, err)

	token, err := jwt.Parse(signed, func(token *jwt.Token) (interface{}, error) {
		return []byte("jwt-secret"), nil
	})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, "ops", claims["sub"])
	assert.Equal(t, "operator", claims["role"])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	uc := newTestAuth(t)

	_, err := uc.Login("ops", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = uc.Login("root", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
