package usecases

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"wa_relay/internal/entities"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthUsecase issues operator tokens for the pairing endpoint. There is a
// single operator configured from the environment.
type AuthUsecase struct {
	operator  entities.Operator
	jwtSecret []byte
	ttl       time.Duration
	now       func() time.Time
}

func NewAuthUsecase(username, passwordHash, secret string) *AuthUsecase {
	return &AuthUsecase{
		operator: entities.Operator{
			Username:     username,
			PasswordHash: passwordHash,
			Role:         "operator",
		},
		jwtSecret: []byte(secret),
		ttl:       12 * time.Hour,
		now:       time.Now,
	}
}

func (uc *AuthUsecase) Login(username, password string) (string, error) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(uc.operator.Username)) != 1 {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(uc.operator.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  uc.operator.Username,
		"role": uc.operator.Role,
		"exp":  uc.now().Add(uc.ttl).Unix(),
	})
	signed, err := token.SignedString(uc.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
