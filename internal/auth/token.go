package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
)

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Service) issue(id domain.Identity) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.ttl)

	c := claims{
		Email: id.Email,
		Role:  string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}

	return token, exp, nil
}

// Verify checks the token signature and expiry and returns who it was issued to.
func (s *Service) Verify(token string) (*domain.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessage("Invalid token"), errors.WithCause(err))
	}

	role, ok := domain.ParseRole(c.Role)
	if !ok || c.Subject == "" {
		return nil, errors.New(errors.CodeUnauthenticated, errors.WithMessage("Invalid token"))
	}

	return &domain.Identity{
		UserID: c.Subject,
		Email:  c.Email,
		Role:   role,
	}, nil
}
