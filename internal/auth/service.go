// Package auth registers accounts, checks credentials and issues the signed
// tokens that identify a user on later requests.
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/user"
)

const (
	DefaultTokenTTL = time.Hour
	DefaultCost     = 10
)

var (
	errMissingFields   = errors.New(errors.CodeInvalidArgument, errors.WithMessage("Missing required fields"))
	errInvalidRole     = errors.New(errors.CodeInvalidArgument, errors.WithMessage("Invalid role"))
	errInvalidPassword = errors.New(errors.CodeUnauthenticated, errors.WithMessage("Invalid password"))
)

type Config struct {
	Users    user.Store
	Secret   string
	TokenTTL time.Duration
	// Cost is the bcrypt cost. Tests lower it to bcrypt.MinCost.
	Cost int
	Now  func() time.Time
}

type Service struct {
	users  user.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		users:  c.Users,
		secret: []byte(c.Secret),
		ttl:    c.TokenTTL,
		cost:   c.Cost,
		now:    c.Now,
	}

	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.cost == 0 {
		s.cost = DefaultCost
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type RegisterRequest struct {
	Email    string
	Password string
	Role     string
}

// Register creates an account. The password is stored as a bcrypt hash only.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.Identity, error) {
	email := user.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" || strings.TrimSpace(req.Role) == "" {
		return nil, errMissingFields
	}

	role, ok := domain.ParseRole(req.Role)
	if !ok {
		return nil, errInvalidRole
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate user ID: %w", err)
	}

	u := domain.User{
		UserID:       id.String(),
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreateTime:   s.now(),
	}

	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	ident := u.Identity()
	return &ident, nil
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResponse struct {
	Identity   domain.Identity
	Token      string
	ExpireTime time.Time
}

// Login checks the credentials and issues a token valid for the configured TTL.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return nil, errMissingFields
	}

	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidPassword
	}

	ident := u.Identity()
	token, exp, err := s.issue(ident)
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		Identity:   ident,
		Token:      token,
		ExpireTime: exp,
	}, nil
}
