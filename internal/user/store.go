// Package user keeps registered accounts. Emails are stored normalized, so
// lookups ignore case and surrounding spaces.
package user

import (
	"context"
	"strings"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
)

type Store interface {
	// Create fails with errors.CodeAlreadyExists when the email is taken.
	Create(ctx context.Context, u domain.User) error
	// GetByEmail fails with errors.CodeNotFound when no account matches.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func errNotFound(cause error) *errors.Error {
	return errors.New(errors.CodeNotFound, errors.WithMessage("User not found"), errors.WithCause(cause))
}

func errAlreadyExists(cause error) *errors.Error {
	return errors.New(errors.CodeAlreadyExists, errors.WithMessage("Email already registered"), errors.WithCause(cause))
}
