package user_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/mockinterview/internal/domain"
	"github.com/victornm/mockinterview/internal/errors"
	"github.com/victornm/mockinterview/internal/user"
)

func TestMemoryStore(t *testing.T) {
	type outputs struct {
		createErr error
		got       *domain.User
		getErr    error
	}

	alice := domain.User{
		UserID:       "u1",
		Email:        "Alice@Example.com ",
		PasswordHash: "hash",
		Role:         domain.RoleCandidate,
		CreateTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	tests := map[string]struct {
		arrange func(s *user.MemoryStore) outputs
		assert  func(t *testing.T, out outputs)
	}{
		"should store the email normalized": {
			arrange: func(s *user.MemoryStore) outputs {
				err := s.Create(context.Background(), alice)
				u, getErr := s.GetByEmail(context.Background(), "alice@example.com")
				return outputs{createErr: err, got: u, getErr: getErr}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.createErr)
				require.NoError(t, out.getErr)
				assert.Equal(t, "alice@example.com", out.got.Email)
				assert.Equal(t, "u1", out.got.UserID)
			},
		},
		"should find the user ignoring case": {
			arrange: func(s *user.MemoryStore) outputs {
				_ = s.Create(context.Background(), alice)
				u, err := s.GetByEmail(context.Background(), "  ALICE@example.COM")
				return outputs{got: u, getErr: err}
			},
			assert: func(t *testing.T, out outputs) {
				require.NoError(t, out.getErr)
				assert.Equal(t, domain.RoleCandidate, out.got.Role)
			},
		},
		"should reject a duplicate email": {
			arrange: func(s *user.MemoryStore) outputs {
				_ = s.Create(context.Background(), alice)
				dup := alice
				dup.UserID = "u2"
				dup.Email = "alice@EXAMPLE.com"
				return outputs{createErr: s.Create(context.Background(), dup)}
			},
			assert: func(t *testing.T, out outputs) {
				assert.True(t, errors.Is(out.createErr, errors.CodeAlreadyExists))
				assert.Equal(t, "Email already registered", errors.Convert(out.createErr).Message)
			},
		},
		"should report an unknown email as not found": {
			arrange: func(s *user.MemoryStore) outputs {
				u, err := s.GetByEmail(context.Background(), "bob@example.com")
				return outputs{got: u, getErr: err}
			},
			assert: func(t *testing.T, out outputs) {
				assert.Nil(t, out.got)
				assert.True(t, errors.Is(out.getErr, errors.CodeNotFound))
				assert.Equal(t, "User not found", errors.Convert(out.getErr).Message)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			tt.assert(t, tt.arrange(user.NewMemoryStore()))
		})
	}
}
