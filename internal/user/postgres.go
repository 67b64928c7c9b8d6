package user

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/mockinterview/internal/domain"
)

const codeUniqueViolation = "23505"

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the users table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS users (
	user_id       TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	create_time   TIMESTAMPTZ NOT NULL
);`

	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, u domain.User) error {
	const stmt = `INSERT INTO users (user_id, email, password_hash, role, create_time) VALUES ($1, $2, $3, $4, $5);`

	_, err := s.db.Exec(ctx, stmt, u.UserID, NormalizeEmail(u.Email), u.PasswordHash, string(u.Role), u.CreateTime)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errAlreadyExists(err)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const stmt = `SELECT user_id, email, password_hash, role, create_time FROM users WHERE email = $1;`

	var (
		u    domain.User
		role string
	)
	err := s.db.QueryRow(ctx, stmt, NormalizeEmail(email)).Scan(&u.UserID, &u.Email, &u.PasswordHash, &role, &u.CreateTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errNotFound(err)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}

	u.Role = domain.Role(role)
	return &u, nil
}
