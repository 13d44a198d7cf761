package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"pharmatrack/m/domain"
)

type UserStore struct {
	q Querier
}

func NewUserStore(q Querier) *UserStore {
	return &UserStore{q: q}
}

const userColumns = `id, name, email, password_hash, role, active, created_at`

// Create stores a user whose password is already hashed. Emails are case-insensitive.
func (s *UserStore) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	id, err := insertReturningID(ctx, s.q,
		`INSERT INTO users (name, email, password_hash, role, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.PasswordHash, string(u.Role), u.Active, utcNow(),
	)
	if err != nil {
		return nil, wrapConflict(err, "insert user")
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *UserStore) get(ctx context.Context, query string, arg any) (*domain.User, error) {
	var u domain.User
	err := sqlx.GetContext(ctx, s.q, &u, s.q.Rebind(query), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrap(domain.ErrNotFound, "user")
	}
	if err != nil {
		return nil, errors.Wrap(err, "get user")
	}
	return &u, nil
}
