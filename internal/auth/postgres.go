package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"phoshare.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) Blacklist(context.Context) BlacklistStore { return &blacklistStore{db: s.db} }

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, is_active, role) values($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.PasswordHash, u.IsActive, string(u.Role),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_active, role, coalesce(refresh_token, ''), created_at, updated_at
		 from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, is_active, role, coalesce(refresh_token, ''), created_at, updated_at
		 from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) SetRefreshToken(ctx context.Context, userID, token string) error {
	value := sql.NullString{String: token, Valid: token != ""}
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$2, updated_at=now() where id=$1`, userID, value)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *userStore) RotateRefreshToken(ctx context.Context, userID, previous, next string) (bool, error) {
	// Compare-and-overwrite: the row-level write is the single source of
	// truth for which refresh token is current, so concurrent refreshes for
	// one user cannot both win.
	res, err := s.db.ExecContext(ctx,
		`update users set refresh_token=$3, updated_at=now() where id=$1 and refresh_token=$2`,
		userID, previous, next)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *userStore) UpdateRole(ctx context.Context, userID string, role Role) error {
	res, err := s.db.ExecContext(ctx,
		`update users set role=$2, updated_at=now() where id=$1`, userID, string(role))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.IsActive, &role, &u.RefreshToken, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = ParseRole(role)
	return &u, nil
}

// Blacklist store ----------------------------------------------------------
type blacklistStore struct{ db *sql.DB }

func (s *blacklistStore) Add(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`insert into token_blacklist(id, token, added_at) values($1,$2,now()) on conflict (token) do nothing`,
		ids.New(), token)
	return err
}

func (s *blacklistStore) Contains(ctx context.Context, token string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from token_blacklist where token=$1)`, token).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// isUniqueViolation reports whether the driver error is a unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	type sqlState interface{ SQLState() string }
	var state sqlState
	if errors.As(err, &state) {
		return state.SQLState() == "23505"
	}
	return strings.Contains(err.Error(), "23505")
}
