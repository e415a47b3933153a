package auth

import "context"

// Store describes persistence operations required by the session subsystem.
// All writes are atomic at row granularity; no operation needs a cross-row
// transaction.
type Store interface {
	Users(ctx context.Context) UserStore
	Blacklist(ctx context.Context) BlacklistStore
}

// UserStore manages account rows.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// SetRefreshToken unconditionally overwrites the user's current refresh
	// token; an empty value clears it.
	SetRefreshToken(ctx context.Context, userID, token string) error
	// RotateRefreshToken replaces the stored refresh token only if it still
	// equals previous. It returns false when the row was not updated, which
	// covers both "already rotated" and "never issued".
	RotateRefreshToken(ctx context.Context, userID, previous, next string) (bool, error)
	UpdateRole(ctx context.Context, userID string, role Role) error
}

// BlacklistStore is the append-only record of revoked access tokens.
type BlacklistStore interface {
	Add(ctx context.Context, token string) error
	Contains(ctx context.Context, token string) (bool, error)
}

// WithBlacklist returns a Store that serves users from base but revocation
// lookups from bl, which is how the Redis cache is layered over Postgres.
func WithBlacklist(base Store, bl BlacklistStore) Store {
	return &overlayStore{base: base, blacklist: bl}
}

type overlayStore struct {
	base      Store
	blacklist BlacklistStore
}

func (s *overlayStore) Users(ctx context.Context) UserStore { return s.base.Users(ctx) }

func (s *overlayStore) Blacklist(context.Context) BlacklistStore { return s.blacklist }
