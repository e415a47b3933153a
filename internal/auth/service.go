package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 24 * time.Hour * 7
)

// Service orchestrates the credential session lifecycle: signup, login,
// refresh-token rotation, logout and bearer-token resolution. It is
// constructed once at process start and passed by handle to the request
// layer; it holds no mutable state beyond its collaborators.
type Service struct {
	store Store
	codec *Codec
	now   func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs the session service.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	svc := &Service{
		store:      store,
		codec:      codec,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Signup registers a new active account with the default role. No tokens are
// issued; the caller logs in separately.
func (s *Service) Signup(ctx context.Context, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, email); err == nil {
		return nil, ErrAlreadyExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     true,
		Role:         RoleUser,
	}
	if err := users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login authenticates credentials and mints an access/refresh pair. The
// persisted refresh token is overwritten, implicitly revoking any prior one.
// Unknown email, wrong password and inactive account all return the same
// ErrInvalidCredentials so the caller cannot tell which check failed.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}

	pair, err := s.mintPair(user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Users(ctx).SetRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// Refresh rotates a refresh token: the presented token must carry the
// refresh scope and exactly match the user's stored current value. On a
// mismatch the stored value is cleared, forcing re-login, as a defense
// against replay of a leaked token. Rotation uses a compare-and-overwrite
// store write, so concurrent refreshes for one user produce exactly one
// winner; losers observe ErrStaleRefreshToken.
func (s *Service) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Scope != ScopeRefresh {
		return TokenPair{}, fmt.Errorf("%w: scope %q where refresh is required", ErrInvalidToken, claims.Scope)
	}

	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrUnauthorized
		}
		return TokenPair{}, err
	}
	if user.RefreshToken != raw {
		// Signed and unexpired, but not current: either already rotated or
		// never issued. Clear the stored value to force a fresh login.
		_ = users.SetRefreshToken(ctx, user.ID, "")
		return TokenPair{}, ErrStaleRefreshToken
	}

	pair, err := s.mintPair(user.Email)
	if err != nil {
		return TokenPair{}, err
	}
	rotated, err := users.RotateRefreshToken(ctx, user.ID, raw, pair.RefreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if !rotated {
		// A concurrent refresh won the row write between our read and this
		// update; the presented token is no longer current.
		return TokenPair{}, ErrStaleRefreshToken
	}
	return pair, nil
}

// Logout revokes the presented access token by recording it in the
// blacklist. Blacklisting is unconditional and idempotent: an expired or
// even malformed token is harmless to record. When the token decodes, the
// subject's stored refresh token is also cleared so that logout ends the
// whole session rather than leaving the refresh token live.
func (s *Service) Logout(ctx context.Context, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidInput)
	}
	if err := s.store.Blacklist(ctx).Add(ctx, raw); err != nil {
		return err
	}
	claims, err := s.codec.Decode(raw)
	if err != nil {
		// Undecodable tokens are blacklisted all the same.
		return nil
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		return nil
	}
	_ = s.store.Users(ctx).SetRefreshToken(ctx, user.ID, "")
	return nil
}

// CurrentUser resolves a bearer access token to the account it was issued
// for. It is the capability every protected endpoint depends on.
func (s *Service) CurrentUser(ctx context.Context, raw string) (*User, error) {
	claims, err := s.codec.Decode(raw)
	if err != nil {
		return nil, err
	}
	if claims.Scope != ScopeAccess {
		return nil, fmt.Errorf("%w: scope %q where access is required", ErrInvalidToken, claims.Scope)
	}
	revoked, err := s.store.Blacklist(ctx).Contains(ctx, raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// SetRole changes another account's role. Admin only; admins cannot demote
// themselves, which keeps at least the acting admin in place.
func (s *Service) SetRole(ctx context.Context, actor *User, userID string, role Role) (*User, error) {
	if actor == nil || actor.Role != RoleAdmin {
		return nil, ErrUnauthorized
	}
	if actor.ID == userID {
		return nil, fmt.Errorf("%w: cannot change own role", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	if err := users.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	return users.Find(ctx, userID)
}

func (s *Service) mintPair(subject string) (TokenPair, error) {
	access, err := s.codec.Encode(subject, ScopeAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.codec.Encode(subject, ScopeRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
