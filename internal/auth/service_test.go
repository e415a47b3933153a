package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store used to exercise the session state machine
// without a database.
type memStore struct {
	mu        sync.Mutex
	byEmail   map[string]*User
	blacklist map[string]bool
	seq       int
}

func newMemStore() *memStore {
	return &memStore{
		byEmail:   make(map[string]*User),
		blacklist: make(map[string]bool),
	}
}

func (m *memStore) Users(context.Context) UserStore          { return (*memUsers)(m) }
func (m *memStore) Blacklist(context.Context) BlacklistStore { return (*memBlacklist)(m) }

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrAlreadyExists
	}
	if u.ID == "" {
		m.seq++
		u.ID = string(rune('A' + m.seq))
	}
	clone := *u
	m.byEmail[u.Email] = &clone
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == id {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (m *memUsers) SetRefreshToken(_ context.Context, userID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == userID {
			u.RefreshToken = token
			return nil
		}
	}
	return ErrNotFound
}

func (m *memUsers) RotateRefreshToken(_ context.Context, userID, previous, next string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == userID {
			if u.RefreshToken != previous {
				return false, nil
			}
			u.RefreshToken = next
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) UpdateRole(_ context.Context, userID string, role Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byEmail {
		if u.ID == userID {
			u.Role = role
			return nil
		}
	}
	return ErrNotFound
}

type memBlacklist memStore

func (m *memBlacklist) Add(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklist[token] = true
	return nil
}

func (m *memBlacklist) Contains(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist[token], nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	codec := newTestCodec(t, nil)
	svc, err := NewService(store, codec,
		WithAccessTTL(5*time.Minute),
		WithRefreshTTL(24*time.Hour),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestSignupThenLogin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	user, err := svc.Signup(ctx, "U@Test.com ", "pw1")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if user.Email != "u@test.com" {
		t.Fatalf("email not normalized: %s", user.Email)
	}
	if !user.IsActive || user.Role != RoleUser {
		t.Fatalf("unexpected defaults: active=%v role=%s", user.IsActive, user.Role)
	}

	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected non-empty token pair")
	}
	if pair.AccessToken == pair.RefreshToken {
		t.Fatal("access and refresh tokens must be distinct")
	}
	if pair.TokenType != "bearer" {
		t.Fatalf("unexpected token type: %s", pair.TokenType)
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := svc.Signup(ctx, "u@test.com", "other"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if _, err := svc.Login(ctx, "u@test.com", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	// Unknown account must fail with the identical error.
	if _, err := svc.Login(ctx, "nobody@test.com", "pw2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	store.byEmail["u@test.com"].IsActive = false

	if _, err := svc.Login(ctx, "u@test.com", "pw1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for inactive account, got %v", err)
	}
}

func TestLoginOverwritesPriorRefreshToken(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	first, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	if _, err := svc.Login(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("second Login: %v", err)
	}

	// The first session's refresh token is implicitly revoked.
	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrStaleRefreshToken) {
		t.Fatalf("expected ErrStaleRefreshToken, got %v", err)
	}
}

func TestRefreshRotationSingleUse(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	rotated, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if rotated.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}

	// Replaying the consumed token fails and defensively clears the stored
	// value, killing the rotated session too.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStaleRefreshToken) {
		t.Fatalf("expected ErrStaleRefreshToken on replay, got %v", err)
	}
	if got := store.byEmail["u@test.com"].RefreshToken; got != "" {
		t.Fatalf("expected stored refresh token cleared after replay, got %q", got)
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); !errors.Is(err, ErrStaleRefreshToken) {
		t.Fatalf("expected rotated token dead after defensive clear, got %v", err)
	}
}

func TestRefreshRejectsAccessScope(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access-scoped token, got %v", err)
	}
}

func TestCurrentUserRejectsRefreshScope(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for refresh-scoped token, got %v", err)
	}
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := svc.CurrentUser(ctx, pair.AccessToken); err != nil {
		t.Fatalf("CurrentUser before logout: %v", err)
	}
	if err := svc.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, pair.AccessToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("expected ErrRevoked after logout, got %v", err)
	}
	// Logout ends the whole session: the refresh token is cleared too.
	if _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrStaleRefreshToken) {
		t.Fatalf("expected refresh token dead after logout, got %v", err)
	}
}

func TestLogoutIsIdempotentAndBlacklistsGarbage(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	if err := svc.Logout(ctx, "not-a-real-token"); err != nil {
		t.Fatalf("Logout of garbage token: %v", err)
	}
	if err := svc.Logout(ctx, "not-a-real-token"); err != nil {
		t.Fatalf("repeated Logout: %v", err)
	}
	if !store.blacklist["not-a-real-token"] {
		t.Fatal("expected token recorded in blacklist")
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	first, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); err == nil {
		t.Fatal("old refresh token must be dead after rotation")
	}

	user, err := svc.CurrentUser(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("CurrentUser with rotated access token: %v", err)
	}
	if user.Email != "u@test.com" {
		t.Fatalf("unexpected user: %s", user.Email)
	}

	if err := svc.Logout(ctx, second.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, second.AccessToken); err == nil {
		t.Fatal("access token must be rejected after logout")
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newMemStore())

	if _, err := svc.Signup(ctx, "u@test.com", "pw1"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	pair, err := svc.Login(ctx, "u@test.com", "pw1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Refresh(ctx, pair.RefreshToken)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrStaleRefreshToken):
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins > 1 {
		t.Fatalf("expected at most one winning refresh, got %d", wins)
	}
}

func TestSetRoleRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(t, store)

	admin, err := svc.Signup(ctx, "admin@test.com", "pw1")
	if err != nil {
		t.Fatalf("Signup admin: %v", err)
	}
	target, err := svc.Signup(ctx, "target@test.com", "pw2")
	if err != nil {
		t.Fatalf("Signup target: %v", err)
	}
	if _, err := svc.SetRole(ctx, admin, target.ID, RoleModerator); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin actor, got %v", err)
	}

	store.mu.Lock()
	store.byEmail[admin.Email].Role = RoleAdmin
	store.mu.Unlock()
	admin.Role = RoleAdmin

	updated, err := svc.SetRole(ctx, admin, target.ID, RoleModerator)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if updated.Role != RoleModerator {
		t.Fatalf("role not updated: %s", updated.Role)
	}

	if _, err := svc.SetRole(ctx, admin, admin.ID, RoleUser); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for self-demotion, got %v", err)
	}
	if _, err := svc.SetRole(ctx, admin, "missing", RoleModerator); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
