package auth

import (
	"strings"
	"time"
)

// Role enumerates the account roles recognised by the service.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole normalises a stored role value, defaulting unknown input to user.
func ParseRole(raw string) Role {
	switch Role(strings.TrimSpace(strings.ToLower(raw))) {
	case RoleModerator:
		return RoleModerator
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// CanModerate reports whether the role may act on content owned by others.
func (r Role) CanModerate() bool {
	return r == RoleModerator || r == RoleAdmin
}

// User represents an account row. RefreshToken holds the literal value of the
// single currently valid refresh token, or empty when none is live.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	Role         Role
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// BlacklistEntry records an explicitly revoked access token. Entries are
// append-only; expiry checking already rejects old tokens, so pruning is a
// space optimisation, not a correctness requirement.
type BlacklistEntry struct {
	ID      string
	Token   string
	AddedAt time.Time
}

// TokenPair bundles the two credentials returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}
