package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "phoshare"

// Scope is a closed enumeration distinguishing the two token kinds. Call
// sites switch on it exhaustively instead of comparing claim strings.
type Scope string

const (
	ScopeAccess  Scope = "access"
	ScopeRefresh Scope = "refresh_token"
)

func parseScope(raw string) (Scope, error) {
	switch Scope(raw) {
	case ScopeAccess:
		return ScopeAccess, nil
	case ScopeRefresh:
		return ScopeRefresh, nil
	default:
		return "", fmt.Errorf("unknown scope %q", raw)
	}
}

// Claims is the payload carried by both token kinds.
type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenClaims is the verified, typed view returned by Decode.
type TokenClaims struct {
	Subject   string
	Scope     Scope
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies compact self-contained tokens with a shared
// secret and HS256. It is stateless: scope policy and blacklist checks are
// the session service's responsibility.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec constructs a Codec. The secret must be non-empty.
func NewCodec(secret []byte, now func() time.Time) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret is not configured")
	}
	if now == nil {
		now = time.Now
	}
	return &Codec{secret: secret, now: now}, nil
}

// Encode mints a signed token for the subject with an absolute expiry of
// now + ttl.
func (c *Codec) Encode(subject string, scope Scope, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if ttl < 0 {
		return "", errors.New("ttl must not be negative")
	}
	now := c.now().UTC()
	claims := Claims{
		Scope: string(scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry and returns the typed claims.
// Every failure surfaces as ErrInvalidToken; the wrapped cause is kept for
// logging but must never reach an external client.
func (c *Codec) Decode(raw string) (TokenClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return TokenClaims{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, fmt.Errorf("%w: claims missing", ErrInvalidToken)
	}
	if err := validateClaims(claims, c.now().UTC()); err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	scope, err := parseScope(claims.Scope)
	if err != nil {
		return TokenClaims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	out := TokenClaims{
		Subject: claims.Subject,
		Scope:   scope,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

func validateClaims(claims *Claims, now time.Time) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
