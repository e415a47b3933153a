package auth

import "errors"

// Sentinel errors for the session subsystem. The HTTP boundary collapses all
// token-class failures into a plain 401; the distinct values exist for
// internal logging and metrics only.
var (
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrRevoked            = errors.New("auth: token revoked")
	ErrStaleRefreshToken  = errors.New("auth: refresh token no longer current")
	ErrUnauthorized       = errors.New("auth: unauthorized")
)
