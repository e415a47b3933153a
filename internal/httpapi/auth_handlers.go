package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"phoshare.org/internal/audit"
	"phoshare.org/internal/auth"
	"phoshare.org/internal/obs"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		IsActive:  u.IsActive,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := a.auth.Signup(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.AuthOperation("signup", "fail")
		switch {
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "account already registered")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.AuthOperation("signup", "ok")
	_ = audit.LogEvent(r.Context(), "auth.signup", map[string]any{
		"user_id": user.ID,
		"email":   user.Email,
	})
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// form-encoded credentials, OAuth2 password-grant shape
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed form body")
		return
	}
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	if username == "" || password == "" {
		writeError(w, r, http.StatusBadRequest, "username and password are required")
		return
	}

	pair, err := a.auth.Login(r.Context(), username, password)
	if err != nil {
		obs.AuthOperation("login", "fail")
		obs.AuthFailure("login", failureReason(err))
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			unauthorized(w, r, "incorrect username or password")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.AuthOperation("login", "ok")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": strings.ToLower(username),
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		unauthorized(w, r, err.Error())
		return
	}

	pair, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		obs.AuthOperation("refresh", "fail")
		obs.AuthFailure("refresh", failureReason(err))
		switch {
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrStaleRefreshToken),
			errors.Is(err, auth.ErrUnauthorized):
			unauthorized(w, r, "could not validate credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	obs.AuthOperation("refresh", "ok")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"token": obs.TokenFingerprint(pair.RefreshToken),
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		unauthorized(w, r, err.Error())
		return
	}

	if err := a.auth.Logout(r.Context(), token); err != nil {
		obs.AuthOperation("logout", "fail")
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	obs.AuthOperation("logout", "ok")
	obs.TokenRevoked()
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{
		"token": obs.TokenFingerprint(token),
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "USER_IS_LOGOUT"})
}

type setRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	id, ok := strings.CutSuffix(path, "/role")
	if !ok || id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}

	actor, okP := principal(w, r)
	if !okP {
		return
	}
	var req setRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := auth.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	switch role {
	case auth.RoleUser, auth.RoleModerator, auth.RoleAdmin:
	default:
		writeError(w, r, http.StatusBadRequest, "role must be user, moderator or admin")
		return
	}

	user, err := a.auth.SetRole(r.Context(), actor, id, role)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			writeError(w, r, http.StatusForbidden, "admin role required")
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "user not found")
		default:
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.role.set", map[string]any{
		"user_id":  user.ID,
		"role":     string(user.Role),
		"actor_id": actor.ID,
	})
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	user, ok := principal(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}
