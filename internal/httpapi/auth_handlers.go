package httpapi

import (
	"errors"
	"net/http"

	"moneta.app/internal/audit"
	"moneta.app/internal/auth"
	"moneta.app/internal/paging"
	"moneta.app/internal/users"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"max=120"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string     `json:"token"`
	TokenType string     `json:"token_type"`
	ExpiresIn int64      `json:"expires_in"`
	User      users.User `json:"user"`
}

type profileRequest struct {
	Name    string `json:"name" validate:"max=120"`
	Version int64  `json:"version" validate:"required,gte=1"`
}

type passwordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	Version         int64  `json:"version" validate:"required,gte=1"`
}

type roleRequest struct {
	Role    string `json:"role" validate:"required,role"`
	Version int64  `json:"version" validate:"required,gte=1"`
}

type blockRequest struct {
	Blocked bool  `json:"blocked"`
	Version int64 `json:"version" validate:"required,gte=1"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bind(w, r, &req) {
		return
	}
	u, err := a.users.Register(r.Context(), users.RegisterInput{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "auth.register", map[string]any{"user_id": u.ID, "email": u.Email})
	writeJSON(w, http.StatusCreated, u)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	token, u, err := a.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) || errors.Is(err, users.ErrBlocked) {
			audit.Record(r.Context(), "auth.login.failed", map[string]any{
				"email":  users.NormalizeEmail(req.Email),
				"reason": err.Error(),
			})
		}
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "auth.login", map[string]any{"user_id": u.ID, "role": u.Role})
	w.Header().Set(authHeader, bearer+token)
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresIn: int64(a.tokenTTL.Seconds()),
		User:      u,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.users.Logout(r.Context()); err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleGetMe(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.UserIDFromContext(r.Context())
	u, err := a.users.Get(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !bind(w, r, &req) {
		return
	}
	id, _ := auth.UserIDFromContext(r.Context())
	u, err := a.users.UpdateProfile(r.Context(), id, req.Name, req.Version)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !bind(w, r, &req) {
		return
	}
	id, _ := auth.UserIDFromContext(r.Context())
	if _, err := a.users.ChangePassword(r.Context(), id, req.CurrentPassword, req.NewPassword, req.Version); err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "user.password.changed", nil)
	w.WriteHeader(http.StatusNoContent)
}

// --- admin ---

func (a *API) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	req, err := paging.FromQuery(r.URL.Query())
	if err != nil {
		handleError(w, r, err)
		return
	}
	page, err := a.users.List(r.Context(), req)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (a *API) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req roleRequest
	if !bind(w, r, &req) {
		return
	}
	role, _ := auth.ParseRole(req.Role)
	u, err := a.users.SetRole(r.Context(), id, role, req.Version)
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "admin.user.role", map[string]any{"target_user_id": id, "new_role": role})
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handleAdminSetBlocked(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		handleError(w, r, err)
		return
	}
	var req blockRequest
	if !bind(w, r, &req) {
		return
	}
	u, err := a.users.SetBlocked(r.Context(), id, req.Blocked, req.Version)
	if err != nil {
		handleError(w, r, err)
		return
	}
	audit.Record(r.Context(), "admin.user.block", map[string]any{"target_user_id": id, "blocked": req.Blocked})
	writeJSON(w, http.StatusOK, u)
}
