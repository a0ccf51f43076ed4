package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medlab/diagnosis-backend/internal/events"
	"github.com/medlab/diagnosis-backend/internal/hash"
	"github.com/medlab/diagnosis-backend/internal/logging"
	authmw "github.com/medlab/diagnosis-backend/internal/middleware/auth"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/repo"
	"github.com/medlab/diagnosis-backend/internal/tokens"
)

type AuthHandler struct {
	Users    *repo.UserRepo
	Codec    *tokens.Codec
	Producer *events.Producer

	CookieSecure   bool
	CookieSameSite http.SameSite
}

func (h *AuthHandler) newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	}
}

func (h *AuthHandler) clearCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: h.CookieSameSite,
	}
}

func (h *AuthHandler) publish(c echo.Context, topic, key string, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "error", err)
	}
}

func (h *AuthHandler) Signup(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_signup")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("signup failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	if len(req.Username) < 4 || len(req.Username) > 50 {
		return echo.NewHTTPError(http.StatusBadRequest, "username must be 4-50 characters")
	}
	if len(req.Password) < 6 || len(req.Password) > 128 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be 6-128 characters")
	}
	if len(req.FullName) < 2 || len(req.FullName) > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "full_name must be 2-100 characters")
	}
	if !models.ValidRole(req.Role) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("signup failed", "status", 500, "reason", "cannot hash the password", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user, err := h.Users.Create(ctx, req.Username, pwHash, req.FullName, req.Role)
	if err != nil {
		if err == repo.ErrDuplicateUsername {
			l.Warn("signup failed", "status", 400, "reason", "duplicate username")
			return echo.NewHTTPError(http.StatusBadRequest, "username already registered")
		}
		l.Error("signup failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	h.publish(c, "user_events", user.ID.String(), map[string]any{
		"type":     "user_registered",
		"user_id":  user.ID,
		"username": user.Username,
	})

	return c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		l.Warn("login failed", "status", 400, "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	// Same response whether the username is unknown, the password wrong
	// or the account deactivated.
	user, err := h.Users.FindByUsername(ctx, req.Username)
	if err != nil || !user.IsActive || !hash.CheckPassword(user.PasswordHash, req.Password) {
		l.Warn("login failed", "status", 401)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid username or password")
	}

	accessToken, accessExp, err := h.Codec.Issue(user.ID.String(), user.Username, user.Role, tokens.TypeAccess)
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	refreshToken, refreshExp, err := h.Codec.Issue(user.ID.String(), user.Username, user.Role, tokens.TypeRefresh)
	if err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// Overwrites any previous refresh token: one session per user.
	if _, err := h.Users.StoreRefreshToken(ctx, user.ID, refreshToken, refreshExp); err != nil {
		l.Error("login failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(h.newCookie(authmw.AccessCookie, accessToken, h.Codec.AccessExpire))
	c.SetCookie(h.newCookie(authmw.RefreshCookie, refreshToken, h.Codec.RefreshExpire))

	h.publish(c, "user_events", user.ID.String(), map[string]any{
		"type":     "user_logged_in",
		"user_id":  user.ID,
		"username": user.Username,
	})

	l.Info("login successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    int(time.Until(accessExp).Seconds()),
	})
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = c.Bind(&req)

	token := req.RefreshToken
	if token == "" {
		if cookie, err := c.Cookie(authmw.RefreshCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	claims, err := h.Codec.Decode(token, tokens.TypeRefresh)
	if err != nil {
		l.Warn("refresh failed", "status", 401, "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	// The signature is necessary but not sufficient: the token must also
	// be the one currently stored for the user. Logout and re-login both
	// invalidate older tokens here.
	user, err := h.Users.FindByValidRefreshToken(ctx, token)
	if err != nil {
		l.Warn("refresh failed", "status", 401, "reason", "token not stored")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}
	if user.ID.String() != claims.Subject {
		l.Warn("refresh failed", "status", 401, "reason", "subject mismatch")
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	// A new access token only; the refresh token is not rotated.
	accessToken, accessExp, err := h.Codec.Issue(user.ID.String(), user.Username, user.Role, tokens.TypeAccess)
	if err != nil {
		l.Error("refresh failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(h.newCookie(authmw.AccessCookie, accessToken, h.Codec.AccessExpire))

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": accessToken,
		"token_type":   "bearer",
		"expires_in":   int(time.Until(accessExp).Seconds()),
	})
}

func (h *AuthHandler) Logout(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_logout")

	user := authmw.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	// Clear-if-present: a second logout is as successful as the first.
	if _, err := h.Users.ClearRefreshToken(ctx, user.ID); err != nil {
		l.Error("logout failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(h.clearCookie(authmw.AccessCookie))
	c.SetCookie(h.clearCookie(authmw.RefreshCookie))

	l.Info("logout successful", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

func (h *AuthHandler) Me(c echo.Context) error {
	user := authmw.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *AuthHandler) UpdateMe(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_update_me")

	user := authmw.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		FullName string `json:"full_name"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if len(req.FullName) < 2 || len(req.FullName) > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "full_name must be 2-100 characters")
	}

	// Self-service updates touch the display name only.
	updated, err := h.Users.Update(ctx, user.ID, repo.UserUpdate{FullName: &req.FullName})
	if err != nil {
		if err == repo.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("profile update failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_change_password")

	user := authmw.CurrentUser(c)
	if user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if len(req.NewPassword) < 6 || len(req.NewPassword) > 128 {
		return echo.NewHTTPError(http.StatusBadRequest, "password must be 6-128 characters")
	}

	if !hash.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		l.Warn("change password failed", "status", 400, "user_id", user.ID)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid current password")
	}

	pwHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		l.Error("change password failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	if _, err := h.Users.SetPasswordHash(ctx, user.ID, pwHash); err != nil {
		l.Error("change password failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// Force re-login everywhere else.
	if _, err := h.Users.ClearRefreshToken(ctx, user.ID); err != nil {
		l.Error("change password failed", "status", 500, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	l.Info("password changed", "user_id", user.ID)
	return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}
