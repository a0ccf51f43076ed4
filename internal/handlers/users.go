package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/repo"
	"github.com/medlab/diagnosis-backend/internal/util"
)

// UserHandler exposes the admin-only user management endpoints. Routes are
// gated to the ADMIN role at registration.
type UserHandler struct {
	Users *repo.UserRepo
}

func (h *UserHandler) ListUsers(c echo.Context) error {
	ctx := c.Request().Context()

	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), util.DefaultPageSize)
	offset, limit := util.Calculate(page, size)

	var isActive *bool
	if v := c.QueryParam("is_active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid is_active filter")
		}
		isActive = &b
	}

	users, err := h.Users.List(ctx, offset, limit, isActive)
	if err != nil {
		logging.FromContext(ctx).Error("list users failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return c.JSON(http.StatusOK, echo.Map{
		"data": users,
		"meta": echo.Map{"page": page, "size": limit},
	})
}

func (h *UserHandler) GetUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	user, err := h.Users.FindByID(ctx, id)
	if err != nil {
		if err == repo.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		logging.FromContext(ctx).Error("get user failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) UpdateUser(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "admin_update_user")

	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req struct {
		FullName *string `json:"full_name"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.FullName != nil && (len(*req.FullName) < 2 || len(*req.FullName) > 100) {
		return echo.NewHTTPError(http.StatusBadRequest, "full_name must be 2-100 characters")
	}
	if req.Role != nil && !models.ValidRole(*req.Role) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid role")
	}

	user, err := h.Users.Update(ctx, id, repo.UserUpdate{
		FullName: req.FullName,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		if err == repo.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		l.Error("update user failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) setActive(c echo.Context, active bool) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	user, err := h.Users.SetActive(ctx, id, active)
	if err != nil {
		if err == repo.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		logging.FromContext(ctx).Error("set active failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	// A deactivated user must not be able to refresh either.
	if !active {
		if _, err := h.Users.ClearRefreshToken(ctx, id); err != nil {
			logging.FromContext(ctx).Error("clear refresh token failed", "error", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
		}
	}
	return c.JSON(http.StatusOK, user)
}

func (h *UserHandler) ActivateUser(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *UserHandler) DeactivateUser(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *UserHandler) DeleteUser(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := parseID(c)
	if err != nil {
		return err
	}

	deleted, err := h.Users.Delete(ctx, id)
	if err != nil {
		logging.FromContext(ctx).Error("delete user failed", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return c.NoContent(http.StatusNoContent)
}
