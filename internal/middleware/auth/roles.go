package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medlab/diagnosis-backend/internal/models"
)

func hasRole(user *models.User, allowed []string) bool {
	if !user.IsActive {
		return false
	}
	for _, role := range allowed {
		if user.Role == role {
			return true
		}
	}
	return false
}

// RequireRoles gates a route on role membership. It must run after
// RequireAuth; a missing identity is a 401, an insufficient one a 403.
func RequireRoles(allowed ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := CurrentUser(c)
			if user == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			if !hasRole(user, allowed) {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
			}
			return next(c)
		}
	}
}
