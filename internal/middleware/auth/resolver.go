package auth

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medlab/diagnosis-backend/internal/logging"
	"github.com/medlab/diagnosis-backend/internal/models"
	"github.com/medlab/diagnosis-backend/internal/repo"
	"github.com/medlab/diagnosis-backend/internal/tokens"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	userContextKey = "currentUser"
)

// Resolver turns a bearer token (header or cookie) into the current user.
type Resolver struct {
	Users *repo.UserRepo
	Codec *tokens.Codec
}

// RequireAuth rejects the request unless it carries a valid access token
// for a currently active user. Token failures are never detailed to the
// client.
func (r *Resolver) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx).With("middleware", "require_auth")

		token := ExtractToken(c)
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}

		claims, err := r.Codec.Decode(token, tokens.TypeAccess)
		if err != nil {
			l.Warn("token rejected", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			l.Warn("token rejected", "reason", "bad subject")
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		// Signature alone is not enough: the row must still exist and be
		// active, so deactivation takes effect before token expiry.
		user, err := r.Users.FindByID(ctx, userID)
		if err != nil || !user.IsActive {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		SetUser(c, user)
		return next(c)
	}
}

// ExtractToken looks in the Authorization header first, then falls back to
// the access-token cookie.
func ExtractToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	if cookie, err := c.Cookie(AccessCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func SetUser(c echo.Context, user *models.User) {
	c.Set(userContextKey, user)
}

func CurrentUser(c echo.Context) *models.User {
	if user, ok := c.Get(userContextKey).(*models.User); ok {
		return user
	}
	return nil
}
