package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/service"
)

// RequireRole lets the request through when the authenticated user holds
// at least one of roles.  Membership is read from rp on every request, so
// revoking a role takes effect before the access token expires.
func RequireRole(rp service.RoleProvider, log *zap.Logger, roles ...string) echo.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, ok := UserID(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			ctx := c.Request().Context()
			for _, role := range roles {
				has, err := rp.HasRole(ctx, uid, role)
				if err != nil {
					log.Error("role lookup failed", zap.Uint64("user_id", uid), zap.String("role", role), zap.Error(err))
					return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage_unavailable"})
				}
				if has {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}
