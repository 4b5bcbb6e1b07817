package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	ctxUserID = "user_id"
	ctxRoles  = "roles"
)

// UserID returns the authenticated user's id, or false when the request
// did not pass JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(ctxUserID).(uint64)
	return id, ok && id != 0
}

// TokenRoles returns the roles carried by the access token.
func TokenRoles(c echo.Context) []string {
	roles, _ := c.Get(ctxRoles).([]string)
	return roles
}

// SetIdentity stores an authenticated identity on c.  JWTAuth calls it;
// tests use it to skip token signing.
func SetIdentity(c echo.Context, userID uint64, roles []string) {
	c.Set(ctxUserID, userID)
	c.Set(ctxRoles, roles)
}

// rateSubject names the caller for rate limiting keys.
func rateSubject(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
