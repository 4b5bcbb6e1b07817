package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/qr-attendance/internal/handler"
	"github.com/iliyamo/qr-attendance/internal/middleware"
	"github.com/iliyamo/qr-attendance/internal/model"
	"github.com/iliyamo/qr-attendance/internal/service"
)

// Guard bundles what the protected groups need to authenticate a request
// and check its roles.
type Guard struct {
	JWTSecret string
	Roles     service.RoleProvider
	Log       *zap.Logger
}

func (g Guard) chain(roles ...string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		middleware.JWTAuth(g.JWTSecret),
		middleware.RequireRole(g.Roles, g.Log, roles...),
	}
}

// RegisterRoutes registers routes that do not require authentication:
// liveness at /healthz and database readiness at /readyz.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterAuth registers login, refresh and logout under /v1/auth and the
// authenticated /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Logout only needs the refresh token in the body, no access token.
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterEmployee registers the scan, today and history endpoints for the
// employee role.  scanLimit guards only the scan endpoint.
func RegisterEmployee(e *echo.Echo, h *handler.AttendanceHandler, guard Guard, scanLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/attendance", guard.chain(model.RoleEmployee)...)
	g.POST("/scan", h.Scan, scanLimit)
	g.GET("/today", h.Today)
	g.GET("/history", h.History)
}

// RegisterHR registers attendance monitoring and corrections.  Admins may
// use them too.
func RegisterHR(e *echo.Echo, h *handler.HRAttendanceHandler, guard Guard) {
	g := e.Group("/v1/hr/attendance", guard.chain(model.RoleHR, model.RoleAdmin)...)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Patch)
}

// RegisterAdmin registers the QR display and rotation endpoints.
func RegisterAdmin(e *echo.Echo, h *handler.QrHandler, guard Guard) {
	g := e.Group("/v1/admin/qr", guard.chain(model.RoleAdmin)...)
	g.GET("/current", h.Current)
	g.POST("/rotate", h.Rotate)
}
