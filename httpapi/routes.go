package httpapi

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the auth endpoints on e. Public login routes live
// under /api/auth, account two-factor management under /api/account, and
// the platform toggle under /api/admin.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	auth := e.Group("/api/auth")
	auth.POST("/login", h.Login)
	auth.POST("/login/code", h.ConfirmLogin)
	auth.POST("/logout", h.Logout)

	account := e.Group("/api/account", RequireSession(h.Engine.Sessions(), h.CookieName))
	account.GET("/2fa", h.TwoFactorStatus)
	account.POST("/2fa/setup", h.BeginSetup)
	account.POST("/2fa/confirm", h.ConfirmSetup)
	account.POST("/2fa/disable", h.Disable)

	admin := e.Group("/api/admin", RequireSession(h.Engine.Sessions(), h.CookieName), RequireAdmin())
	admin.GET("/2fa", h.SystemStatus)
	admin.PUT("/2fa", h.SetSystemStatus)
	admin.POST("/accounts/:id/2fa/disable", h.ForceDisable)
}
