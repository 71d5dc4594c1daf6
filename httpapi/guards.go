package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/scriptbay/authcore/session"
)

const sessionContextKey = "authcore.session"

// sessionFromEcho returns the claims RequireSession stored on the request.
func sessionFromEcho(c echo.Context) (*session.Claims, bool) {
	claims, ok := c.Get(sessionContextKey).(*session.Claims)
	return claims, ok
}

// RequireSession verifies the session cookie (or a bearer token for API
// clients) and stores the claims on the context. Requests without a valid
// session get 401.
func RequireSession(sessions *session.Manager, cookieName string) echo.MiddlewareFunc {
	if cookieName == "" {
		cookieName = "session"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := tokenFromRequest(c, cookieName)
			if token == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			claims, err := sessions.Parse(token)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			c.Set(sessionContextKey, claims)
			return next(c)
		}
	}
}

// RequireAdmin rejects authenticated non-admin sessions with 403. It must
// run after [RequireSession].
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := sessionFromEcho(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !strings.EqualFold(claims.Role, "admin") {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
			}
			return next(c)
		}
	}
}

func tokenFromRequest(c echo.Context, cookieName string) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	const bearer = "Bearer "
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, bearer) {
		return header[len(bearer):]
	}
	return ""
}
