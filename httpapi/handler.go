// Package httpapi exposes the authentication engine over JSON endpoints
// for the marketplace frontend. Handlers translate engine sentinel errors
// into HTTP statuses and never leak which credential check failed.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	authcore "github.com/scriptbay/authcore"
)

// Handler bundles the engine dependencies for the auth endpoints.
type Handler struct {
	Engine     *authcore.Engine
	CookieName string
	// SecureCookies marks session cookies Secure; leave off only for
	// local development over plain HTTP.
	SecureCookies bool
}

func NewHandler(engine *authcore.Engine) *Handler {
	return &Handler{
		Engine:        engine,
		CookieName:    "session",
		SecureCookies: true,
	}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TotpCode string `json:"totp_code,omitempty"`
}

type confirmLoginReq struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
}

type identityPart struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role"`
}

type loginResp struct {
	User              identityPart `json:"user"`
	TwoFactorRequired bool         `json:"two_factor_required,omitempty"`
	ChallengeID       string       `json:"challenge_id,omitempty"`
}

// Login handles POST /api/auth/login. Accounts with two-factor enabled
// get a challenge ID back instead of a session unless a TOTP code was
// sent inline.
func (h *Handler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	ctx := requestContext(c)
	var (
		result *authcore.LoginResult
		err    error
	)
	if req.TotpCode != "" {
		result, err = h.Engine.LoginWithCode(ctx, req.Email, req.Password, req.TotpCode)
	} else {
		result, err = h.Engine.Login(ctx, req.Email, req.Password)
	}
	if err != nil {
		if errors.Is(err, authcore.ErrTwoFactorRequired) && result != nil {
			return c.JSON(http.StatusOK, loginResp{
				User:              identityToPart(result.Identity),
				TwoFactorRequired: true,
				ChallengeID:       result.ChallengeID,
			})
		}
		return h.writeAuthError(c, err)
	}

	if result.TwoFactorRequired {
		return c.JSON(http.StatusOK, loginResp{
			User:              identityToPart(result.Identity),
			TwoFactorRequired: true,
			ChallengeID:       result.ChallengeID,
		})
	}

	h.setSessionCookie(c, result.Token)
	return c.JSON(http.StatusOK, loginResp{User: identityToPart(result.Identity)})
}

// ConfirmLogin handles POST /api/auth/login/code, completing a pending
// two-factor challenge with a TOTP or backup code.
func (h *Handler) ConfirmLogin(c echo.Context) error {
	var req confirmLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ChallengeID == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "challenge_id and code required"})
	}

	result, err := h.Engine.ConfirmLogin(requestContext(c), req.ChallengeID, req.Code)
	if err != nil {
		return h.writeAuthError(c, err)
	}

	h.setSessionCookie(c, result.Token)
	return c.JSON(http.StatusOK, loginResp{User: identityToPart(result.Identity)})
}

// Logout handles POST /api/auth/logout by clearing the session cookie.
// Tokens stay valid until expiry; the cookie is the only thing revoked.
func (h *Handler) Logout(c echo.Context) error {
	h.clearSessionCookie(c)
	return c.NoContent(http.StatusNoContent)
}

type twoFactorStatusResp struct {
	Enabled        bool       `json:"enabled"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

// TwoFactorStatus handles GET /api/account/2fa.
func (h *Handler) TwoFactorStatus(c echo.Context) error {
	claims, ok := sessionFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	status, err := h.Engine.TwoFactorStatus(requestContext(c), claims.Subject)
	if err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, twoFactorStatusResp{
		Enabled:        status.Enabled,
		LastVerifiedAt: status.LastVerifiedAt,
	})
}

type setupReq struct {
	Password string `json:"password"`
}

type setupResp struct {
	Secret      string   `json:"secret"`
	OtpauthURI  string   `json:"otpauth_uri"`
	BackupCodes []string `json:"backup_codes"`
}

// BeginSetup handles POST /api/account/2fa/setup. The response is the
// only time the secret and backup codes are ever sent to the client.
func (h *Handler) BeginSetup(c echo.Context) error {
	claims, ok := sessionFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req setupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}

	setup, err := h.Engine.BeginTwoFactorSetup(requestContext(c), claims.Subject, req.Password)
	if err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, setupResp{
		Secret:      setup.Secret,
		OtpauthURI:  setup.OtpauthURI,
		BackupCodes: setup.BackupCodes,
	})
}

type confirmSetupReq struct {
	Code string `json:"code"`
}

// ConfirmSetup handles POST /api/account/2fa/confirm.
func (h *Handler) ConfirmSetup(c echo.Context) error {
	claims, ok := sessionFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req confirmSetupReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	if err := h.Engine.ConfirmTwoFactorSetup(requestContext(c), claims.Subject, req.Code); err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": true})
}

type disableReq struct {
	Password string `json:"password"`
}

// Disable handles POST /api/account/2fa/disable.
func (h *Handler) Disable(c echo.Context) error {
	claims, ok := sessionFromEcho(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req disableReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}

	if err := h.Engine.DisableTwoFactor(requestContext(c), claims.Subject, req.Password); err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": false})
}

// ForceDisable handles POST /api/admin/accounts/:id/2fa/disable, the
// support path for users locked out of both authenticator and backup
// codes.
func (h *Handler) ForceDisable(c echo.Context) error {
	accountID := c.Param("id")
	if accountID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "account id required"})
	}
	if err := h.Engine.ForceDisableTwoFactor(requestContext(c), accountID); err != nil {
		if errors.Is(err, authcore.ErrAccountNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
		}
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": false})
}

type systemToggleReq struct {
	Enabled bool `json:"enabled"`
}

// SystemStatus handles GET /api/admin/2fa.
func (h *Handler) SystemStatus(c echo.Context) error {
	enabled, err := h.Engine.SystemTwoFactorEnabled(requestContext(c))
	if err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": enabled})
}

// SetSystemStatus handles PUT /api/admin/2fa.
func (h *Handler) SetSystemStatus(c echo.Context) error {
	var req systemToggleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Engine.SetSystemTwoFactorEnabled(requestContext(c), req.Enabled); err != nil {
		return h.writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"enabled": req.Enabled})
}

func (h *Handler) writeAuthError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid email or password"})
	case errors.Is(err, authcore.ErrLoginRateLimited),
		errors.Is(err, authcore.ErrCodeRateLimited):
		return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many attempts, try again later"})
	case errors.Is(err, authcore.ErrCodeRequired):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "verification code required"})
	case errors.Is(err, authcore.ErrTwoFactorInvalid):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid verification code"})
	case errors.Is(err, authcore.ErrChallengeInvalid),
		errors.Is(err, authcore.ErrChallengeExpired),
		errors.Is(err, authcore.ErrChallengeAttemptsExceeded):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "login challenge expired, sign in again"})
	case errors.Is(err, authcore.ErrTwoFactorAlreadyEnabled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor already enabled"})
	case errors.Is(err, authcore.ErrTwoFactorNotEnabled):
		return c.JSON(http.StatusConflict, echo.Map{"error": "two-factor not enabled"})
	case errors.Is(err, authcore.ErrSetupNotPending):
		return c.JSON(http.StatusConflict, echo.Map{"error": "no setup in progress"})
	case errors.Is(err, authcore.ErrSystemTwoFactorOff):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "two-factor is disabled platform-wide"})
	case errors.Is(err, authcore.ErrAccountNotFound):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func (h *Handler) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.Engine.Sessions().TTL() / time.Second),
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     h.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func identityToPart(id authcore.Identity) identityPart {
	return identityPart{
		ID:        id.ID,
		Email:     id.Email,
		Name:      id.Name,
		AvatarURL: id.AvatarURL,
		Role:      string(id.Role),
	}
}

// requestContext tags the request context with the caller's IP so the
// engine's limiter and audit trail can see it.
func requestContext(c echo.Context) context.Context {
	return authcore.WithClientIP(c.Request().Context(), c.RealIP())
}
