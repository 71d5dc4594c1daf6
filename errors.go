package authcore

import "errors"

var (
	// ErrEngineNotReady is returned when the engine is used before Build
	// completed or with a missing dependency.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidCredentials is the generic credential failure. It covers
	// unknown email, inactive account, and password mismatch so callers
	// cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the login attempt budget for an
	// email or IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrCodeRateLimited is returned when too many verification codes were
	// tried for one account.
	ErrCodeRateLimited = errors.New("code attempts rate limited")
	// ErrCodeRequired is returned when an operation that needs a
	// verification code received none.
	ErrCodeRequired = errors.New("verification code required")
	// ErrTwoFactorRequired signals that the password was accepted but the
	// account has two-factor enabled; the caller must complete the login
	// challenge before a session is issued.
	ErrTwoFactorRequired = errors.New("two-factor code required")
	// ErrTwoFactorInvalid is the generic rejection for a wrong TOTP or
	// backup code.
	ErrTwoFactorInvalid = errors.New("invalid two-factor code")
	// ErrTwoFactorNotEnabled is returned when disabling two-factor on an
	// account that never enrolled.
	ErrTwoFactorNotEnabled = errors.New("two-factor not enabled")
	// ErrTwoFactorAlreadyEnabled is returned when starting setup on an
	// account that already completed enrollment.
	ErrTwoFactorAlreadyEnabled = errors.New("two-factor already enabled")
	// ErrTwoFactorUnavailable wraps backend failures in the two-factor
	// paths. Store details never reach the caller.
	ErrTwoFactorUnavailable = errors.New("two-factor backend unavailable")
	// ErrSetupNotPending is returned when confirming setup without a prior
	// BeginTwoFactorSetup, or after the pending window expired.
	ErrSetupNotPending = errors.New("no two-factor setup pending")
	// ErrSystemTwoFactorOff is returned when enrollment is attempted while
	// the platform-wide two-factor toggle is off.
	ErrSystemTwoFactorOff = errors.New("two-factor disabled system-wide")
	// ErrChallengeInvalid covers unknown, replayed, or orphaned login
	// challenges.
	ErrChallengeInvalid = errors.New("login challenge invalid")
	// ErrChallengeExpired is returned when the login challenge outlived its
	// window.
	ErrChallengeExpired = errors.New("login challenge expired")
	// ErrChallengeAttemptsExceeded is returned once the per-challenge
	// attempt budget is spent; the challenge is deleted and the caller must
	// log in again.
	ErrChallengeAttemptsExceeded = errors.New("login challenge attempts exceeded")
	// ErrAccountNotFound is the store-level miss for lookups by id or email.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateEmail is returned by AccountStore.Create when the email is
	// already taken.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrVersionConflict is returned by AccountStore.UpdateTwoFactor when
	// the expected version no longer matches; the engine retries on it.
	ErrVersionConflict = errors.New("two-factor version conflict")
	// ErrStoreUnavailable wraps account store failures outside the
	// two-factor paths.
	ErrStoreUnavailable = errors.New("account store unavailable")
)
