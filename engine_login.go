package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/scriptbay/authcore/internal/rate"
	"github.com/scriptbay/authcore/internal/stores"
)

// Login checks email and password. For accounts without two-factor (or
// while the system-wide toggle is off) it issues a session token. For
// enrolled accounts it returns TwoFactorRequired with a challenge ID and
// no token; the caller completes the login with [Engine.ConfirmLogin].
//
// All credential failures collapse to [ErrInvalidCredentials]; the real
// cause is recorded in the audit trail only.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.verifyCredentials(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}

	systemOn, err := e.store.SystemTwoFactorEnabled(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable
	}

	if account.TwoFactor.Enabled && systemOn {
		challengeID, err := e.createLoginChallenge(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		e.emitAudit(ctx, auditEventTwoFactorRequired, true, account.ID, "", nil)
		return &LoginResult{
			Identity:          e.identity(account),
			TwoFactorRequired: true,
			ChallengeID:       challengeID,
		}, nil
	}

	return e.issueSession(ctx, account)
}

// LoginWithCode is Login for requests that carry an inline two-factor
// code: when the account requires a second factor the code is applied to
// the fresh challenge immediately. An empty code on an enrolled account
// returns [ErrTwoFactorRequired] so the caller can re-prompt without
// asking for the password again.
func (e *Engine) LoginWithCode(ctx context.Context, email, plaintext, code string) (*LoginResult, error) {
	result, err := e.Login(ctx, email, plaintext)
	if err != nil {
		return nil, err
	}
	if !result.TwoFactorRequired {
		return result, nil
	}
	if code == "" {
		return result, ErrTwoFactorRequired
	}
	return e.ConfirmLogin(ctx, result.ChallengeID, code)
}

// ConfirmLogin completes a two-factor login challenge. The code is tried
// as a TOTP code first and as a backup code second; a matching backup code
// is consumed and can never be used again. Success deletes the challenge
// and issues the session.
func (e *Engine) ConfirmLogin(ctx context.Context, challengeID, code string) (*LoginResult, error) {
	if e == nil || e.store == nil || e.challenge == nil {
		return nil, ErrEngineNotReady
	}
	if challengeID == "" {
		return nil, ErrChallengeInvalid
	}

	record, err := e.challenge.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeStoreError(err)
	}

	account, err := e.store.GetByID(ctx, record.AccountID)
	if err != nil || !account.Active {
		_, _ = e.challenge.Delete(ctx, challengeID)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, record.AccountID, "account_unavailable", nil)
		return nil, ErrChallengeInvalid
	}
	if !account.TwoFactor.Enabled {
		_, _ = e.challenge.Delete(ctx, challengeID)
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, "not_enrolled", nil)
		return nil, ErrChallengeInvalid
	}

	usedBackup, err := e.authenticateSecondFactor(ctx, account, code)
	if err != nil {
		if errors.Is(err, ErrTwoFactorInvalid) || errors.Is(err, ErrCodeRequired) {
			return nil, e.failChallengeAttempt(ctx, challengeID, account.ID, err)
		}
		return nil, err
	}

	deleted, err := e.challenge.Delete(ctx, challengeID)
	if err != nil {
		return nil, ErrTwoFactorUnavailable
	}
	if !deleted {
		// Another request already consumed this challenge.
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, "challenge_replay", nil)
		return nil, ErrChallengeInvalid
	}

	_ = e.limiter.ResetCode(ctx, account.ID)
	if usedBackup {
		e.emitAudit(ctx, auditEventBackupCodeUsed, true, account.ID, "", nil)
	}
	e.emitAudit(ctx, auditEventTwoFactorSuccess, true, account.ID, "", nil)

	// Re-read so the issued identity reflects the consumed backup code.
	account, err = e.store.GetByID(ctx, account.ID)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	return e.issueSession(ctx, account)
}

func (e *Engine) verifyCredentials(ctx context.Context, email, plaintext string) (*Account, error) {
	normalized := NormalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, normalized, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", "", func() map[string]string {
				return map[string]string{"email": normalized}
			})
			return nil, ErrLoginRateLimited
		}
		return nil, ErrStoreUnavailable
	}

	if normalized == "" || plaintext == "" {
		return nil, e.failLogin(ctx, normalized, ip, "", "missing_fields")
	}

	account, err := e.store.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, e.failLogin(ctx, normalized, ip, "", "account_not_found")
		}
		return nil, ErrStoreUnavailable
	}
	if !account.Active {
		return nil, e.failLogin(ctx, normalized, ip, account.ID, "account_inactive")
	}
	if !e.hasher.Verify(plaintext, account.PasswordHash) {
		return nil, e.failLogin(ctx, normalized, ip, account.ID, "password_mismatch")
	}

	_ = e.limiter.ResetLogin(ctx, normalized, ip)
	return account, nil
}

// failLogin records the attempt against the limiter and returns the
// generic credential error. The internal reason goes to the audit trail.
func (e *Engine) failLogin(ctx context.Context, email, ip, accountID, reason string) error {
	if err := e.limiter.RecordLoginFailure(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitAudit(ctx, auditEventLoginRateLimited, false, accountID, "", func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrLoginRateLimited
		}
		return ErrStoreUnavailable
	}
	e.emitAudit(ctx, auditEventLoginFailure, false, accountID, reason, func() map[string]string {
		return map[string]string{"email": email}
	})
	return ErrInvalidCredentials
}

func (e *Engine) createLoginChallenge(ctx context.Context, accountID string) (string, error) {
	challengeID := uuid.NewString()

	ttl := e.config.Challenge.TTL
	record := &stores.LoginChallenge{
		AccountID: accountID,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	if err := e.challenge.Save(ctx, challengeID, record, ttl); err != nil {
		return "", ErrTwoFactorUnavailable
	}
	return challengeID, nil
}

// authenticateSecondFactor validates code as a TOTP code, falling back to
// the remaining backup codes. Reports whether a backup code was spent.
func (e *Engine) authenticateSecondFactor(ctx context.Context, account *Account, code string) (bool, error) {
	if code == "" {
		return false, ErrCodeRequired
	}

	if err := e.limiter.CheckCode(ctx, account.ID); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return false, ErrCodeRateLimited
		}
		return false, ErrTwoFactorUnavailable
	}

	now := time.Now()
	ok, step, err := e.totp.VerifyCode(account.TwoFactor.Secret, code, now)
	if err != nil {
		return false, ErrTwoFactorUnavailable
	}
	if ok {
		if err := e.acceptTOTPStep(ctx, account.ID, step, now); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := e.consumeBackupCode(ctx, account.ID, code); err != nil {
		return false, err
	}
	return true, nil
}

// acceptTOTPStep records the matched time step so the same code cannot be
// replayed inside its validity window. The compare-and-swap re-check
// covers two requests racing on the same code.
func (e *Engine) acceptTOTPStep(ctx context.Context, accountID string, step int64, now time.Time) error {
	return e.updateTwoFactorCAS(ctx, accountID, func(account *Account) (TwoFactorSettings, error) {
		if !account.TwoFactor.Enabled {
			return TwoFactorSettings{}, ErrChallengeInvalid
		}
		if step <= account.TwoFactor.LastUsedStep {
			return TwoFactorSettings{}, ErrTwoFactorInvalid
		}
		settings := account.TwoFactor
		settings.LastUsedStep = step
		verifiedAt := now
		settings.LastVerifiedAt = &verifiedAt
		return settings, nil
	})
}

// consumeBackupCode removes the matching backup code from the account. The
// read-match-write runs under the store's version guard, so each code is
// spendable at most once even under concurrent requests.
func (e *Engine) consumeBackupCode(ctx context.Context, accountID, code string) error {
	canonical := canonicalizeBackupCode(code)
	if canonical == "" {
		return ErrTwoFactorInvalid
	}
	hash := backupCodeHash(accountID, canonical)

	return e.updateTwoFactorCAS(ctx, accountID, func(account *Account) (TwoFactorSettings, error) {
		if !account.TwoFactor.Enabled {
			return TwoFactorSettings{}, ErrChallengeInvalid
		}
		idx := matchBackupCode(account.TwoFactor.BackupCodeHashes, hash)
		if idx < 0 {
			return TwoFactorSettings{}, ErrTwoFactorInvalid
		}
		settings := account.TwoFactor
		remaining := make([][32]byte, 0, len(settings.BackupCodeHashes)-1)
		remaining = append(remaining, settings.BackupCodeHashes[:idx]...)
		remaining = append(remaining, settings.BackupCodeHashes[idx+1:]...)
		settings.BackupCodeHashes = remaining
		verifiedAt := time.Now()
		settings.LastVerifiedAt = &verifiedAt
		return settings, nil
	})
}

const twoFactorCASRetries = 4

func (e *Engine) updateTwoFactorCAS(
	ctx context.Context,
	accountID string,
	mutate func(*Account) (TwoFactorSettings, error),
) error {
	for i := 0; i < twoFactorCASRetries; i++ {
		account, err := e.store.GetByID(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return ErrAccountNotFound
			}
			return ErrTwoFactorUnavailable
		}

		settings, err := mutate(account)
		if err != nil {
			return err
		}

		err = e.store.UpdateTwoFactor(ctx, accountID, settings, account.TwoFactorVersion)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return ErrTwoFactorUnavailable
		}
		return nil
	}
	return ErrTwoFactorUnavailable
}

func (e *Engine) failChallengeAttempt(ctx context.Context, challengeID, accountID string, cause error) error {
	exceeded, recErr := e.challenge.RecordFailure(ctx, challengeID, e.config.Challenge.MaxAttempts)
	if recErr != nil {
		return mapChallengeStoreError(recErr)
	}

	if rlErr := e.limiter.RecordCodeFailure(ctx, accountID); rlErr != nil && !errors.Is(rlErr, rate.ErrRateLimited) {
		return ErrTwoFactorUnavailable
	}

	if exceeded {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "attempts_exceeded", nil)
		return ErrChallengeAttemptsExceeded
	}
	e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "code_invalid", nil)
	return cause
}

func (e *Engine) issueSession(ctx context.Context, account *Account) (*LoginResult, error) {
	token, err := e.sessions.Issue(account.ID, string(account.Role))
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if err := e.store.UpdateLastLogin(ctx, account.ID, time.Now()); err != nil {
		return nil, ErrStoreUnavailable
	}

	e.emitAudit(ctx, auditEventLoginSuccess, true, account.ID, "", func() map[string]string {
		return map[string]string{"email": account.Email}
	})
	return &LoginResult{
		Identity: e.identity(account),
		Token:    token,
	}, nil
}

func mapChallengeStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrChallengeInvalid
	case errors.Is(err, stores.ErrChallengeExpired):
		return ErrChallengeExpired
	default:
		return ErrTwoFactorUnavailable
	}
}
