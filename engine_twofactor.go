package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/scriptbay/authcore/internal/stores"
)

// TwoFactorStatus reports whether the account has two-factor enabled and
// when a code was last accepted.
func (e *Engine) TwoFactorStatus(ctx context.Context, accountID string) (*TwoFactorStatus, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}
	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrStoreUnavailable
	}
	return &TwoFactorStatus{
		Enabled:        account.TwoFactor.Enabled,
		LastVerifiedAt: account.TwoFactor.LastVerifiedAt,
	}, nil
}

// BeginTwoFactorSetup starts enrollment for an account. It requires the
// account password again, generates a fresh secret and a set of backup
// codes, and parks them server-side until [Engine.ConfirmTwoFactorSetup]
// proves the authenticator was configured. The returned secret and backup
// codes are shown to the user exactly once; only hashes of the backup
// codes are ever written to durable storage.
//
// Starting setup again before confirming replaces any earlier pending
// secret, so an abandoned enrollment cannot be completed later.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, accountID, plaintext string) (*TwoFactorSetup, error) {
	if e == nil || e.store == nil || e.pending == nil {
		return nil, ErrEngineNotReady
	}

	systemOn, err := e.store.SystemTwoFactorEnabled(ctx)
	if err != nil {
		return nil, ErrStoreUnavailable
	}
	if !systemOn {
		return nil, ErrSystemTwoFactorOff
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, ErrStoreUnavailable
	}
	if !account.Active {
		return nil, ErrInvalidCredentials
	}
	if account.TwoFactor.Enabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	if !e.hasher.Verify(plaintext, account.PasswordHash) {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, "setup_password_mismatch", nil)
		return nil, ErrInvalidCredentials
	}

	secret, secretEncoded, err := e.totp.GenerateSecret()
	if err != nil {
		return nil, ErrTwoFactorUnavailable
	}
	codes, hashes, err := generateBackupCodes(account.ID, e.config.BackupCode.Count, e.config.BackupCode.Length)
	if err != nil {
		return nil, ErrTwoFactorUnavailable
	}

	record := &stores.PendingSetup{
		Secret:           secret,
		BackupCodeHashes: hashes,
		CreatedAt:        time.Now().Unix(),
	}
	if err := e.pending.Save(ctx, account.ID, record, e.config.Setup.TTL); err != nil {
		return nil, ErrTwoFactorUnavailable
	}

	e.emitAudit(ctx, auditEventSetupStarted, true, account.ID, "", nil)
	return &TwoFactorSetup{
		Secret:      secretEncoded,
		OtpauthURI:  e.totp.ProvisionURI(secretEncoded, account.Email),
		BackupCodes: codes,
	}, nil
}

// ConfirmTwoFactorSetup finishes enrollment by checking a code against the
// pending secret. On success the secret and backup code hashes become the
// account's active settings; until then nothing about the enrollment is
// visible on the account.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) error {
	if e == nil || e.store == nil || e.pending == nil {
		return ErrEngineNotReady
	}
	if code == "" {
		return ErrCodeRequired
	}

	record, err := e.pending.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, stores.ErrPendingSetupNotFound) {
			return ErrSetupNotPending
		}
		return ErrTwoFactorUnavailable
	}

	now := time.Now()
	ok, step, err := e.totp.VerifyCode(record.Secret, code, now)
	if err != nil {
		return ErrTwoFactorUnavailable
	}
	if !ok {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, accountID, "setup_code_invalid", nil)
		return ErrTwoFactorInvalid
	}

	err = e.updateTwoFactorCAS(ctx, accountID, func(account *Account) (TwoFactorSettings, error) {
		if account.TwoFactor.Enabled {
			return TwoFactorSettings{}, ErrTwoFactorAlreadyEnabled
		}
		verifiedAt := now
		return TwoFactorSettings{
			Enabled:          true,
			Secret:           record.Secret,
			BackupCodeHashes: record.BackupCodeHashes,
			LastVerifiedAt:   &verifiedAt,
			// The confirmation code counts as used.
			LastUsedStep: step,
		}, nil
	})
	if err != nil {
		return err
	}

	if err := e.pending.Delete(ctx, accountID); err != nil && !errors.Is(err, stores.ErrPendingSetupNotFound) {
		// Enrollment already took effect; the pending record expires on
		// its own.
		e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, "pending_cleanup_failed", nil)
		return nil
	}

	e.emitAudit(ctx, auditEventTwoFactorEnabled, true, accountID, "", nil)
	return nil
}

// DisableTwoFactor turns two-factor off for an account after re-proving
// the password. The secret and all remaining backup code hashes are
// discarded; re-enabling starts from a clean enrollment.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, plaintext string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	account, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return ErrStoreUnavailable
	}
	if !account.TwoFactor.Enabled {
		return ErrTwoFactorNotEnabled
	}
	if !e.hasher.Verify(plaintext, account.PasswordHash) {
		e.emitAudit(ctx, auditEventTwoFactorFailure, false, account.ID, "disable_password_mismatch", nil)
		return ErrInvalidCredentials
	}

	err = e.updateTwoFactorCAS(ctx, accountID, func(account *Account) (TwoFactorSettings, error) {
		if !account.TwoFactor.Enabled {
			return TwoFactorSettings{}, ErrTwoFactorNotEnabled
		}
		return TwoFactorSettings{}, nil
	})
	if err != nil {
		return err
	}

	_ = e.limiter.ResetCode(ctx, account.ID)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, account.ID, "", nil)
	return nil
}

// ForceDisableTwoFactor clears an account's enrollment without a password
// check. It backs the administrator support path for accounts that lost
// both the authenticator and the backup codes; restricting who may call it
// is the transport layer's job.
func (e *Engine) ForceDisableTwoFactor(ctx context.Context, accountID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	err := e.updateTwoFactorCAS(ctx, accountID, func(account *Account) (TwoFactorSettings, error) {
		if !account.TwoFactor.Enabled {
			return TwoFactorSettings{}, ErrTwoFactorNotEnabled
		}
		return TwoFactorSettings{}, nil
	})
	if err != nil {
		return err
	}

	_ = e.limiter.ResetCode(ctx, accountID)
	e.emitAudit(ctx, auditEventTwoFactorDisabled, true, accountID, "admin_forced", nil)
	return nil
}

// SystemTwoFactorEnabled reports the marketplace-wide two-factor toggle.
func (e *Engine) SystemTwoFactorEnabled(ctx context.Context) (bool, error) {
	if e == nil || e.store == nil {
		return false, ErrEngineNotReady
	}
	on, err := e.store.SystemTwoFactorEnabled(ctx)
	if err != nil {
		return false, ErrStoreUnavailable
	}
	return on, nil
}

// SetSystemTwoFactorEnabled flips the marketplace-wide toggle. Turning it
// off suspends code prompts at login but leaves every account's enrollment
// intact; turning it back on restores the previous behavior.
func (e *Engine) SetSystemTwoFactorEnabled(ctx context.Context, enabled bool) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if err := e.store.SetSystemTwoFactorEnabled(ctx, enabled); err != nil {
		return ErrStoreUnavailable
	}
	e.emitAudit(ctx, auditEventSystemToggleChanged, true, "", "", func() map[string]string {
		if enabled {
			return map[string]string{"enabled": "true"}
		}
		return map[string]string{"enabled": "false"}
	})
	return nil
}
