package authcore

import (
	"github.com/scriptbay/authcore/internal/rate"
	"github.com/scriptbay/authcore/internal/stores"
	"github.com/scriptbay/authcore/password"
	"github.com/scriptbay/authcore/session"
)

// Engine is the authentication and two-factor core. Construct it with
// [New]; a built engine is safe for concurrent use and holds no mutable
// state of its own. Accounts live in the [AccountStore], short-lived
// challenge state in Redis.
type Engine struct {
	config    Config
	store     AccountStore
	hasher    *password.Hasher
	totp      *totpManager
	sessions  *session.Manager
	limiter   *rate.Limiter
	pending   *stores.PendingSetupStore
	challenge *stores.LoginChallengeStore
	audit     *auditDispatcher
}

// Sessions exposes the session manager so HTTP layers can verify tokens
// without reaching into engine internals.
func (e *Engine) Sessions() *session.Manager {
	if e == nil {
		return nil
	}
	return e.sessions
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) identity(account *Account) Identity {
	return Identity{
		ID:               account.ID,
		Email:            account.Email,
		Name:             account.Name,
		Role:             account.Role,
		AvatarURL:        account.AvatarURL,
		TwoFactorEnabled: account.TwoFactor.Enabled,
	}
}
