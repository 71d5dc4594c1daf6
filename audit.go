package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/scriptbay/authcore/internal/audit"
)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

const (
	auditEventLoginSuccess        = "login.success"
	auditEventLoginFailure        = "login.failure"
	auditEventLoginRateLimited    = "login.rate_limited"
	auditEventTwoFactorRequired   = "twofactor.required"
	auditEventTwoFactorSuccess    = "twofactor.success"
	auditEventTwoFactorFailure    = "twofactor.failure"
	auditEventTwoFactorEnabled    = "twofactor.enabled"
	auditEventTwoFactorDisabled   = "twofactor.disabled"
	auditEventSetupStarted        = "twofactor.setup_started"
	auditEventBackupCodeUsed      = "twofactor.backup_code_used"
	auditEventSystemToggleChanged = "twofactor.system_toggle_changed"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	reason string,
	metadata func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Reason:    reason,
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	e.audit.Emit(ctx, event)
}
