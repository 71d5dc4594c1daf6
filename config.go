package authcore

import (
	"errors"
	"time"
)

// Config carries all engine tuning. Zero values are filled from
// defaultConfig by the builder; a Config is immutable once the engine is
// built.
type Config struct {
	Session    SessionConfig
	TOTP       TOTPConfig
	Password   PasswordConfig
	BackupCode BackupCodeConfig
	Setup      SetupConfig
	Challenge  ChallengeConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig
}

// SessionConfig configures the stateless session tokens.
type SessionConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	Secret        []byte // hs256 signing secret
	PrivateKey    []byte // ed25519 only
	PublicKey     []byte // ed25519 only
	Issuer        string
	Leeway        time.Duration
}

// TOTPConfig configures code derivation. The defaults match what every
// authenticator app ships with: SHA-1, 6 digits, 30-second period.
type TOTPConfig struct {
	Issuer    string
	Digits    int
	Period    int
	Algorithm string // "SHA1" (default), "SHA256", "SHA512"

	// Skew is the accepted clock drift in whole steps on each side of the
	// current one. The platform runs with 1 (±30s).
	Skew int
}

// PasswordConfig configures the bcrypt hasher.
type PasswordConfig struct {
	Cost int
}

// BackupCodeConfig configures recovery code generation.
type BackupCodeConfig struct {
	Count  int
	Length int
}

// SetupConfig bounds the pending-setup window. A setup that is not
// confirmed within TTL is discarded and must be restarted.
type SetupConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// ChallengeConfig bounds the mid-login two-factor challenge.
type ChallengeConfig struct {
	TTL         time.Duration
	MaxAttempts int
	RedisPrefix string
}

// RateLimitConfig configures the Redis fixed-window limiters.
type RateLimitConfig struct {
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	MaxCodeAttempts  int
	CodeCooldown     time.Duration
	EnableIPThrottle bool
}

// AuditConfig configures the audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			TTL:           30 * 24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "scriptbay",
			Leeway:        30 * time.Second,
		},
		TOTP: TOTPConfig{
			Issuer:    "ScriptBay",
			Digits:    6,
			Period:    30,
			Algorithm: "SHA1",
			Skew:      1,
		},
		Password: PasswordConfig{
			Cost: 12,
		},
		BackupCode: BackupCodeConfig{
			Count:  8,
			Length: 10,
		},
		Setup: SetupConfig{
			TTL:         10 * time.Minute,
			RedisPrefix: "2fa:pending",
		},
		Challenge: ChallengeConfig{
			TTL:         3 * time.Minute,
			MaxAttempts: 5,
			RedisPrefix: "2fa:login",
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 10,
			LoginCooldown:    15 * time.Minute,
			MaxCodeAttempts:  5,
			CodeCooldown:     time.Minute,
			EnableIPThrottle: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Session.TTL <= 0 {
		return errors.New("session TTL must be positive")
	}
	switch cfg.Session.SigningMethod {
	case "hs256":
		if len(cfg.Session.Secret) == 0 {
			return errors.New("hs256 requires a session secret")
		}
	case "ed25519":
		if len(cfg.Session.PrivateKey) == 0 && len(cfg.Session.PublicKey) == 0 {
			return errors.New("ed25519 requires key material")
		}
	default:
		return errors.New("unsupported session signing method")
	}
	if cfg.TOTP.Digits < 6 || cfg.TOTP.Digits > 8 {
		return errors.New("totp digits out of range")
	}
	if cfg.TOTP.Period <= 0 {
		return errors.New("totp period must be positive")
	}
	if cfg.TOTP.Skew < 0 || cfg.TOTP.Skew > 2 {
		return errors.New("totp skew out of range")
	}
	if cfg.BackupCode.Count <= 0 || cfg.BackupCode.Length < 8 {
		return errors.New("backup code parameters too weak")
	}
	if cfg.Setup.TTL <= 0 || cfg.Challenge.TTL <= 0 {
		return errors.New("pending window TTLs must be positive")
	}
	if cfg.Challenge.MaxAttempts <= 0 {
		return errors.New("challenge attempt budget must be positive")
	}
	return nil
}
