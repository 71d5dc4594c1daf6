package authcore

import (
	"context"
	"strings"
	"time"
)

// Role is the account privilege level. The platform knows exactly two.
type Role string

const (
	// RoleUser is the default role for registered accounts.
	RoleUser Role = "user"
	// RoleAdmin grants access to administrator-only operations.
	RoleAdmin Role = "admin"
)

// IsAdmin reports whether the role is the administrator role. Comparison is
// case-insensitive; historical rows carry mixed-case values.
func (r Role) IsAdmin() bool {
	return strings.EqualFold(string(r), string(RoleAdmin))
}

// TwoFactorSettings is the persisted two-factor state of one account.
// Only two shapes are legal: the zero value (unenrolled) and a fully
// populated enabled record. Pending setups never touch this struct; they
// live in the pending-setup store until confirmed.
type TwoFactorSettings struct {
	Enabled          bool
	Secret           []byte
	BackupCodeHashes [][32]byte
	LastVerifiedAt   *time.Time

	// LastUsedStep is the highest TOTP time step already accepted.
	// Codes at or below it are rejected as replays.
	LastUsedStep int64
}

// Account is the full account record as the store returns it. PasswordHash
// and TwoFactor.Secret never leave the engine.
type Account struct {
	ID           string
	Email        string
	Name         string
	AvatarURL    string
	PasswordHash string
	Role         Role
	Active       bool
	LastLoginAt  *time.Time

	TwoFactor TwoFactorSettings

	// TwoFactorVersion guards read-modify-write of TwoFactor. Every
	// successful UpdateTwoFactor advances it by one.
	TwoFactorVersion uint64
}

// Identity is the client-safe projection of an account.
type Identity struct {
	ID               string
	Email            string
	Name             string
	Role             Role
	AvatarURL        string
	TwoFactorEnabled bool
}

// LoginResult is returned by [Engine.Login], [Engine.LoginWithCode], and
// [Engine.ConfirmLogin]. Either Token is set, or TwoFactorRequired is true
// and ChallengeID identifies the pending second step.
type LoginResult struct {
	Identity Identity
	Token    string

	TwoFactorRequired bool
	ChallengeID       string
}

// TwoFactorStatus is the only two-factor state ever reported back to a
// client after enrollment.
type TwoFactorStatus struct {
	Enabled        bool
	LastVerifiedAt *time.Time
}

// TwoFactorSetup is the one-time reveal returned by
// [Engine.BeginTwoFactorSetup]. The secret and backup codes are not
// retrievable afterwards.
type TwoFactorSetup struct {
	Secret      string
	OtpauthURI  string
	BackupCodes []string
}

// AccountStore is the persistence contract the engine runs against. The
// production implementation is store/postgres; tests use an in-memory fake.
//
// UpdateTwoFactor must be atomic: it writes settings only when the stored
// version equals expectVersion, advances the version, and returns
// [ErrVersionConflict] otherwise. This is what keeps a backup code from
// being spent twice under concurrent requests.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateTwoFactor(ctx context.Context, id string, settings TwoFactorSettings, expectVersion uint64) error

	SystemTwoFactorEnabled(ctx context.Context) (bool, error)
	SetSystemTwoFactorEnabled(ctx context.Context, enabled bool) error
}

// NormalizeEmail canonicalizes an email for lookup and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
