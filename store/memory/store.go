// Package memory implements the account store in process memory. It backs
// the demo server and integration-style tests; the version-guard semantics
// match the PostgreSQL store exactly.
package memory

import (
	"context"
	"sync"
	"time"

	authcore "github.com/scriptbay/authcore"
)

// Store is a mutex-guarded in-memory [authcore.AccountStore].
type Store struct {
	mu              sync.RWMutex
	accounts        map[string]*authcore.Account
	byEmail         map[string]string
	systemTwoFactor bool
}

func New() *Store {
	return &Store{
		accounts:        make(map[string]*authcore.Account),
		byEmail:         make(map[string]string),
		systemTwoFactor: true,
	}
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[authcore.NormalizeEmail(email)]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return cloneAccount(s.accounts[id]), nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := authcore.NormalizeEmail(account.Email)
	if _, exists := s.byEmail[email]; exists {
		return authcore.ErrDuplicateEmail
	}

	stored := cloneAccount(account)
	stored.Email = email
	s.accounts[stored.ID] = stored
	s.byEmail[email] = stored.ID
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	t := at
	account.LastLoginAt = &t
	return nil
}

func (s *Store) UpdateTwoFactor(
	ctx context.Context,
	id string,
	settings authcore.TwoFactorSettings,
	expectVersion uint64,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	if account.TwoFactorVersion != expectVersion {
		return authcore.ErrVersionConflict
	}
	account.TwoFactor = cloneSettings(settings)
	account.TwoFactorVersion++
	return nil
}

func (s *Store) SystemTwoFactorEnabled(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.systemTwoFactor, nil
}

func (s *Store) SetSystemTwoFactorEnabled(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systemTwoFactor = enabled
	return nil
}

// cloneAccount deep-copies so callers can never mutate stored state
// without going through the version guard.
func cloneAccount(account *authcore.Account) *authcore.Account {
	if account == nil {
		return nil
	}
	clone := *account
	if account.LastLoginAt != nil {
		t := *account.LastLoginAt
		clone.LastLoginAt = &t
	}
	clone.TwoFactor = cloneSettings(account.TwoFactor)
	return &clone
}

func cloneSettings(settings authcore.TwoFactorSettings) authcore.TwoFactorSettings {
	clone := settings
	if settings.Secret != nil {
		clone.Secret = append([]byte(nil), settings.Secret...)
	}
	if settings.BackupCodeHashes != nil {
		clone.BackupCodeHashes = append([][32]byte(nil), settings.BackupCodeHashes...)
	}
	if settings.LastVerifiedAt != nil {
		t := *settings.LastVerifiedAt
		clone.LastVerifiedAt = &t
	}
	return clone
}
