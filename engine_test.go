package authcore

import (
	"context"
	"encoding/base32"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/scriptbay/authcore/password"
)

// fakeAccountStore is the in-memory store the engine tests run against.
// Version-guard semantics mirror the real stores.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*Account
	byEmail  map[string]string
	systemOn bool

	failGetByEmail error
	failUpdate     error
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{
		accounts: make(map[string]*Account),
		byEmail:  make(map[string]string),
		systemOn: true,
	}
}

func (f *fakeAccountStore) GetByEmail(ctx context.Context, email string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failGetByEmail != nil {
		return nil, f.failGetByEmail
	}
	id, ok := f.byEmail[NormalizeEmail(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(f.accounts[id]), nil
}

func (f *fakeAccountStore) GetByID(ctx context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (f *fakeAccountStore) Create(ctx context.Context, account *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email := NormalizeEmail(account.Email)
	if _, exists := f.byEmail[email]; exists {
		return ErrDuplicateEmail
	}
	stored := copyAccount(account)
	stored.Email = email
	f.accounts[stored.ID] = stored
	f.byEmail[email] = stored.ID
	return nil
}

func (f *fakeAccountStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	t := at
	account.LastLoginAt = &t
	return nil
}

func (f *fakeAccountStore) UpdateTwoFactor(ctx context.Context, id string, settings TwoFactorSettings, expectVersion uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	account, ok := f.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	if account.TwoFactorVersion != expectVersion {
		return ErrVersionConflict
	}
	account.TwoFactor = copySettings(settings)
	account.TwoFactorVersion++
	return nil
}

func (f *fakeAccountStore) SystemTwoFactorEnabled(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.systemOn, nil
}

func (f *fakeAccountStore) SetSystemTwoFactorEnabled(ctx context.Context, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemOn = enabled
	return nil
}

// account returns the live stored record, bypassing the copy. Tests use it
// to inspect state the engine wrote.
func (f *fakeAccountStore) account(id string) *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

func copyAccount(account *Account) *Account {
	clone := *account
	if account.LastLoginAt != nil {
		t := *account.LastLoginAt
		clone.LastLoginAt = &t
	}
	clone.TwoFactor = copySettings(account.TwoFactor)
	return &clone
}

func copySettings(settings TwoFactorSettings) TwoFactorSettings {
	clone := settings
	clone.Secret = append([]byte(nil), settings.Secret...)
	clone.BackupCodeHashes = append([][32]byte(nil), settings.BackupCodeHashes...)
	if settings.LastVerifiedAt != nil {
		t := *settings.LastVerifiedAt
		clone.LastVerifiedAt = &t
	}
	return clone
}

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestEngine(t *testing.T, store AccountStore) *Engine {
	t.Helper()
	cfg := defaultConfig()
	cfg.Session.Secret = []byte("engine-test-secret")
	// bcrypt at minimum cost keeps the suite fast.
	cfg.Password.Cost = 4
	cfg.Audit.Enabled = false

	engine, err := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithAccountStore(store).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func testPasswordHash(t *testing.T, plaintext string) string {
	t.Helper()
	hasher, err := password.NewHasher(4)
	if err != nil {
		t.Fatal(err)
	}
	hash, err := hasher.Hash(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	return hash
}

func seedAccount(t *testing.T, store *fakeAccountStore, id, email, plaintext string, role Role) {
	t.Helper()
	err := store.Create(context.Background(), &Account{
		ID:           id,
		Email:        email,
		Name:         "Test User",
		PasswordHash: testPasswordHash(t, plaintext),
		Role:         role,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
}

// enrollAccount flips an account straight to enabled with a known secret
// and backup codes, skipping the setup flow.
func enrollAccount(t *testing.T, store *fakeAccountStore, id string) (secret []byte, backupCodes []string) {
	t.Helper()
	secret = []byte("12345678901234567890")
	codes, hashes, err := generateBackupCodes(id, 8, 10)
	if err != nil {
		t.Fatal(err)
	}

	account := store.account(id)
	if account == nil {
		t.Fatalf("account %s not seeded", id)
	}
	store.mu.Lock()
	account.TwoFactor = TwoFactorSettings{
		Enabled:          true,
		Secret:           secret,
		BackupCodeHashes: hashes,
	}
	store.mu.Unlock()
	return secret, codes
}

func codeAt(t *testing.T, secret []byte, at time.Time) string {
	t.Helper()
	code, err := hotpCode(secret, at.Unix()/30, 6, "SHA1")
	if err != nil {
		t.Fatal(err)
	}
	return code
}

func decodeSecret(t *testing.T, encoded string) []byte {
	t.Helper()
	raw, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	return raw
}
