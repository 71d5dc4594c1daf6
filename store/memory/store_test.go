package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	authcore "github.com/scriptbay/authcore"
)

func seed(t *testing.T, store *Store, id, email string) {
	t.Helper()
	err := store.Create(context.Background(), &authcore.Account{
		ID:           id,
		Email:        email,
		PasswordHash: "x",
		Role:         authcore.RoleUser,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestCreateAndLookup(t *testing.T) {
	store := New()
	ctx := context.Background()
	seed(t, store, "acct-1", "Dev@Example.com")

	byID, err := store.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.Email != "dev@example.com" {
		t.Errorf("stored email = %q, want normalized", byID.Email)
	}

	byEmail, err := store.GetByEmail(ctx, "  DEV@example.COM ")
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	if byEmail.ID != "acct-1" {
		t.Errorf("lookup returned %q", byEmail.ID)
	}

	if _, err := store.GetByID(ctx, "nope"); !errors.Is(err, authcore.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
	if _, err := store.GetByEmail(ctx, "nope@example.com"); !errors.Is(err, authcore.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestCreateDuplicateEmail(t *testing.T) {
	store := New()
	seed(t, store, "acct-1", "dev@example.com")

	err := store.Create(context.Background(), &authcore.Account{
		ID:    "acct-2",
		Email: "DEV@example.com",
	})
	if !errors.Is(err, authcore.ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestUpdateLastLogin(t *testing.T) {
	store := New()
	ctx := context.Background()
	seed(t, store, "acct-1", "dev@example.com")

	at := time.Now().Truncate(time.Second)
	if err := store.UpdateLastLogin(ctx, "acct-1", at); err != nil {
		t.Fatalf("UpdateLastLogin: %v", err)
	}

	account, err := store.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if account.LastLoginAt == nil || !account.LastLoginAt.Equal(at) {
		t.Fatalf("last login = %v, want %v", account.LastLoginAt, at)
	}

	if err := store.UpdateLastLogin(ctx, "nope", at); !errors.Is(err, authcore.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}

func TestUpdateTwoFactorVersionGuard(t *testing.T) {
	store := New()
	ctx := context.Background()
	seed(t, store, "acct-1", "dev@example.com")

	settings := authcore.TwoFactorSettings{
		Enabled: true,
		Secret:  []byte("12345678901234567890"),
	}
	if err := store.UpdateTwoFactor(ctx, "acct-1", settings, 0); err != nil {
		t.Fatalf("UpdateTwoFactor: %v", err)
	}

	account, err := store.GetByID(ctx, "acct-1")
	if err != nil {
		t.Fatal(err)
	}
	if account.TwoFactorVersion != 1 {
		t.Fatalf("version = %d, want 1", account.TwoFactorVersion)
	}

	// A write against the superseded version must be refused.
	err = store.UpdateTwoFactor(ctx, "acct-1", authcore.TwoFactorSettings{}, 0)
	if !errors.Is(err, authcore.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	account, _ = store.GetByID(ctx, "acct-1")
	if !account.TwoFactor.Enabled {
		t.Fatal("stale write went through")
	}

	if err := store.UpdateTwoFactor(ctx, "acct-1", authcore.TwoFactorSettings{}, 1); err != nil {
		t.Fatalf("current-version write: %v", err)
	}
}

// Mutating a returned account must not touch stored state.
func TestReadsAreCopies(t *testing.T) {
	store := New()
	ctx := context.Background()
	seed(t, store, "acct-1", "dev@example.com")

	settings := authcore.TwoFactorSettings{
		Enabled:          true,
		Secret:           []byte("12345678901234567890"),
		BackupCodeHashes: make([][32]byte, 2),
	}
	if err := store.UpdateTwoFactor(ctx, "acct-1", settings, 0); err != nil {
		t.Fatal(err)
	}

	account, _ := store.GetByID(ctx, "acct-1")
	account.TwoFactor.Secret[0] = 'X'
	account.TwoFactor.BackupCodeHashes[0][0] = 0xFF
	account.Role = authcore.RoleAdmin

	fresh, _ := store.GetByID(ctx, "acct-1")
	if fresh.TwoFactor.Secret[0] == 'X' {
		t.Error("secret mutation leaked into the store")
	}
	if fresh.TwoFactor.BackupCodeHashes[0][0] == 0xFF {
		t.Error("hash mutation leaked into the store")
	}
	if fresh.Role != authcore.RoleUser {
		t.Error("role mutation leaked into the store")
	}
}

func TestSystemToggle(t *testing.T) {
	store := New()
	ctx := context.Background()

	on, err := store.SystemTwoFactorEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !on {
		t.Fatal("toggle should default on")
	}

	if err := store.SetSystemTwoFactorEnabled(ctx, false); err != nil {
		t.Fatal(err)
	}
	on, _ = store.SystemTwoFactorEnabled(ctx)
	if on {
		t.Fatal("toggle did not turn off")
	}
}
