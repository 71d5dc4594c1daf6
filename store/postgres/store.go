// Package postgres implements the account store on PostgreSQL via pgx.
//
// Two-factor settings live inline on the accounts row together with a
// version counter. Every settings write goes through a compare-and-swap
// on that counter, which is what makes backup code consumption and
// replay-step tracking safe under concurrent logins.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	authcore "github.com/scriptbay/authcore"
)

// Schema is the DDL for the tables this store uses. Callers that manage
// migrations elsewhere can ignore it; EnsureSchema applies it verbatim.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                 TEXT PRIMARY KEY,
	email              TEXT NOT NULL UNIQUE,
	name               TEXT NOT NULL DEFAULT '',
	avatar_url         TEXT NOT NULL DEFAULT '',
	password_hash      TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT 'user',
	active             BOOLEAN NOT NULL DEFAULT TRUE,
	last_login_at      TIMESTAMPTZ,
	twofactor_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
	twofactor_secret   BYTEA,
	backup_code_hashes BYTEA,
	last_verified_at   TIMESTAMPTZ,
	last_used_step     BIGINT NOT NULL DEFAULT 0,
	twofactor_version  BIGINT NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS system_settings (
	id                TEXT PRIMARY KEY,
	twofactor_enabled BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

INSERT INTO system_settings (id, twofactor_enabled)
VALUES ('platform', TRUE)
ON CONFLICT (id) DO NOTHING;
`

const backupHashSize = 32

// Store implements [authcore.AccountStore] on a pgx connection pool.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const accountColumns = `
	id, email, name, avatar_url, password_hash, role, active, last_login_at,
	twofactor_enabled, twofactor_secret, backup_code_hashes,
	last_verified_at, last_used_step, twofactor_version
`

func (s *Store) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1 LIMIT 1`
	return s.scanAccount(s.db.QueryRow(ctx, q, authcore.NormalizeEmail(email)))
}

func (s *Store) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 LIMIT 1`
	return s.scanAccount(s.db.QueryRow(ctx, q, id))
}

func (s *Store) Create(ctx context.Context, account *authcore.Account) error {
	const q = `
		INSERT INTO accounts (
			id, email, name, avatar_url, password_hash, role, active,
			twofactor_enabled, twofactor_secret, backup_code_hashes,
			last_verified_at, last_used_step, twofactor_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.db.Exec(ctx, q,
		account.ID,
		authcore.NormalizeEmail(account.Email),
		account.Name,
		account.AvatarURL,
		account.PasswordHash,
		string(account.Role),
		account.Active,
		account.TwoFactor.Enabled,
		account.TwoFactor.Secret,
		packBackupHashes(account.TwoFactor.BackupCodeHashes),
		account.TwoFactor.LastVerifiedAt,
		account.TwoFactor.LastUsedStep,
		account.TwoFactorVersion,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return authcore.ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *Store) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE accounts SET last_login_at = $1 WHERE id = $2`
	tag, err := s.db.Exec(ctx, q, at, id)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// UpdateTwoFactor writes settings only if the stored version still equals
// expectVersion, advancing the version in the same statement. Zero rows
// affected means another writer got there first.
func (s *Store) UpdateTwoFactor(
	ctx context.Context,
	id string,
	settings authcore.TwoFactorSettings,
	expectVersion uint64,
) error {
	const q = `
		UPDATE accounts
		SET twofactor_enabled  = $1,
		    twofactor_secret   = $2,
		    backup_code_hashes = $3,
		    last_verified_at   = $4,
		    last_used_step     = $5,
		    twofactor_version  = twofactor_version + 1
		WHERE id = $6 AND twofactor_version = $7
	`
	tag, err := s.db.Exec(ctx, q,
		settings.Enabled,
		settings.Secret,
		packBackupHashes(settings.BackupCodeHashes),
		settings.LastVerifiedAt,
		settings.LastUsedStep,
		id,
		int64(expectVersion),
	)
	if err != nil {
		return fmt.Errorf("update two-factor settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.accountExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return authcore.ErrAccountNotFound
		}
		return authcore.ErrVersionConflict
	}
	return nil
}

func (s *Store) SystemTwoFactorEnabled(ctx context.Context) (bool, error) {
	const q = `SELECT twofactor_enabled FROM system_settings WHERE id = 'platform'`
	var enabled bool
	if err := s.db.QueryRow(ctx, q).Scan(&enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Missing row means the schema bootstrap never ran; default on.
			return true, nil
		}
		return false, fmt.Errorf("read system toggle: %w", err)
	}
	return enabled, nil
}

func (s *Store) SetSystemTwoFactorEnabled(ctx context.Context, enabled bool) error {
	const q = `
		INSERT INTO system_settings (id, twofactor_enabled, updated_at)
		VALUES ('platform', $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET twofactor_enabled = EXCLUDED.twofactor_enabled, updated_at = NOW()
	`
	if _, err := s.db.Exec(ctx, q, enabled); err != nil {
		return fmt.Errorf("write system toggle: %w", err)
	}
	return nil
}

func (s *Store) accountExists(ctx context.Context, id string) (bool, error) {
	const q = `SELECT 1 FROM accounts WHERE id = $1`
	var one int
	if err := s.db.QueryRow(ctx, q, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check account: %w", err)
	}
	return true, nil
}

func (s *Store) scanAccount(row pgx.Row) (*authcore.Account, error) {
	var (
		account      authcore.Account
		role         string
		secret       []byte
		packedHashes []byte
	)
	err := row.Scan(
		&account.ID,
		&account.Email,
		&account.Name,
		&account.AvatarURL,
		&account.PasswordHash,
		&role,
		&account.Active,
		&account.LastLoginAt,
		&account.TwoFactor.Enabled,
		&secret,
		&packedHashes,
		&account.TwoFactor.LastVerifiedAt,
		&account.TwoFactor.LastUsedStep,
		&account.TwoFactorVersion,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Role = authcore.Role(role)
	account.TwoFactor.Secret = secret
	hashes, err := unpackBackupHashes(packedHashes)
	if err != nil {
		return nil, err
	}
	account.TwoFactor.BackupCodeHashes = hashes
	return &account, nil
}

// packBackupHashes stores the fixed-size hashes as one concatenated BYTEA
// column. nil in, nil out, so an account without codes stays NULL.
func packBackupHashes(hashes [][backupHashSize]byte) []byte {
	if len(hashes) == 0 {
		return nil
	}
	packed := make([]byte, 0, len(hashes)*backupHashSize)
	for _, h := range hashes {
		packed = append(packed, h[:]...)
	}
	return packed
}

func unpackBackupHashes(packed []byte) ([][backupHashSize]byte, error) {
	if len(packed) == 0 {
		return nil, nil
	}
	if len(packed)%backupHashSize != 0 {
		return nil, errors.New("corrupt backup code hash column")
	}
	hashes := make([][backupHashSize]byte, len(packed)/backupHashSize)
	for i := range hashes {
		copy(hashes[i][:], packed[i*backupHashSize:])
	}
	return hashes, nil
}
