package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingSetupRecordVersion1 = 1

var (
	ErrPendingSetupNotFound = errors.New("pending setup not found")
	ErrPendingSetupBackend  = errors.New("pending setup backend unavailable")
)

// PendingSetup is an unconfirmed two-factor enrollment. The secret is held
// server-side until the account proves possession with a valid code; the
// client never echoes it back. Backup codes are stored hashed, the
// plaintext exists only in the one-time setup response.
type PendingSetup struct {
	Secret           []byte
	BackupCodeHashes [][32]byte
	CreatedAt        int64
}

// PendingSetupStore persists pending enrollments in Redis keyed by account
// ID. Starting a new setup for the same account overwrites the old one.
type PendingSetupStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewPendingSetupStore(redisClient redis.UniversalClient, prefix string) *PendingSetupStore {
	if prefix == "" {
		prefix = "2fa:pending"
	}
	return &PendingSetupStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingSetupStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

func (s *PendingSetupStore) Save(
	ctx context.Context,
	accountID string,
	record *PendingSetup,
	ttl time.Duration,
) error {
	encoded, err := encodePendingSetup(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(accountID), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	return nil
}

func (s *PendingSetupStore) Get(ctx context.Context, accountID string) (*PendingSetup, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingSetupNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	return decodePendingSetup(data)
}

func (s *PendingSetupStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingSetupBackend, err)
	}
	return nil
}

func encodePendingSetup(record *PendingSetup) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(pendingSetupRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	if len(record.Secret) > 255 {
		return nil, errors.New("pending setup secret length exceeded")
	}
	buf.WriteByte(byte(len(record.Secret)))
	buf.Write(record.Secret)

	if len(record.BackupCodeHashes) > 255 {
		return nil, errors.New("pending setup backup code count exceeded")
	}
	buf.WriteByte(byte(len(record.BackupCodeHashes)))
	for i := range record.BackupCodeHashes {
		buf.Write(record.BackupCodeHashes[i][:])
	}

	return buf.Bytes(), nil
}

func decodePendingSetup(data []byte) (*PendingSetup, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != pendingSetupRecordVersion1 {
		return nil, errors.New("invalid pending setup version")
	}

	record := &PendingSetup{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, err
	}

	secretLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.Secret = make([]byte, secretLen)
	if _, err := io.ReadFull(reader, record.Secret); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	record.BackupCodeHashes = make([][32]byte, count)
	for i := 0; i < int(count); i++ {
		if _, err := io.ReadFull(reader, record.BackupCodeHashes[i][:]); err != nil {
			return nil, err
		}
	}

	return record, nil
}
