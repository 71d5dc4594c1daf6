package authcore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
	"strings"
)

// backupCodeAlphabet excludes 0/O/1/I so codes survive being read aloud or
// typed from paper.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newBackupCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(backupCodeAlphabet))))
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// formatBackupCode inserts a hyphen midway for display. Canonicalization
// strips it back out before hashing.
func formatBackupCode(code string) string {
	n := len(code)
	if n < 8 {
		return code
	}
	mid := n / 2
	return code[:mid] + "-" + code[mid:]
}

func canonicalizeBackupCode(code string) string {
	s := strings.ToUpper(strings.TrimSpace(code))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, " ", "")
	return s
}

// backupCodeHash binds the hash to the account so identical codes issued to
// different accounts never collide at rest.
func backupCodeHash(accountID, canonicalCode string) [32]byte {
	data := make([]byte, 0, len(accountID)+1+len(canonicalCode))
	data = append(data, accountID...)
	data = append(data, 0)
	data = append(data, canonicalCode...)
	return sha256.Sum256(data)
}

// matchBackupCode returns the index of hash within hashes, or -1. Every
// candidate is compared so timing does not reveal how many codes remain.
func matchBackupCode(hashes [][32]byte, hash [32]byte) int {
	found := -1
	for i := range hashes {
		if subtle.ConstantTimeCompare(hashes[i][:], hash[:]) == 1 && found < 0 {
			found = i
		}
	}
	return found
}

func generateBackupCodes(accountID string, count, length int) ([]string, [][32]byte, error) {
	display := make([]string, 0, count)
	hashes := make([][32]byte, 0, count)
	for i := 0; i < count; i++ {
		raw, err := newBackupCode(length)
		if err != nil {
			return nil, nil, err
		}
		display = append(display, formatBackupCode(raw))
		hashes = append(hashes, backupCodeHash(accountID, canonicalizeBackupCode(raw)))
	}
	return display, hashes, nil
}
