package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// NameKey is the fixed-width ledger key for a name: the sha256 digest of its
// case-folded form.
type NameKey [32]byte

// String returns the lowercase hex form used as the storage key.
func (k NameKey) String() string {
	return hex.EncodeToString(k[:])
}

// NormalizeName canonicalizes a raw name into its ledger key. ASCII uppercase
// letters fold to lowercase; every other byte passes through unchanged. The
// folded string is returned alongside the key for event payloads and
// listings. Pure function.
func NormalizeName(raw string) (NameKey, string, error) {
	if len(raw) < MinNameLen {
		return NameKey{}, "", ErrNameTooShort
	}
	b := []byte(raw)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return NameKey(sha256.Sum256(b)), string(b), nil
}
