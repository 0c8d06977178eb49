package domain

import "time"

// BlobRecord is an encrypted payload persisted under a storage key. The
// ciphertext is opaque to the persistence layer; decryption happens in the
// store that owns the record.
type BlobRecord struct {
	StorageKey  string
	Environment string
	Ciphertext  []byte
	Nonce       []byte
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the record's lifetime has elapsed at the given time.
func (b *BlobRecord) Expired(now time.Time) bool {
	return !b.ExpiresAt.After(now)
}
