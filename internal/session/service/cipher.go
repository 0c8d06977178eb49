package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// blobKeyInfoPrefix namespaces the HKDF derivation so keys derived for blob
// encryption can never collide with keys derived for other purposes.
const blobKeyInfoPrefix = "dashgate/blob/v1:"

// aesGCMBlobCipher implements BlobCipher using AES-256-GCM with a per-record
// key derived from the master key and the storage key via HKDF-SHA256.
//
// The GCM authentication tag doubles as the integrity check required for
// persisted profiles: any bit flip in the ciphertext, nonce, or storage key
// makes decryption fail, and the store fails open to "no profile".
//
// The cipher is stateless and safe for concurrent use.
type aesGCMBlobCipher struct {
	masterKey []byte
}

// NewAESGCMBlobCipher creates a BlobCipher from a 32-byte master key.
func NewAESGCMBlobCipher(masterKey []byte) (BlobCipher, error) {
	if len(masterKey) != 32 {
		return nil, errors.New("master key must be exactly 32 bytes")
	}

	key := make([]byte, 32)
	copy(key, masterKey)

	return &aesGCMBlobCipher{masterKey: key}, nil
}

// deriveAEAD derives the per-storage-key AEAD. Each storage key gets an
// independent AES-256 key, so records cannot be swapped between keys.
func (c *aesGCMBlobCipher) deriveAEAD(storageKey string) (cipher.AEAD, error) {
	reader := hkdf.New(sha256.New, c.masterKey, nil, []byte(blobKeyInfoPrefix+storageKey))

	derived := make([]byte, 32)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("failed to derive blob key: %w", err)
	}

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// Encrypt encrypts plaintext under the key derived for storageKey. A fresh
// 12-byte nonce is generated per call; the returned ciphertext carries the
// 16-byte authentication tag.
func (c *aesGCMBlobCipher) Encrypt(plaintext []byte, storageKey string) (ciphertext, nonce []byte, err error) {
	aead, err := c.deriveAEAD(storageKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, []byte(storageKey))
	return ciphertext, nonce, nil
}

// Decrypt decrypts a blob for storageKey, verifying the authentication tag
// before returning plaintext.
func (c *aesGCMBlobCipher) Decrypt(ciphertext, nonce []byte, storageKey string) ([]byte, error) {
	aead, err := c.deriveAEAD(storageKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(storageKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	return plaintext, nil
}
