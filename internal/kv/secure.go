package kv

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// KeySize is the required length in bytes of an EncryptedStore key.
const KeySize = 32

// EncryptedStore persists each key as a file holding the value sealed
// with AES-256-GCM. This is the current storage generation: values are
// encrypted at rest with a device-held key.
//
// The on-disk format is base64(nonce || ciphertext).
type EncryptedStore struct {
	dir  string
	aead cipher.AEAD
}

// NewEncryptedStore creates an encrypted store rooted at dir using the
// given 32-byte key. The directory is created if it does not exist.
func NewEncryptedStore(dir string, key []byte) (*EncryptedStore, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes (got %d)", KeySize, len(key))
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &EncryptedStore{dir: dir, aead: aead}, nil
}

// LoadOrCreateKey reads the device encryption key from path, generating
// and persisting a fresh random key on first use.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(string(data))
		if decErr != nil || len(key) != KeySize {
			return nil, fmt.Errorf("key file %s: %w", path, ErrCorrupt)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := writeFileAtomic(path, []byte(base64.StdEncoding.EncodeToString(key))); err != nil {
		return nil, fmt.Errorf("failed to persist key: %w", err)
	}
	return key, nil
}

// GetItem implements Store.
func (s *EncryptedStore) GetItem(key string) (string, bool, error) {
	if err := validateKey(key); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}

	plaintext, err := s.open(data)
	if err != nil {
		return "", false, fmt.Errorf("key %s: %w", key, ErrCorrupt)
	}
	return string(plaintext), true, nil
}

// SetItem implements Store.
func (s *EncryptedStore) SetItem(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	sealed, err := s.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt key %s: %w", key, err)
	}
	return writeFileAtomic(filepath.Join(s.dir, key), sealed)
}

// RemoveItem implements Store.
func (s *EncryptedStore) RemoveItem(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *EncryptedStore) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)
	encoded := base64.StdEncoding.EncodeToString(sealed)
	return []byte(encoded), nil
}

func (s *EncryptedStore) open(data []byte) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	if len(sealed) < s.aead.NonceSize() {
		return nil, fmt.Errorf("value too short")
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt value: %w", err)
	}
	return plaintext, nil
}
