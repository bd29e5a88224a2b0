// Package kv provides the platform key-value storage used for on-device
// persistence: a plain file-backed store (the legacy generation, and the
// browser-storage analog) and an encrypted store (the current mobile
// generation, sealed at rest).
package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorrupt is returned when a stored value is present but cannot be
// decoded or decrypted. Callers decide whether that is fatal; the local
// task store treats it as an empty value to keep the app usable.
var ErrCorrupt = errors.New("stored value is corrupt")

// Store is the minimal key-value contract shared by both storage
// generations. It mirrors platform secure storage: get, set, remove.
//
// Implementations do not provide concurrency control; callers serialize
// access themselves.
type Store interface {
	// GetItem returns the value for key. The second result is false
	// if the key is absent.
	GetItem(key string) (string, bool, error)

	// SetItem stores value under key, overwriting any previous value.
	SetItem(key, value string) error

	// RemoveItem deletes key. Removing an absent key is not an error.
	RemoveItem(key string) error
}

// PlainStore persists each key as a plain file in a directory.
// Values are stored unencrypted. This is the legacy storage generation.
type PlainStore struct {
	dir string
}

// NewPlainStore creates a plain file store rooted at dir.
// The directory is created if it does not exist.
func NewPlainStore(dir string) (*PlainStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &PlainStore{dir: dir}, nil
}

// GetItem implements Store.
func (s *PlainStore) GetItem(key string) (string, bool, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return string(data), true, nil
}

// SetItem implements Store.
func (s *PlainStore) SetItem(key, value string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, []byte(value))
}

// RemoveItem implements Store.
func (s *PlainStore) RemoveItem(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key %s: %w", key, err)
	}
	return nil
}

func (s *PlainStore) keyPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, key), nil
}

// validateKey rejects keys that would escape the store directory.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if strings.ContainsAny(key, "/\\") || key == "." || key == ".." {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// writeFileAtomic writes data via a temp file and rename so readers
// never observe a partially written value.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
