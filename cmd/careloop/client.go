package main

import (
	"fmt"
	"path/filepath"

	"github.com/careloop/careloop/internal/config"
	"github.com/careloop/careloop/internal/feed"
	"github.com/careloop/careloop/internal/gateway"
	"github.com/careloop/careloop/internal/kv"
	"github.com/careloop/careloop/internal/storage"
)

// requireSession verifies that login has happened.
func requireSession(cfg *config.Config) error {
	if cfg.Client.Token == "" || cfg.Client.UserID == "" {
		return fmt.Errorf("no session configured; run 'careloop login' first")
	}
	return nil
}

// openDeviceStores builds the encrypted current-generation store and
// the plain legacy store under the data directory.
func openDeviceStores(cfg *config.Config) (current *kv.EncryptedStore, legacy *kv.PlainStore, err error) {
	dataDir := cfg.Client.DataDir
	key, err := kv.LoadOrCreateKey(filepath.Join(dataDir, "store.key"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load storage key: %w", err)
	}
	current, err = kv.NewEncryptedStore(filepath.Join(dataDir, "secure"), key)
	if err != nil {
		return nil, nil, err
	}
	legacy, err = kv.NewPlainStore(filepath.Join(dataDir, "legacy"))
	if err != nil {
		return nil, nil, err
	}
	return current, legacy, nil
}

// openStorage wires the platform storage facade from configuration.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	if err := requireSession(cfg); err != nil {
		return nil, err
	}

	opts := storage.Options{
		Remote: gateway.NewClient(cfg.Client.ServerURL, cfg.Client.Token),
		Feed: feed.Config{
			BaseURL: cfg.Client.ServerURL,
			Token:   cfg.Client.Token,
		},
		Logger: config.NewLogger(cfg.Log, "[storage] "),
	}

	platform := storage.Platform(cfg.Client.Platform)
	if platform == storage.PlatformMobile {
		current, legacy, err := openDeviceStores(cfg)
		if err != nil {
			return nil, err
		}
		opts.Local = current
		opts.Legacy = legacy
	}
	return storage.New(platform, opts)
}
