// Copyright (c) 2025 MCProbe
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for mcprobe.
// This module manages all interactions with the OS keychain/credential store.
// The harness uses it as the fallback source for the database connection URLs
// handed to the server under test: environment variables win, the keychain is
// consulted next, and the built-in local-dev defaults apply last.
//
// The package supports macOS Keychain and Windows Credential Manager, with
// thread-safe operations and proper error handling.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
}

// keychainBackend defines the interface for keychain operations.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "mcprobe"

// connKeyPrefix namespaces connection URL entries.
// The full key is conn_url_<connection name>, e.g. conn_url_primary.
const connKeyPrefix = "conn_url_"

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	// Try native security backend first on macOS
	if runtime.GOOS == "darwin" {
		backend, err := newSecurityBackend()
		if err == nil {
			return &Manager{backend: backend}, nil
		}
		// Fall through to keyring library if security command fails
	}

	ring, err := openRing()
	if err != nil {
		return nil, err
	}

	return &Manager{
		ring: ring,
	}, nil
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	// If already initialized successfully, return it
	if globalManager != nil {
		return globalManager, nil
	}

	// If previous initialization failed, retry
	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}

	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends only.
// Forces use of macOS Keychain or Windows Credential Manager - no file fallback.
func openRing() (keyring.Keyring, error) {
	// Only support darwin/windows platforms
	if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		return nil, errors.New("secure storage not supported on this OS (macOS/Windows only)")
	}

	// Use platform-specific native backends only
	var allowedBackends []keyring.BackendType
	if runtime.GOOS == "darwin" {
		// Try macOS Keychain first, then pass (password store) as fallback
		// Pass requires 'pass' utility installed: brew install pass
		allowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.PassBackend,
		}
	} else if runtime.GOOS == "windows" {
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends,
		PassPrefix:      ServiceName,
	}

	// Hint prefixes where supported to minimize namespace collisions
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}

	return ring, nil
}

// SaveConnectionURL stores the database URL for a named logical connection.
// This method is thread-safe.
func (m *Manager) SaveConnectionURL(name, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		return errors.New("connection name is required")
	}
	key := connKeyPrefix + name

	if m.backend != nil {
		return m.backend.Set(key, url)
	}
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(url)})
}

// LoadConnectionURL retrieves the database URL for a named logical connection.
// This method is thread-safe.
func (m *Manager) LoadConnectionURL(name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := connKeyPrefix + name

	if m.backend != nil {
		url, err := m.backend.Get(key)
		if err != nil {
			return "", err
		}
		if url == "" {
			return "", errors.New("no URL stored for connection " + name)
		}
		return url, nil
	}

	item, err := m.ring.Get(key)
	if err != nil {
		return "", err
	}
	return string(item.Data), nil
}

// DeleteConnectionURL removes the stored URL for a named logical connection.
// Deleting a connection that was never stored is not an error.
// This method is thread-safe.
func (m *Manager) DeleteConnectionURL(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := connKeyPrefix + name

	if m.backend != nil {
		return m.backend.Delete(key)
	}
	err := m.ring.Remove(key)
	if err != nil && errors.Is(err, keyring.ErrKeyNotFound) {
		return nil
	}
	return err
}
