// Package keymanager supplies symmetric keys to pkg/blobstore's encryption
// pipeline, keyed by purpose string, with rotation support: old keys are
// retained so blobs encrypted under a retired key id remain decryptable.
package keymanager

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"
)

// KeySize is the size in bytes of every key this manager mints, sized for
// AES-256-GCM and ChaCha20-Poly1305 alike.
const KeySize = 32

// Key is one versioned symmetric key for a purpose.
type Key struct {
	ID        string
	Purpose   string
	Secret    [KeySize]byte
	CreatedAt time.Time
}

// Manager mints and retains keys per purpose string. The active key for a
// purpose is used for new encryptions; all retained keys remain available
// for decryption by ID.
type Manager struct {
	mu      sync.RWMutex
	active  map[string]*Key   // purpose -> current key
	byID    map[string]*Key   // key id -> key, across all purposes and generations
}

// New returns an empty key manager.
func New() *Manager {
	return &Manager{
		active: make(map[string]*Key),
		byID:   make(map[string]*Key),
	}
}

// ActiveKey returns the current key for purpose, minting one on first use.
func (m *Manager) ActiveKey(purpose string) (*Key, error) {
	m.mu.RLock()
	k, ok := m.active[purpose]
	m.mu.RUnlock()
	if ok {
		return k, nil
	}
	return m.Rotate(purpose)
}

// KeyByID looks up a previously-minted key for decryption of old blobs.
func (m *Manager) KeyByID(id string) (*Key, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("keymanager: unknown key id %q", id)
	}
	return k, nil
}

// Rotate mints a fresh key for purpose and makes it the active key; prior
// keys for the same purpose remain retrievable via KeyByID.
func (m *Manager) Rotate(purpose string) (*Key, error) {
	var secret [KeySize]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return nil, fmt.Errorf("keymanager: generate key: %w", err)
	}

	k := &Key{
		ID:        fmt.Sprintf("%s-%d", purpose, time.Now().UnixNano()),
		Purpose:   purpose,
		Secret:    secret,
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.active[purpose] = k
	m.byID[k.ID] = k
	m.mu.Unlock()

	return k, nil
}
