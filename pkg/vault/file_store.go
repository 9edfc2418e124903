package vault

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const storeFileName = "secrets.json"

// FileStore implements Store using an encrypted JSON file. Each secret
// is sealed individually with XChaCha20-Poly1305 under a key derived
// from the device passphrase via Argon2id. Reads pass through the
// configured Gate, mirroring the platform keychain's device
// authentication requirement.
type FileStore struct {
	path string
	gate Gate

	mutex   sync.RWMutex
	salt    []byte
	key     []byte
	entries map[string]string
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithGate sets the device authentication gate consulted on reads.
func WithGate(gate Gate) FileStoreOption {
	return func(s *FileStore) { s.gate = gate }
}

// storeFile is the on-disk layout.
type storeFile struct {
	Salt    string            `json:"salt"`
	Entries map[string]string `json:"entries"`
}

// NewFileStore opens (or creates) the encrypted store under dataDir.
func NewFileStore(dataDir, passphrase string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	store := &FileStore{
		path:    filepath.Join(dataDir, storeFileName),
		gate:    NoopGate{},
		entries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.load(); err != nil {
		return nil, fmt.Errorf("load secret store: %w", err)
	}
	store.key = deriveKey(passphrase, store.salt)

	return store, nil
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, chacha20poly1305.KeySize)
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.salt = make([]byte, 16)
		if _, err := rand.Read(s.salt); err != nil {
			return fmt.Errorf("generate salt: %w", err)
		}
		return s.flush()
	}
	if err != nil {
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.salt, err = base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return fmt.Errorf("decode salt: %w", err)
	}
	if file.Entries != nil {
		s.entries = file.Entries
	}
	return nil
}

// flush writes the store to disk. Callers must hold the write lock (or
// have exclusive access during construction).
func (s *FileStore) flush() error {
	file := storeFile{
		Salt:    base64.StdEncoding.EncodeToString(s.salt),
		Entries: s.entries,
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// Get returns the secret under key after passing the device gate.
func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.gate.Authorize(ctx, "read secret "+key); err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrAuthGateFailed, err)
	}

	s.mutex.RLock()
	sealed, exists := s.entries[key]
	s.mutex.RUnlock()
	if !exists {
		return "", false, nil
	}

	value, err := s.open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("unseal secret %s: %w", key, err)
	}
	return value, true, nil
}

// Put seals value and stores it under key.
func (s *FileStore) Put(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return fmt.Errorf("seal secret %s: %w", key, err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[key] = sealed
	return s.flush()
}

// Reset removes the secret under key.
func (s *FileStore) Reset(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, exists := s.entries[key]; !exists {
		return nil
	}
	delete(s.entries, key)
	return s.flush()
}

func (s *FileStore) seal(value string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(value), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *FileStore) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
