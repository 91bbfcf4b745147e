package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"
	"time"
)

// UniverseKey is one versioned data-encryption key in the universe key
// registry: the cluster-wide keys ClusterConfig.EncryptionInfo tracks by
// ID, used to encrypt data at rest.
type UniverseKey struct {
	ID        string
	CreatedAt time.Time
	raw       []byte // 32 bytes, AES-256
}

// UniverseKeyManager generates, wraps and caches universe keys. Keys are
// wrapped (encrypted) with a cluster-derived key-encryption-key before
// being handed to a caller for persistence, identified and rotatable
// rather than one-off blobs.
type UniverseKeyManager struct {
	mu   sync.RWMutex
	keys map[string]*UniverseKey
	kek  []byte // 32-byte key-encryption-key, derived from the cluster id
}

// NewUniverseKeyManager creates a manager whose key-encryption-key is
// derived from clusterID, the same way DeriveKeyFromClusterID is used
// for the certificate authority's root key.
func NewUniverseKeyManager(clusterID string) *UniverseKeyManager {
	return &UniverseKeyManager{
		keys: make(map[string]*UniverseKey),
		kek:  DeriveKeyFromClusterID(clusterID),
	}
}

// GenerateKey creates a new 32-byte AES-256 universe key, caches it, and
// returns its wrapped (encrypted) form for the caller to persist — e.g.
// via ClusterConfig.EncryptionInfo / an out-of-band key vault.
func (m *UniverseKeyManager) GenerateKey() (*UniverseKey, []byte, error) {
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, nil, fmt.Errorf("failed to generate universe key: %w", err)
	}
	id := generateKeyID(raw)

	wrapped, err := m.wrap(raw)
	if err != nil {
		return nil, nil, err
	}

	key := &UniverseKey{ID: id, CreatedAt: time.Now(), raw: raw}
	m.mu.Lock()
	m.keys[id] = key
	m.mu.Unlock()

	return key, wrapped, nil
}

// LoadKey unwraps a previously persisted universe key and caches it
// under id.
func (m *UniverseKeyManager) LoadKey(id string, wrapped []byte) (*UniverseKey, error) {
	raw, err := m.unwrap(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap universe key %q: %w", id, err)
	}
	key := &UniverseKey{ID: id, raw: raw}
	m.mu.Lock()
	m.keys[id] = key
	m.mu.Unlock()
	return key, nil
}

// Encrypt encrypts plaintext with the universe key identified by keyID.
func (m *UniverseKeyManager) Encrypt(keyID string, plaintext []byte) ([]byte, error) {
	key, err := m.find(keyID)
	if err != nil {
		return nil, err
	}
	return sealAESGCM(key.raw, plaintext)
}

// Decrypt decrypts ciphertext with the universe key identified by keyID.
func (m *UniverseKeyManager) Decrypt(keyID string, ciphertext []byte) ([]byte, error) {
	key, err := m.find(keyID)
	if err != nil {
		return nil, err
	}
	return openAESGCM(key.raw, ciphertext)
}

func (m *UniverseKeyManager) find(keyID string) (*UniverseKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("universe key %q not loaded", keyID)
	}
	return key, nil
}

func (m *UniverseKeyManager) wrap(raw []byte) ([]byte, error) {
	return sealAESGCM(m.kek, raw)
}

func (m *UniverseKeyManager) unwrap(wrapped []byte) ([]byte, error) {
	return openAESGCM(m.kek, wrapped)
}

func generateKeyID(raw []byte) string {
	hash := sha256.Sum256(raw)
	return base64.URLEncoding.EncodeToString(hash[:16])
}

func sealAESGCM(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func openAESGCM(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// DeriveKeyFromClusterID derives a 32-byte key-encryption-key from the
// cluster id, giving every master in the cluster the same
// key-encryption-key without having to distribute it separately.
func DeriveKeyFromClusterID(clusterID string) []byte {
	hash := sha256.Sum256([]byte(clusterID))
	return hash[:]
}

// clusterEncryptionKey is the global key used to wrap the certificate
// authority's root private key at rest.
var clusterEncryptionKey []byte

// SetClusterEncryptionKey sets the global cluster encryption key. Must
// be called once during cluster initialization before CertAuthority
// saves or loads its root key.
func SetClusterEncryptionKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	clusterEncryptionKey = key
	return nil
}

// Encrypt encrypts data using the cluster encryption key. Used for
// encrypting the certificate authority's root private key at rest.
func Encrypt(plaintext []byte) ([]byte, error) {
	if len(clusterEncryptionKey) == 0 {
		return nil, fmt.Errorf("cluster encryption key not set")
	}
	return sealAESGCM(clusterEncryptionKey, plaintext)
}

// Decrypt decrypts data using the cluster encryption key.
func Decrypt(ciphertext []byte) ([]byte, error) {
	if len(clusterEncryptionKey) == 0 {
		return nil, fmt.Errorf("cluster encryption key not set")
	}
	return openAESGCM(clusterEncryptionKey, ciphertext)
}
