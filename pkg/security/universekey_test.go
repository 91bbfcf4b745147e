package security

import (
	"bytes"
	"testing"
)

func TestUniverseKeyManagerGenerateAndUse(t *testing.T) {
	m := NewUniverseKeyManager("cluster-123")

	key, wrapped, err := m.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if key.ID == "" {
		t.Error("generated key has empty ID")
	}
	if len(wrapped) == 0 {
		t.Error("wrapped key should not be empty")
	}

	plaintext := []byte("row bytes that would be written to a tablet's WAL")
	ciphertext, err := m.Encrypt(key.ID, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Error("ciphertext should not equal plaintext")
	}

	decrypted, err := m.Decrypt(key.ID, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted = %v, want %v", decrypted, plaintext)
	}
}

func TestUniverseKeyManagerLoadKeyAcrossInstances(t *testing.T) {
	writer := NewUniverseKeyManager("cluster-abc")
	key, wrapped, err := writer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	reader := NewUniverseKeyManager("cluster-abc")
	loaded, err := reader.LoadKey(key.ID, wrapped)
	if err != nil {
		t.Fatalf("LoadKey() error = %v", err)
	}
	if loaded.ID != key.ID {
		t.Errorf("loaded key id = %q, want %q", loaded.ID, key.ID)
	}

	plaintext := []byte("data encrypted by the writer, read back by a fresh manager")
	ciphertext, err := writer.Encrypt(key.ID, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	decrypted, err := reader.Decrypt(key.ID, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("decrypted data does not match original across manager instances")
	}
}

func TestUniverseKeyManagerLoadKeyWrongClusterID(t *testing.T) {
	writer := NewUniverseKeyManager("cluster-one")
	key, wrapped, err := writer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	wrongReader := NewUniverseKeyManager("cluster-two")
	if _, err := wrongReader.LoadKey(key.ID, wrapped); err == nil {
		t.Error("LoadKey() should fail when the key-encryption-key is derived from a different cluster id")
	}
}

func TestUniverseKeyManagerUnknownKey(t *testing.T) {
	m := NewUniverseKeyManager("cluster-123")
	if _, err := m.Encrypt("never-generated", []byte("data")); err == nil {
		t.Error("Encrypt() should fail for a key id that was never generated or loaded")
	}
}

func TestDeriveKeyFromClusterID(t *testing.T) {
	tests := []struct {
		name      string
		clusterID string
	}{
		{name: "simple ID", clusterID: "cluster-123"},
		{name: "UUID", clusterID: "550e8400-e29b-41d4-a716-446655440000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := DeriveKeyFromClusterID(tt.clusterID)
			if len(key) != 32 {
				t.Errorf("DeriveKeyFromClusterID() returned key of length %d, want 32", len(key))
			}

			key2 := DeriveKeyFromClusterID(tt.clusterID)
			if !bytes.Equal(key, key2) {
				t.Error("DeriveKeyFromClusterID() should be deterministic")
			}

			differentKey := DeriveKeyFromClusterID(tt.clusterID + "-different")
			if bytes.Equal(key, differentKey) {
				t.Error("different cluster IDs should produce different keys")
			}
		})
	}
}

func TestClusterEncryptionKeyRoundtrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, []byte("test-encryption-key-32-bytes-!!"))
	if err := SetClusterEncryptionKey(key); err != nil {
		t.Fatalf("SetClusterEncryptionKey() error = %v", err)
	}

	plaintext := []byte("root ca private key bytes")
	ciphertext, err := Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	decrypted, err := Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Error("decrypted data does not match original")
	}
}

func TestSetClusterEncryptionKeyRejectsWrongLength(t *testing.T) {
	if err := SetClusterEncryptionKey(make([]byte, 16)); err == nil {
		t.Error("SetClusterEncryptionKey() should reject a non-32-byte key")
	}
}
