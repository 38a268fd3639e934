package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// EncryptedEngine wraps another Engine and encrypts/decrypts pieces transparently.
// Uses AES-256-GCM with a random 12-byte nonce prepended to the ciphertext.
type EncryptedEngine struct {
	inner Engine
	gcm   cipher.AEAD
}

// NewEncryptedEngine creates an encrypting wrapper around the given engine.
// key must be exactly 32 bytes (256 bits).
func NewEncryptedEngine(inner Engine, key []byte) (*EncryptedEngine, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &EncryptedEngine{inner: inner, gcm: gcm}, nil
}

// Overhead is the number of bytes Seal adds to a plaintext.
func (e *EncryptedEngine) Overhead() int {
	return e.gcm.NonceSize() + e.gcm.Overhead()
}

// Seal encrypts plaintext as nonce + ciphertext. aad binds the ciphertext to its location.
func (e *EncryptedEngine) Seal(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, e.gcm.NonceSize(), e.gcm.NonceSize()+len(plaintext)+e.gcm.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open reverses Seal.
func (e *EncryptedEngine) Open(sealed, aad []byte) ([]byte, error) {
	nonceSize := e.gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	plaintext, err := e.gcm.Open(nil, sealed[:nonceSize], sealed[nonceSize:], aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// PutObject encrypts the piece and returns the plaintext size.
func (e *EncryptedEngine) PutObject(namespace, key string, reader io.Reader, size int64) (int64, error) {
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return 0, fmt.Errorf("read plaintext: %w", err)
	}

	sealed, err := e.Seal(plaintext, []byte(key))
	if err != nil {
		return 0, err
	}

	if _, err := e.inner.PutObject(namespace, key, bytes.NewReader(sealed), int64(len(sealed))); err != nil {
		return 0, err
	}
	return int64(len(plaintext)), nil
}

func (e *EncryptedEngine) GetObject(namespace, key string) (io.ReadCloser, int64, error) {
	reader, _, err := e.inner.GetObject(namespace, key)
	if err != nil {
		return nil, 0, err
	}
	defer reader.Close()

	sealed, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, fmt.Errorf("read encrypted data: %w", err)
	}

	plaintext, err := e.Open(sealed, []byte(key))
	if err != nil {
		return nil, 0, err
	}

	return io.NopCloser(bytes.NewReader(plaintext)), int64(len(plaintext)), nil
}

func (e *EncryptedEngine) DeleteObject(namespace, key string) error {
	return e.inner.DeleteObject(namespace, key)
}

func (e *EncryptedEngine) ObjectExists(namespace, key string) bool {
	return e.inner.ObjectExists(namespace, key)
}

// ObjectSize returns the stored (encrypted) size; the plaintext is Overhead bytes shorter.
func (e *EncryptedEngine) ObjectSize(namespace, key string) (int64, error) {
	return e.inner.ObjectSize(namespace, key)
}
