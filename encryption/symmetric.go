package encryption

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// keyInfo is the HKDF "info" parameter, binding derived keys to their purpose.
var keyInfo = []byte("bakery journal payload encryption v1")

// NewSymmetric returns a Policy that encrypts payloads with
// XChaCha20-Poly1305 using a key derived from secret.
//
// Each payload is prefixed with a random nonce, so encrypting the same
// plaintext twice yields different ciphertexts.
func NewSymmetric(secret string) (Policy, error) {
	if secret == "" {
		return nil, errors.New("encryption secret must not be empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, keyInfo)

	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}

	return symmetric{aead}, nil
}

type symmetric struct {
	aead cipher.AEAD
}

func (s symmetric) Encrypt(plaintext []byte) ([]byte, error) {
	size := s.aead.NonceSize()
	out := make([]byte, size, size+len(plaintext)+s.aead.Overhead())

	if _, err := rand.Read(out); err != nil {
		return nil, err
	}

	return s.aead.Seal(out, out[:size], plaintext, nil), nil
}

func (s symmetric) Decrypt(ciphertext []byte) ([]byte, error) {
	size := s.aead.NonceSize()
	if len(ciphertext) < size+s.aead.Overhead() {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := s.aead.Open(
		nil,
		ciphertext[:size],
		ciphertext[size:],
		nil,
	)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
